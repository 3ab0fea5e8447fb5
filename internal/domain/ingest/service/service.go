// Package service orchestrates the upload pipeline: file intake, mapping
// confirmation, the synchronous processing run and record management.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tmcunha/billsight/internal/domain/catalog"
	"github.com/tmcunha/billsight/internal/domain/ingest"
	"github.com/tmcunha/billsight/internal/domain/ingest/coerce"
	"github.com/tmcunha/billsight/internal/domain/ingest/reader"
	"github.com/tmcunha/billsight/internal/domain/ingest/repository"
	"github.com/tmcunha/billsight/internal/domain/ingest/transform"
	"github.com/tmcunha/billsight/pkg/metrics"
	"github.com/tmcunha/billsight/pkg/storage"
)

const (
	// checkpointInterval is how many created records pass between progress
	// writes, so a crashed run leaves progress visible.
	checkpointInterval = 10

	// errorSummaryCap bounds how many row errors the upload keeps verbatim.
	errorSummaryCap = 10

	// previewRows is how many sample rows the mapping preview shows.
	previewRows = 5
)

var (
	ErrInvalidDateFormat = errors.New("unknown date format policy")
	ErrInvalidMapping    = errors.New("invalid field mapping")
	ErrUploadTerminal    = errors.New("upload is in a terminal state")
)

// Service drives uploads through their lifecycle. Processing runs
// synchronously inside the triggering request, one writer per upload.
type Service struct {
	uploads     repository.UploadRepository
	mappings    repository.MappingRepository
	records     repository.RecordRepository
	store       storage.Storage
	catalog     *catalog.Catalog
	transformer *transform.Transformer
	metrics     *metrics.Pipeline
	logger      *slog.Logger
}

func New(
	uploads repository.UploadRepository,
	mappings repository.MappingRepository,
	records repository.RecordRepository,
	store storage.Storage,
	cat *catalog.Catalog,
	m *metrics.Pipeline,
	logger *slog.Logger,
) *Service {
	return &Service{
		uploads:     uploads,
		mappings:    mappings,
		records:     records,
		store:       store,
		catalog:     cat,
		transformer: transform.New(cat),
		metrics:     m,
		logger:      logger,
	}
}

// Upload stores the file and creates a PENDING upload row.
func (s *Service) Upload(ctx context.Context, userID uuid.UUID, filename string, r io.Reader, dateFormat coerce.DateFormat) (*ingest.Upload, error) {
	if !reader.Supported(filename) {
		return nil, &reader.UnreadableFileError{Filename: filename, Reason: "unsupported file format"}
	}
	if dateFormat == "" {
		dateFormat = coerce.FormatAuto
	}
	if !coerce.ValidFormat(dateFormat) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDateFormat, dateFormat)
	}

	key, size, err := s.store.Save(ctx, userID.String(), filename, r)
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	u := &ingest.Upload{
		UserID:     userID,
		Filename:   filename,
		SizeBytes:  size,
		StorageKey: key,
		DateFormat: dateFormat,
	}
	if err := s.uploads.Create(ctx, u); err != nil {
		if derr := s.store.Delete(ctx, key); derr != nil {
			s.logger.Warn("orphaned stored file after failed upload insert", "key", key, "error", derr)
		}
		return nil, err
	}

	s.logger.Info("upload received", "upload_id", u.ID, "filename", filename, "size_bytes", size)
	return u, nil
}

// MappingPreview is everything the mapping UI needs: the file's columns,
// non-binding suggestions, near-miss candidates and a few sample rows.
type MappingPreview struct {
	Columns     []string                               `json:"columns"`
	Suggestions map[catalog.FieldID]catalog.Suggestion `json:"suggestions"`
	Candidates  map[string][]catalog.Candidate         `json:"candidates,omitempty"`
	SampleRows  []map[string]string                    `json:"sample_rows"`
	Fields      []catalog.Field                        `json:"fields"`
}

// Preview reads the file's headers and suggests mappings. Suggestions are
// advisory only; nothing is persisted until SaveMappings.
func (s *Service) Preview(ctx context.Context, id, userID uuid.UUID) (*MappingPreview, error) {
	u, err := s.uploads.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	table, err := s.readTable(ctx, u)
	if err != nil {
		return nil, err
	}

	suggestions := s.catalog.Suggest(table.Headers)
	suggested := make(map[string]bool, len(suggestions))
	for _, sg := range suggestions {
		suggested[sg.Column] = true
	}

	candidates := make(map[string][]catalog.Candidate)
	for _, col := range table.Headers {
		if suggested[col] {
			continue
		}
		if c := s.catalog.FuzzyCandidates(col, 3); len(c) > 0 {
			candidates[col] = c
		}
	}

	return &MappingPreview{
		Columns:     table.Headers,
		Suggestions: suggestions,
		Candidates:  candidates,
		SampleRows:  table.Sample(previewRows),
		Fields:      s.catalog.Fields(),
	}, nil
}

// SaveMappings replaces the upload's mapping set after validating it, and
// advances PENDING -> MAPPED once every required canonical field is covered.
// Mappings are frozen once processing has started.
func (s *Service) SaveMappings(ctx context.Context, id, userID uuid.UUID, mappings []ingest.FieldMapping, dateFormat coerce.DateFormat) error {
	u, err := s.uploads.GetByID(ctx, id, userID)
	if err != nil {
		return err
	}
	if u.Status != ingest.StatusPending && u.Status != ingest.StatusMapped {
		return fmt.Errorf("%w: mappings are frozen in %s", repository.ErrStatusConflict, u.Status)
	}

	if err := s.validateMappings(mappings); err != nil {
		return err
	}
	if dateFormat != "" {
		if !coerce.ValidFormat(dateFormat) {
			return fmt.Errorf("%w: %q", ErrInvalidDateFormat, dateFormat)
		}
		if err := s.uploads.SetDateFormat(ctx, id, string(dateFormat)); err != nil {
			return err
		}
	}

	if err := s.mappings.Replace(ctx, id, mappings); err != nil {
		return err
	}

	if u.Status == ingest.StatusPending && len(s.missingRequired(mappings)) == 0 {
		if err := s.uploads.Transition(ctx, id, ingest.StatusPending, ingest.StatusMapped); err != nil {
			return err
		}
		s.logger.Info("upload mapped", "upload_id", id)
	}
	return nil
}

func (s *Service) validateMappings(mappings []ingest.FieldMapping) error {
	seen := make(map[string]bool, len(mappings))
	for i := range mappings {
		m := &mappings[i]
		if m.Column == "" {
			return fmt.Errorf("%w: empty source column", ErrInvalidMapping)
		}
		if seen[m.Column] {
			return fmt.Errorf("%w: column %q mapped twice", ErrInvalidMapping, m.Column)
		}
		seen[m.Column] = true

		if m.Field == catalog.FieldCustom {
			if m.CustomName == "" {
				return fmt.Errorf("%w: custom mapping for column %q needs a field name", ErrInvalidMapping, m.Column)
			}
			if m.DataType == "" {
				m.DataType = catalog.TypeString
			}
			continue
		}

		f, ok := s.catalog.Lookup(m.Field)
		if !ok {
			return fmt.Errorf("%w: unknown field %q", ErrInvalidMapping, m.Field)
		}
		if m.CustomName != "" {
			return fmt.Errorf("%w: custom name on canonical field %q", ErrInvalidMapping, m.Field)
		}
		m.DataType = f.DataType
		m.Required = f.Required
	}
	return nil
}

func (s *Service) missingRequired(mappings []ingest.FieldMapping) []string {
	mapped := make(map[catalog.FieldID]bool, len(mappings))
	for _, m := range mappings {
		mapped[m.Field] = true
	}

	var missing []string
	for _, f := range s.catalog.RequiredFields() {
		if !mapped[f] {
			missing = append(missing, string(f))
		}
	}
	return missing
}

// Process runs the full ingestion loop for one upload. Only a MAPPED upload
// is accepted; the guarded transition makes concurrent process requests safe.
func (s *Service) Process(ctx context.Context, id, userID uuid.UUID) (*ingest.Upload, error) {
	u, err := s.uploads.GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := s.uploads.MarkProcessing(ctx, id); err != nil {
		return nil, err
	}
	u.Status = ingest.StatusProcessing

	s.run(ctx, u)
	return s.uploads.GetByID(ctx, id, userID)
}

// run executes the row loop. Every failure path lands in a terminal status;
// run itself never returns an error because the upload row is the reporting
// channel.
func (s *Service) run(ctx context.Context, u *ingest.Upload) {
	start := time.Now()

	mappings, err := s.mappings.ListByUpload(ctx, u.ID)
	if err != nil {
		s.fail(ctx, u.ID, fmt.Sprintf("Error reading mappings: %v", err))
		return
	}
	if len(mappings) == 0 {
		s.fail(ctx, u.ID, "No column mappings found")
		return
	}
	if missing := s.missingRequired(mappings); len(missing) > 0 {
		s.fail(ctx, u.ID, "Missing required field mappings: "+strings.Join(missing, ", "))
		return
	}

	table, err := s.readTable(ctx, u)
	if err != nil {
		s.fail(ctx, u.ID, fmt.Sprintf("Error reading file: %v", err))
		return
	}

	// A rerun starts from a clean slate so row numbers stay unique.
	if err := s.records.DeleteByUpload(ctx, u.ID); err != nil {
		s.fail(ctx, u.ID, fmt.Sprintf("Error clearing previous records: %v", err))
		return
	}
	if err := s.uploads.SetTotalRows(ctx, u.ID, len(table.Rows)); err != nil {
		s.fail(ctx, u.ID, fmt.Sprintf("Error recording row count: %v", err))
		return
	}

	created := 0
	var rowErrors []string
	for _, row := range table.Rows {
		s.metrics.RowsProcessed.Inc()

		rec, rowErr := s.transformer.Transform(table.RowMap(row), mappings, row.Number, u.DateFormat)
		if rowErr != nil {
			rowErrors = append(rowErrors, rowErr.Error())
			s.metrics.RowErrors.Inc()
			continue
		}

		rec.UploadID = u.ID
		if err := s.records.Insert(ctx, rec); err != nil {
			rowErrors = append(rowErrors, fmt.Sprintf("Row %d: %v", row.Number, err))
			s.metrics.RowErrors.Inc()
			continue
		}
		created++
		s.metrics.RecordsCreated.Inc()

		if created%checkpointInterval == 0 {
			if err := s.uploads.UpdateProgress(ctx, u.ID, created); err != nil {
				s.logger.Warn("progress checkpoint failed", "upload_id", u.ID, "error", err)
			}
		}
	}

	status := ingest.StatusCompleted
	summary := ""
	if len(rowErrors) > 0 {
		if created == 0 {
			status = ingest.StatusError
		}
		summary = strings.Join(rowErrors[:min(errorSummaryCap, len(rowErrors))], "; ")
		if created > 0 {
			summary += fmt.Sprintf(" (%d total errors, %d records created)", len(rowErrors), created)
		}
	}

	if err := s.uploads.Finish(ctx, u.ID, status, summary, created); err != nil {
		s.logger.Error("failed to finish upload", "upload_id", u.ID, "error", err)
	}
	s.metrics.UploadsFinished.WithLabelValues(string(status)).Inc()
	s.metrics.ProcessingDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("processing finished",
		"upload_id", u.ID,
		"status", status,
		"total_rows", len(table.Rows),
		"records_created", created,
		"row_errors", len(rowErrors),
		"duration", time.Since(start),
	)
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, message string) {
	if err := s.uploads.Finish(ctx, id, ingest.StatusError, message, 0); err != nil {
		s.logger.Error("failed to record upload error", "upload_id", id, "error", err)
	}
	s.metrics.UploadsFinished.WithLabelValues(string(ingest.StatusError)).Inc()
	s.logger.Warn("processing aborted", "upload_id", id, "reason", message)
}

func (s *Service) readTable(ctx context.Context, u *ingest.Upload) (*reader.Table, error) {
	rc, err := s.store.Open(ctx, u.StorageKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return reader.Read(u.Filename, data)
}

// Get returns one upload with its progress counters.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*ingest.Upload, error) {
	return s.uploads.GetByID(ctx, id, userID)
}

// List returns the user's uploads, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]ingest.Upload, error) {
	return s.uploads.ListByUser(ctx, userID)
}

// Cancel moves a non-terminal upload to CANCELLED.
func (s *Service) Cancel(ctx context.Context, id, userID uuid.UUID) error {
	u, err := s.uploads.GetByID(ctx, id, userID)
	if err != nil {
		return err
	}
	if u.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrUploadTerminal, u.Status)
	}
	return s.uploads.Transition(ctx, id, u.Status, ingest.StatusCancelled)
}

// Delete removes an upload, its stored file, and by cascade its mappings and
// records.
func (s *Service) Delete(ctx context.Context, id, userID uuid.UUID) error {
	u, err := s.uploads.GetByID(ctx, id, userID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, u.StorageKey); err != nil {
		s.logger.Warn("failed to delete stored file", "upload_id", id, "error", err)
	}
	return s.uploads.Delete(ctx, id, userID)
}

// Records lists an upload's records in source order.
func (s *Service) Records(ctx context.Context, id, userID uuid.UUID, limit, offset int) ([]ingest.Record, error) {
	if _, err := s.uploads.GetByID(ctx, id, userID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.records.ListByUpload(ctx, id, limit, offset)
}

// UserRecords lists records across all of the user's uploads.
func (s *Service) UserRecords(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ingest.Record, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.records.ListByUser(ctx, userID, limit, offset)
}

// DeleteRecord removes one record; the owning upload's progress is recomputed
// atomically by the repository.
func (s *Service) DeleteRecord(ctx context.Context, recordID, userID uuid.UUID) error {
	return s.records.Delete(ctx, recordID, userID)
}

// DeleteRecords bulk-removes records and returns how many were deleted.
func (s *Service) DeleteRecords(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	return s.records.DeleteBatch(ctx, userID, ids)
}
