package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmcunha/billsight/internal/domain/catalog"
	"github.com/tmcunha/billsight/internal/domain/ingest"
	"github.com/tmcunha/billsight/internal/domain/ingest/coerce"
	"github.com/tmcunha/billsight/internal/domain/ingest/repository"
	"github.com/tmcunha/billsight/pkg/metrics"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeUploads struct {
	byID           map[uuid.UUID]*ingest.Upload
	progressWrites []int
}

func newFakeUploads() *fakeUploads {
	return &fakeUploads{byID: make(map[uuid.UUID]*ingest.Upload)}
}

func (f *fakeUploads) Create(_ context.Context, u *ingest.Upload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = ingest.StatusPending
	}
	u.UploadedAt = time.Now()
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUploads) GetByID(_ context.Context, id, userID uuid.UUID) (*ingest.Upload, error) {
	u, ok := f.byID[id]
	if !ok || u.UserID != userID {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUploads) ListByUser(_ context.Context, userID uuid.UUID) ([]ingest.Upload, error) {
	var out []ingest.Upload
	for _, u := range f.byID {
		if u.UserID == userID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUploads) Delete(_ context.Context, id, userID uuid.UUID) error {
	u, ok := f.byID[id]
	if !ok || u.UserID != userID {
		return repository.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeUploads) Transition(_ context.Context, id uuid.UUID, from, to ingest.Status) error {
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.Status != from || !from.CanTransitionTo(to) {
		return repository.ErrStatusConflict
	}
	u.Status = to
	return nil
}

func (f *fakeUploads) MarkProcessing(_ context.Context, id uuid.UUID) error {
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.Status != ingest.StatusMapped {
		return repository.ErrStatusConflict
	}
	now := time.Now()
	u.Status = ingest.StatusProcessing
	u.ProcessingStartedAt = &now
	u.ProcessingCompletedAt = nil
	u.ProcessedRows = 0
	u.ErrorMessage = ""
	return nil
}

func (f *fakeUploads) SetTotalRows(_ context.Context, id uuid.UUID, total int) error {
	f.byID[id].TotalRows = &total
	return nil
}

func (f *fakeUploads) UpdateProgress(_ context.Context, id uuid.UUID, processed int) error {
	f.byID[id].ProcessedRows = processed
	f.progressWrites = append(f.progressWrites, processed)
	return nil
}

func (f *fakeUploads) Finish(_ context.Context, id uuid.UUID, status ingest.Status, errorMessage string, processed int) error {
	u := f.byID[id]
	u.Status = status
	u.ErrorMessage = errorMessage
	u.ProcessedRows = processed
	if u.ProcessingCompletedAt == nil {
		now := time.Now()
		u.ProcessingCompletedAt = &now
	}
	return nil
}

func (f *fakeUploads) SetDateFormat(_ context.Context, id uuid.UUID, format string) error {
	f.byID[id].DateFormat = coerce.DateFormat(format)
	return nil
}

func (f *fakeUploads) FailStale(_ context.Context, cutoff time.Time, message string) (int64, error) {
	var n int64
	for _, u := range f.byID {
		if u.Status == ingest.StatusProcessing && u.ProcessingStartedAt != nil && u.ProcessingStartedAt.Before(cutoff) {
			u.Status = ingest.StatusError
			u.ErrorMessage = message
			n++
		}
	}
	return n, nil
}

type fakeMappings struct {
	byUpload map[uuid.UUID][]ingest.FieldMapping
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{byUpload: make(map[uuid.UUID][]ingest.FieldMapping)}
}

func (f *fakeMappings) Replace(_ context.Context, uploadID uuid.UUID, mappings []ingest.FieldMapping) error {
	cp := make([]ingest.FieldMapping, len(mappings))
	copy(cp, mappings)
	f.byUpload[uploadID] = cp
	return nil
}

func (f *fakeMappings) ListByUpload(_ context.Context, uploadID uuid.UUID) ([]ingest.FieldMapping, error) {
	return f.byUpload[uploadID], nil
}

type fakeRecords struct {
	byUpload map[uuid.UUID][]ingest.Record
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byUpload: make(map[uuid.UUID][]ingest.Record)}
}

func (f *fakeRecords) Insert(_ context.Context, r *ingest.Record) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	f.byUpload[r.UploadID] = append(f.byUpload[r.UploadID], *r)
	return nil
}

func (f *fakeRecords) ListByUpload(_ context.Context, uploadID uuid.UUID, limit, offset int) ([]ingest.Record, error) {
	recs := f.byUpload[uploadID]
	if offset >= len(recs) {
		return nil, nil
	}
	end := offset + limit
	if end > len(recs) {
		end = len(recs)
	}
	return recs[offset:end], nil
}

func (f *fakeRecords) ListByUser(_ context.Context, _ uuid.UUID, _, _ int) ([]ingest.Record, error) {
	var out []ingest.Record
	for _, recs := range f.byUpload {
		out = append(out, recs...)
	}
	return out, nil
}

func (f *fakeRecords) DeleteByUpload(_ context.Context, uploadID uuid.UUID) error {
	delete(f.byUpload, uploadID)
	return nil
}

func (f *fakeRecords) Delete(_ context.Context, _, _ uuid.UUID) error { return nil }

func (f *fakeRecords) DeleteBatch(_ context.Context, _ uuid.UUID, ids []uuid.UUID) (int64, error) {
	return int64(len(ids)), nil
}

type fakeStorage struct {
	files map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{files: make(map[string][]byte)}
}

func (f *fakeStorage) Save(_ context.Context, userID, filename string, r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	key := userID + "/" + filename
	f.files[key] = data
	return key, int64(len(data)), nil
}

func (f *fakeStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeStorage) Delete(_ context.Context, key string) error {
	delete(f.files, key)
	return nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	svc     *Service
	uploads *fakeUploads
	records *fakeRecords
	userID  uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	uploads := newFakeUploads()
	records := newFakeRecords()
	svc := New(
		uploads,
		newFakeMappings(),
		records,
		newFakeStorage(),
		catalog.Default(),
		metrics.NewPipeline(prometheus.NewRegistry()),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return &harness{svc: svc, uploads: uploads, records: records, userID: uuid.New()}
}

func canonicalMappings() []ingest.FieldMapping {
	return []ingest.FieldMapping{
		{Column: "Bill Date", Field: catalog.FieldDate},
		{Column: "Client", Field: catalog.FieldCustomerName},
		{Column: "Inv No", Field: catalog.FieldInvoiceNumber},
		{Column: "Total", Field: catalog.FieldAmount},
	}
}

// uploadCSV pushes a file through Upload and returns its id.
func (h *harness) uploadCSV(t *testing.T, csv string) uuid.UUID {
	t.Helper()
	u, err := h.svc.Upload(context.Background(), h.userID, "invoices.csv", strings.NewReader(csv), coerce.FormatDDMMYYYY)
	require.NoError(t, err)
	return u.ID
}

func (h *harness) mapAndGet(t *testing.T, id uuid.UUID) *ingest.Upload {
	t.Helper()
	require.NoError(t, h.svc.SaveMappings(context.Background(), id, h.userID, canonicalMappings(), ""))
	u, err := h.svc.Get(context.Background(), id, h.userID)
	require.NoError(t, err)
	return u
}

// buildCSV renders n data rows, making rows in badRows carry an empty amount.
func buildCSV(n int, badRows map[int]bool) string {
	var b strings.Builder
	b.WriteString("Bill Date,Client,Inv No,Total\n")
	for i := 1; i <= n; i++ {
		amount := "100.00"
		if badRows[i] {
			amount = ""
		}
		fmt.Fprintf(&b, "15/03/2024,Customer %d,INV-%03d,%s\n", i, i, amount)
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPipeline_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.uploadCSV(t, buildCSV(3, nil))

	u, err := h.svc.Get(ctx, id, h.userID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusPending, u.Status)

	u = h.mapAndGet(t, id)
	assert.Equal(t, ingest.StatusMapped, u.Status)

	u, err = h.svc.Process(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, ingest.StatusCompleted, u.Status)
	require.NotNil(t, u.TotalRows)
	assert.Equal(t, 3, *u.TotalRows)
	assert.Equal(t, 3, u.ProcessedRows)
	assert.Empty(t, u.ErrorMessage)
	assert.NotNil(t, u.ProcessingCompletedAt)
	assert.Len(t, h.records.byUpload[id], 3)

	// Row numbers follow source positions: header is row 1.
	assert.Equal(t, 2, h.records.byUpload[id][0].RowNumber)
	assert.Equal(t, "Customer 1", h.records.byUpload[id][0].CustomerName)
}

func TestPipeline_PartialErrorsStillComplete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := map[int]bool{10: true, 20: true, 30: true, 40: true, 50: true}
	id := h.uploadCSV(t, buildCSV(100, bad))
	h.mapAndGet(t, id)

	u, err := h.svc.Process(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, ingest.StatusCompleted, u.Status)
	assert.Equal(t, 95, u.ProcessedRows)
	assert.Contains(t, u.ErrorMessage, "(5 total errors, 95 records created)")
	assert.Contains(t, u.ErrorMessage, "amount is required")
}

func TestPipeline_AllRowsFailIsError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := map[int]bool{1: true, 2: true, 3: true}
	id := h.uploadCSV(t, buildCSV(3, bad))
	h.mapAndGet(t, id)

	u, err := h.svc.Process(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, ingest.StatusError, u.Status)
	assert.Zero(t, u.ProcessedRows)
	assert.NotContains(t, u.ErrorMessage, "records created")
}

func TestPipeline_ErrorSummaryCappedAtTen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bad := make(map[int]bool)
	for i := 1; i <= 25; i++ {
		bad[i] = true
	}
	id := h.uploadCSV(t, buildCSV(30, bad))
	h.mapAndGet(t, id)

	u, err := h.svc.Process(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, ingest.StatusCompleted, u.Status)
	assert.Equal(t, 10, strings.Count(u.ErrorMessage, "Row "))
	assert.Contains(t, u.ErrorMessage, "(25 total errors, 5 records created)")
}

func TestPipeline_CheckpointEveryTenRecords(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.uploadCSV(t, buildCSV(25, nil))
	h.mapAndGet(t, id)

	u, err := h.svc.Process(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, []int{10, 20}, h.uploads.progressWrites)
	assert.Equal(t, 25, u.ProcessedRows)
}

func TestProcess_RejectedUnlessMapped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.uploadCSV(t, buildCSV(2, nil))

	_, err := h.svc.Process(ctx, id, h.userID)
	assert.ErrorIs(t, err, repository.ErrStatusConflict)

	u, err := h.svc.Get(ctx, id, h.userID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusPending, u.Status)
}

func TestProcess_MissingRequiredMappingsShortCircuits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.uploadCSV(t, buildCSV(2, nil))

	// Force MAPPED with an incomplete mapping set, bypassing SaveMappings.
	require.NoError(t, h.svc.mappings.Replace(ctx, id, []ingest.FieldMapping{
		{Column: "Client", Field: catalog.FieldCustomerName, DataType: catalog.TypeString},
		{Column: "Inv No", Field: catalog.FieldInvoiceNumber, DataType: catalog.TypeString},
	}))
	h.uploads.byID[id].Status = ingest.StatusMapped

	u, err := h.svc.Process(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, ingest.StatusError, u.Status)
	assert.Equal(t, "Missing required field mappings: date, amount", u.ErrorMessage)
	assert.Empty(t, h.records.byUpload[id])
}

func TestProcess_NoMappingsShortCircuits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.uploadCSV(t, buildCSV(2, nil))
	h.uploads.byID[id].Status = ingest.StatusMapped

	u, err := h.svc.Process(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, ingest.StatusError, u.Status)
	assert.Equal(t, "No column mappings found", u.ErrorMessage)
}

func TestUpload_UnsupportedExtension(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Upload(context.Background(), h.userID, "notes.txt", strings.NewReader("x"), "")
	assert.Error(t, err)
}

func TestUpload_RejectsUnknownDateFormat(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Upload(context.Background(), h.userID, "a.csv", strings.NewReader("x"), "YYYY/DD/MM")
	assert.ErrorIs(t, err, ErrInvalidDateFormat)
}

func TestSaveMappings_ValidationFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.uploadCSV(t, buildCSV(1, nil))

	tests := []struct {
		name     string
		mappings []ingest.FieldMapping
	}{
		{"duplicate column", []ingest.FieldMapping{
			{Column: "Total", Field: catalog.FieldAmount},
			{Column: "Total", Field: catalog.FieldTaxAmount},
		}},
		{"custom without name", []ingest.FieldMapping{
			{Column: "Region", Field: catalog.FieldCustom},
		}},
		{"unknown field", []ingest.FieldMapping{
			{Column: "Total", Field: "made_up"},
		}},
		{"custom name on canonical field", []ingest.FieldMapping{
			{Column: "Total", Field: catalog.FieldAmount, CustomName: "total"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.svc.SaveMappings(ctx, id, h.userID, tt.mappings, "")
			assert.ErrorIs(t, err, ErrInvalidMapping)
		})
	}
}

func TestSaveMappings_FrozenWhileProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.uploadCSV(t, buildCSV(1, nil))
	h.uploads.byID[id].Status = ingest.StatusProcessing

	err := h.svc.SaveMappings(ctx, id, h.userID, canonicalMappings(), "")
	assert.ErrorIs(t, err, repository.ErrStatusConflict)
}

func TestSaveMappings_PartialSetStaysPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.uploadCSV(t, buildCSV(1, nil))

	err := h.svc.SaveMappings(ctx, id, h.userID, []ingest.FieldMapping{
		{Column: "Client", Field: catalog.FieldCustomerName},
	}, "")
	require.NoError(t, err)

	u, err := h.svc.Get(ctx, id, h.userID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusPending, u.Status)
}

func TestPreview_SuggestsAndSamples(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.uploadCSV(t, buildCSV(8, nil))

	p, err := h.svc.Preview(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bill Date", "Client", "Inv No", "Total"}, p.Columns)
	assert.Equal(t, "Total", p.Suggestions[catalog.FieldAmount].Column)
	assert.Equal(t, "Bill Date", p.Suggestions[catalog.FieldDate].Column)
	assert.Len(t, p.SampleRows, 5)
	assert.NotEmpty(t, p.Fields)
}

func TestCancel(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.uploadCSV(t, buildCSV(1, nil))

	require.NoError(t, h.svc.Cancel(ctx, id, h.userID))
	u, err := h.svc.Get(ctx, id, h.userID)
	require.NoError(t, err)
	assert.Equal(t, ingest.StatusCancelled, u.Status)

	// Terminal uploads cannot be cancelled again.
	assert.ErrorIs(t, h.svc.Cancel(ctx, id, h.userID), ErrUploadTerminal)
}

func TestExportCSV(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id := h.uploadCSV(t, buildCSV(2, nil))
	h.mapAndGet(t, id)
	_, err := h.svc.Process(ctx, id, h.userID)
	require.NoError(t, err)

	data, filename, err := h.svc.ExportCSV(ctx, id, h.userID)
	require.NoError(t, err)

	assert.Equal(t, "invoices_records.csv", filename)
	out := string(data)
	assert.Contains(t, out, "invoice_number,customer_name,amount,date,payment_status,due_date,payment_date,description")
	assert.Contains(t, out, "INV-001")
	assert.Contains(t, out, "100.00")
}
