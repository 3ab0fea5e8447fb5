package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tmcunha/billsight/internal/domain/ingest"
)

// PostgresUploadRepository implements UploadRepository on PostgreSQL.
type PostgresUploadRepository struct {
	db DB
}

func NewPostgresUploadRepository(db DB) *PostgresUploadRepository {
	return &PostgresUploadRepository{db: db}
}

const uploadColumns = `id, user_id, filename, size_bytes, storage_key, status, date_format,
		total_rows, processed_rows, error_message, uploaded_at, processing_started_at, processing_completed_at`

func scanUpload(row pgx.Row) (*ingest.Upload, error) {
	u := &ingest.Upload{}
	err := row.Scan(
		&u.ID, &u.UserID, &u.Filename, &u.SizeBytes, &u.StorageKey, &u.Status, &u.DateFormat,
		&u.TotalRows, &u.ProcessedRows, &u.ErrorMessage, &u.UploadedAt,
		&u.ProcessingStartedAt, &u.ProcessingCompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan upload: %w", err)
	}
	return u, nil
}

// Create inserts a new upload in PENDING state.
func (r *PostgresUploadRepository) Create(ctx context.Context, u *ingest.Upload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Status == "" {
		u.Status = ingest.StatusPending
	}

	query := `
		INSERT INTO uploads (id, user_id, filename, size_bytes, storage_key, status, date_format)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING uploaded_at`

	err := r.db.QueryRow(ctx, query,
		u.ID, u.UserID, u.Filename, u.SizeBytes, u.StorageKey, u.Status, u.DateFormat,
	).Scan(&u.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to create upload: %w", err)
	}
	return nil
}

// GetByID retrieves one upload scoped to its owner.
func (r *PostgresUploadRepository) GetByID(ctx context.Context, id, userID uuid.UUID) (*ingest.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1 AND user_id = $2`
	return scanUpload(r.db.QueryRow(ctx, query, id, userID))
}

// ListByUser returns the user's uploads, newest first.
func (r *PostgresUploadRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]ingest.Upload, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE user_id = $1 ORDER BY uploaded_at DESC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []ingest.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *u)
	}
	return uploads, rows.Err()
}

// Delete removes an upload; mappings and records cascade at the schema level.
func (r *PostgresUploadRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM uploads WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Transition performs a guarded status move. The WHERE clause on the current
// status makes the guard race-free: a concurrent writer that moved the upload
// first leaves zero rows for this update.
func (r *PostgresUploadRepository) Transition(ctx context.Context, id uuid.UUID, from, to ingest.Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s is not a legal transition", ErrStatusConflict, from, to)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE uploads SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("failed to transition upload: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: upload not in %s", ErrStatusConflict, from)
	}
	return nil
}

// MarkProcessing moves MAPPED -> PROCESSING and stamps the start time. Resets
// progress so a reprocessed upload restarts from zero.
func (r *PostgresUploadRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE uploads
		SET status = $2, processing_started_at = now(), processing_completed_at = NULL,
			processed_rows = 0, error_message = ''
		WHERE id = $1 AND status = $3`,
		id, ingest.StatusProcessing, ingest.StatusMapped)
	if err != nil {
		return fmt.Errorf("failed to mark upload processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: upload not in %s", ErrStatusConflict, ingest.StatusMapped)
	}
	return nil
}

// SetTotalRows records the row count before the processing loop starts.
func (r *PostgresUploadRepository) SetTotalRows(ctx context.Context, id uuid.UUID, total int) error {
	_, err := r.db.Exec(ctx, `UPDATE uploads SET total_rows = $2 WHERE id = $1`, id, total)
	if err != nil {
		return fmt.Errorf("failed to set total rows: %w", err)
	}
	return nil
}

// UpdateProgress checkpoints processed_rows mid-run.
func (r *PostgresUploadRepository) UpdateProgress(ctx context.Context, id uuid.UUID, processed int) error {
	_, err := r.db.Exec(ctx, `UPDATE uploads SET processed_rows = $2 WHERE id = $1`, id, processed)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// Finish records the terminal outcome of a processing run. COALESCE keeps
// processing_completed_at at its first stamped value.
func (r *PostgresUploadRepository) Finish(ctx context.Context, id uuid.UUID, status ingest.Status, errorMessage string, processed int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE uploads
		SET status = $2, error_message = $3, processed_rows = $4,
			processing_completed_at = COALESCE(processing_completed_at, now())
		WHERE id = $1`,
		id, status, errorMessage, processed)
	if err != nil {
		return fmt.Errorf("failed to finish upload: %w", err)
	}
	return nil
}

// SetDateFormat stores the upload's date-format policy.
func (r *PostgresUploadRepository) SetDateFormat(ctx context.Context, id uuid.UUID, format string) error {
	_, err := r.db.Exec(ctx, `UPDATE uploads SET date_format = $2 WHERE id = $1`, id, format)
	if err != nil {
		return fmt.Errorf("failed to set date format: %w", err)
	}
	return nil
}

// FailStale sweeps PROCESSING uploads whose run started before the cutoff.
func (r *PostgresUploadRepository) FailStale(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE uploads
		SET status = $1, error_message = $2,
			processing_completed_at = COALESCE(processing_completed_at, now())
		WHERE status = $3 AND processing_started_at < $4`,
		ingest.StatusError, message, ingest.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale uploads: %w", err)
	}
	return tag.RowsAffected(), nil
}
