package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tmcunha/billsight/internal/domain/ingest"
)

// PostgresRecordRepository implements RecordRepository on PostgreSQL.
type PostgresRecordRepository struct {
	db DB
}

func NewPostgresRecordRepository(db DB) *PostgresRecordRepository {
	return &PostgresRecordRepository{db: db}
}

const recordColumns = `id, upload_id, row_number, date, customer_name, invoice_number, amount,
		description, product_name, quantity, unit_price, tax_amount, discount,
		payment_method, payment_status, due_date, payment_date, custom_fields, created_at`

// Insert persists one normalized record.
func (r *PostgresRecordRepository) Insert(ctx context.Context, rec *ingest.Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO records (id, upload_id, row_number, date, customer_name, invoice_number, amount,
			description, product_name, quantity, unit_price, tax_amount, discount,
			payment_method, payment_status, due_date, payment_date, custom_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.UploadID, rec.RowNumber, rec.Date, rec.CustomerName, rec.InvoiceNumber, rec.Amount,
		rec.Description, rec.ProductName, rec.Quantity, rec.UnitPrice, rec.TaxAmount, rec.Discount,
		rec.PaymentMethod, rec.PaymentStatus, rec.DueDate, rec.PaymentDate, rec.Custom,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func scanRecords(rows pgx.Rows) ([]ingest.Record, error) {
	defer rows.Close()

	var records []ingest.Record
	for rows.Next() {
		var rec ingest.Record
		err := rows.Scan(
			&rec.ID, &rec.UploadID, &rec.RowNumber, &rec.Date, &rec.CustomerName, &rec.InvoiceNumber,
			&rec.Amount, &rec.Description, &rec.ProductName, &rec.Quantity, &rec.UnitPrice,
			&rec.TaxAmount, &rec.Discount, &rec.PaymentMethod, &rec.PaymentStatus,
			&rec.DueDate, &rec.PaymentDate, &rec.Custom, &rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListByUpload returns the upload's records in source-row order.
func (r *PostgresRecordRepository) ListByUpload(ctx context.Context, uploadID uuid.UUID, limit, offset int) ([]ingest.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM records WHERE upload_id = $1 ORDER BY row_number LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, uploadID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return scanRecords(rows)
}

// ListByUser returns records across all of a user's uploads, newest date first.
func (r *PostgresRecordRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ingest.Record, error) {
	query := `SELECT r.id, r.upload_id, r.row_number, r.date, r.customer_name, r.invoice_number, r.amount,
			r.description, r.product_name, r.quantity, r.unit_price, r.tax_amount, r.discount,
			r.payment_method, r.payment_status, r.due_date, r.payment_date, r.custom_fields, r.created_at
		FROM records r
		JOIN uploads u ON u.id = r.upload_id
		WHERE u.user_id = $1
		ORDER BY r.date DESC, r.row_number
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list user records: %w", err)
	}
	return scanRecords(rows)
}

// DeleteByUpload removes every record of an upload. Used when a run restarts
// so row numbers stay unique within the upload.
func (r *PostgresRecordRepository) DeleteByUpload(ctx context.Context, uploadID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM records WHERE upload_id = $1`, uploadID)
	if err != nil {
		return fmt.Errorf("failed to delete upload records: %w", err)
	}
	return nil
}

// Delete removes one record and recomputes the owning upload's processed_rows
// in the same transaction, so the progress invariant cannot drift.
func (r *PostgresRecordRepository) Delete(ctx context.Context, id, userID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin record delete: %w", err)
	}
	defer tx.Rollback(ctx)

	var uploadID uuid.UUID
	err = tx.QueryRow(ctx, `
		DELETE FROM records r
		USING uploads u
		WHERE r.id = $1 AND u.id = r.upload_id AND u.user_id = $2
		RETURNING r.upload_id`,
		id, userID).Scan(&uploadID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	if err := recountProcessed(ctx, tx, uploadID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// DeleteBatch removes a set of the user's records and recomputes progress for
// every touched upload. Returns the number of records deleted.
func (r *PostgresRecordRepository) DeleteBatch(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin batch delete: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		DELETE FROM records r
		USING uploads u
		WHERE r.id = ANY($1) AND u.id = r.upload_id AND u.user_id = $2
		RETURNING r.upload_id`,
		ids, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to batch delete records: %w", err)
	}

	touched := make(map[uuid.UUID]struct{})
	var deleted int64
	for rows.Next() {
		var uploadID uuid.UUID
		if err := rows.Scan(&uploadID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan deleted record: %w", err)
		}
		touched[uploadID] = struct{}{}
		deleted++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for uploadID := range touched {
		if err := recountProcessed(ctx, tx, uploadID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit batch delete: %w", err)
	}
	return deleted, nil
}

func recountProcessed(ctx context.Context, tx pgx.Tx, uploadID uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE uploads
		SET processed_rows = (SELECT count(*) FROM records WHERE upload_id = $1)
		WHERE id = $1`,
		uploadID)
	if err != nil {
		return fmt.Errorf("failed to recompute processed rows: %w", err)
	}
	return nil
}
