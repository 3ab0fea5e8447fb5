package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tmcunha/billsight/internal/domain/ingest"
)

// PostgresMappingRepository implements MappingRepository on PostgreSQL.
type PostgresMappingRepository struct {
	db DB
}

func NewPostgresMappingRepository(db DB) *PostgresMappingRepository {
	return &PostgresMappingRepository{db: db}
}

// Replace swaps the upload's whole mapping set in one transaction. Mappings
// are confirmed as a set in the UI, so partial updates never happen.
func (r *PostgresMappingRepository) Replace(ctx context.Context, uploadID uuid.UUID, mappings []ingest.FieldMapping) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin mapping replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM field_mappings WHERE upload_id = $1`, uploadID); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}

	query := `
		INSERT INTO field_mappings (id, upload_id, source_column, target_field, custom_name, required, data_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for i := range mappings {
		m := &mappings[i]
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		m.UploadID = uploadID
		if _, err := tx.Exec(ctx, query,
			m.ID, m.UploadID, m.Column, m.Field, m.CustomName, m.Required, m.DataType,
		); err != nil {
			return fmt.Errorf("failed to insert mapping for column %q: %w", m.Column, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit mapping replace: %w", err)
	}
	return nil
}

// ListByUpload returns the upload's mappings in insertion order.
func (r *PostgresMappingRepository) ListByUpload(ctx context.Context, uploadID uuid.UUID) ([]ingest.FieldMapping, error) {
	query := `
		SELECT id, upload_id, source_column, target_field, custom_name, required, data_type
		FROM field_mappings
		WHERE upload_id = $1
		ORDER BY created_at, source_column`

	rows, err := r.db.Query(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	defer rows.Close()

	var mappings []ingest.FieldMapping
	for rows.Next() {
		var m ingest.FieldMapping
		if err := rows.Scan(&m.ID, &m.UploadID, &m.Column, &m.Field, &m.CustomName, &m.Required, &m.DataType); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}
