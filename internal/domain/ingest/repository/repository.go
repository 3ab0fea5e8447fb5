// Package repository provides PostgreSQL persistence for uploads, field
// mappings and billing records.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tmcunha/billsight/internal/domain/ingest"
)

var (
	// ErrNotFound is returned when the requested row does not exist or does
	// not belong to the requesting user.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned when a guarded status transition finds the
	// upload in a different state than expected.
	ErrStatusConflict = errors.New("upload status conflict")
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies it
// in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UploadRepository persists uploads and drives their status machine.
type UploadRepository interface {
	Create(ctx context.Context, u *ingest.Upload) error
	GetByID(ctx context.Context, id, userID uuid.UUID) (*ingest.Upload, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]ingest.Upload, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error

	// Transition moves the upload from exactly one status to another. It
	// returns ErrStatusConflict when the upload is not in the expected state.
	Transition(ctx context.Context, id uuid.UUID, from, to ingest.Status) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	SetTotalRows(ctx context.Context, id uuid.UUID, total int) error
	UpdateProgress(ctx context.Context, id uuid.UUID, processed int) error
	Finish(ctx context.Context, id uuid.UUID, status ingest.Status, errorMessage string, processed int) error
	SetDateFormat(ctx context.Context, id uuid.UUID, format string) error

	// FailStale marks PROCESSING uploads older than the cutoff as ERROR and
	// returns how many were swept.
	FailStale(ctx context.Context, cutoff time.Time, message string) (int64, error)
}

// MappingRepository persists an upload's column mappings as a set.
type MappingRepository interface {
	Replace(ctx context.Context, uploadID uuid.UUID, mappings []ingest.FieldMapping) error
	ListByUpload(ctx context.Context, uploadID uuid.UUID) ([]ingest.FieldMapping, error)
}

// RecordRepository persists normalized billing records. Deletions recompute
// the owning upload's processed_rows in the same transaction.
type RecordRepository interface {
	Insert(ctx context.Context, r *ingest.Record) error
	ListByUpload(ctx context.Context, uploadID uuid.UUID, limit, offset int) ([]ingest.Record, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ingest.Record, error)
	DeleteByUpload(ctx context.Context, uploadID uuid.UUID) error
	Delete(ctx context.Context, id, userID uuid.UUID) error
	DeleteBatch(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int64, error)
}
