package assistant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the pool subset the store uses; pgxmock satisfies it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresQueryStore keeps the assistant exchange history.
type PostgresQueryStore struct {
	db DB
}

func NewPostgresQueryStore(db DB) *PostgresQueryStore {
	return &PostgresQueryStore{db: db}
}

func (s *PostgresQueryStore) Save(ctx context.Context, q *Query) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}

	query := `
		INSERT INTO analytics_queries (id, user_id, question, answer, success, error_text)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`

	err := s.db.QueryRow(ctx, query,
		q.ID, q.UserID, q.Question, q.Answer, q.Success, q.ErrorText,
	).Scan(&q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save query: %w", err)
	}
	return nil
}

func (s *PostgresQueryStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Query, error) {
	query := `
		SELECT id, user_id, question, answer, success, error_text, created_at
		FROM analytics_queries
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	var queries []Query
	for rows.Next() {
		var q Query
		if err := rows.Scan(&q.ID, &q.UserID, &q.Question, &q.Answer, &q.Success, &q.ErrorText, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}
