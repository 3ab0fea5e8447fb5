package analytics

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/tmcunha/billsight/internal/domain/ingest"
)

// DB is the pool subset the repository uses; pgxmock satisfies it in tests.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository runs the aggregate queries. All revenue figures flow through the
// invoices CTE, which collapses rows to one amount per invoice number before
// any further aggregation.
type Repository struct {
	db DB
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// filteredCTE scopes records to the user and optional date range. Argument
// positions: $1 user id, $2 range start, $3 range end.
const filteredCTE = `
	WITH filtered AS (
		SELECT r.invoice_number, r.customer_name, r.amount, r.payment_status, r.date
		FROM records r
		JOIN uploads u ON u.id = r.upload_id
		WHERE u.user_id = $1
			AND ($2::timestamptz IS NULL OR r.date >= $2)
			AND ($3::timestamptz IS NULL OR r.date <= $3)
	), invoices AS (
		SELECT invoice_number,
			MIN(customer_name) AS customer_name,
			SUM(amount) AS invoice_amount,
			MAX(payment_status) AS payment_status
		FROM filtered
		GROUP BY invoice_number
	)`

// Summary computes the headline block in one round trip.
func (r *Repository) Summary(ctx context.Context, userID uuid.UUID, rng Range) (*Summary, error) {
	query := filteredCTE + `
	SELECT
		COALESCE((SELECT SUM(invoice_amount) FROM invoices), 0) AS total_revenue,
		(SELECT COUNT(*) FROM filtered) AS total_records,
		(SELECT COUNT(*) FROM invoices) AS total_invoices,
		COALESCE((SELECT AVG(invoice_amount) FROM invoices), 0) AS average_invoice,
		(SELECT COUNT(DISTINCT customer_name) FROM filtered) AS unique_customers,
		COALESCE((SELECT SUM(invoice_amount) FROM invoices WHERE payment_status = 'PAID'), 0) AS paid_revenue,
		COALESCE((SELECT SUM(invoice_amount) FROM invoices WHERE payment_status = 'PENDING'), 0) AS pending_revenue,
		COALESCE((SELECT SUM(invoice_amount) FROM invoices WHERE payment_status = 'OVERDUE'), 0) AS overdue_revenue`

	s := &Summary{}
	err := r.db.QueryRow(ctx, query, userID, rng.From, rng.To).Scan(
		&s.TotalRevenue, &s.TotalRecords, &s.TotalInvoices, &s.AverageInvoice,
		&s.UniqueCustomers, &s.PaidRevenue, &s.PendingRevenue, &s.OverdueRevenue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute summary: %w", err)
	}

	if s.TotalRevenue.IsZero() {
		s.CollectionRate = decimal.Zero
	} else {
		s.CollectionRate = s.PaidRevenue.Div(s.TotalRevenue).Mul(hundred).Round(2)
	}
	return s, nil
}

var hundred = decimal.NewFromInt(100)

// RevenueTrend buckets row-level revenue by day, ISO week or calendar month,
// chronologically ascending.
func (r *Repository) RevenueTrend(ctx context.Context, userID uuid.UUID, rng Range, period Period) ([]TrendPoint, error) {
	trunc, ok := truncUnits[period]
	if !ok {
		trunc = truncUnits[PeriodDaily]
	}

	query := fmt.Sprintf(`
		SELECT date_trunc('%s', r.date) AS bucket, SUM(r.amount) AS revenue, COUNT(*) AS n
		FROM records r
		JOIN uploads u ON u.id = r.upload_id
		WHERE u.user_id = $1
			AND ($2::timestamptz IS NULL OR r.date >= $2)
			AND ($3::timestamptz IS NULL OR r.date <= $3)
		GROUP BY bucket
		ORDER BY bucket`, trunc)

	rows, err := r.db.Query(ctx, query, userID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute revenue trend: %w", err)
	}
	defer rows.Close()

	var trend []TrendPoint
	for rows.Next() {
		var p TrendPoint
		if err := rows.Scan(&p.Bucket, &p.Revenue, &p.Count); err != nil {
			return nil, fmt.Errorf("failed to scan trend point: %w", err)
		}
		trend = append(trend, p)
	}
	return trend, rows.Err()
}

// TopCustomers ranks customers by invoice-level revenue, descending, with
// name as the stable tie-break.
func (r *Repository) TopCustomers(ctx context.Context, userID uuid.UUID, rng Range, limit int) ([]CustomerStat, error) {
	query := filteredCTE + `
	SELECT customer_name,
		SUM(invoice_amount) AS total_revenue,
		COUNT(*) AS invoice_count,
		AVG(invoice_amount) AS average_invoice
	FROM invoices
	GROUP BY customer_name
	ORDER BY total_revenue DESC, customer_name
	LIMIT $4`

	rows, err := r.db.Query(ctx, query, userID, rng.From, rng.To, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to compute top customers: %w", err)
	}
	defer rows.Close()

	var stats []CustomerStat
	for rows.Next() {
		var c CustomerStat
		if err := rows.Scan(&c.CustomerName, &c.TotalRevenue, &c.InvoiceCount, &c.AverageInvoice); err != nil {
			return nil, fmt.Errorf("failed to scan customer stat: %w", err)
		}
		stats = append(stats, c)
	}
	return stats, rows.Err()
}

// StatusDistribution groups invoices by their latest payment status, largest
// revenue share first.
func (r *Repository) StatusDistribution(ctx context.Context, userID uuid.UUID, rng Range) ([]StatusSlice, error) {
	query := filteredCTE + `
	SELECT payment_status, COUNT(*) AS n, SUM(invoice_amount) AS amount
	FROM invoices
	GROUP BY payment_status
	ORDER BY amount DESC`

	rows, err := r.db.Query(ctx, query, userID, rng.From, rng.To)
	if err != nil {
		return nil, fmt.Errorf("failed to compute status distribution: %w", err)
	}
	defer rows.Close()

	var slices []StatusSlice
	for rows.Next() {
		var s StatusSlice
		var status string
		if err := rows.Scan(&status, &s.Count, &s.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan status slice: %w", err)
		}
		s.Status = ingest.PaymentStatus(status)
		slices = append(slices, s)
	}
	return slices, rows.Err()
}

var truncUnits = map[Period]string{
	PeriodDaily:   "day",
	PeriodWeekly:  "week",
	PeriodMonthly: "month",
}
