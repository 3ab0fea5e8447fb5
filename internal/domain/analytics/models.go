// Package analytics computes read-side aggregates over committed billing
// records. Revenue figures are invoice-level: amounts are summed per invoice
// number first, so invoices split across several rows never double count.
package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmcunha/billsight/internal/domain/ingest"
)

// Range optionally bounds a computation by record date. Nil ends are open.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Period selects the revenue-trend bucket size.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Summary is the headline dashboard block.
type Summary struct {
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	TotalRecords    int             `json:"total_records"`
	TotalInvoices   int             `json:"total_invoices"`
	AverageInvoice  decimal.Decimal `json:"average_invoice"`
	UniqueCustomers int             `json:"unique_customers"`
	PaidRevenue     decimal.Decimal `json:"paid_revenue"`
	PendingRevenue  decimal.Decimal `json:"pending_revenue"`
	OverdueRevenue  decimal.Decimal `json:"overdue_revenue"`

	// CollectionRate is paid revenue over total revenue as a percentage,
	// defined as 0 when total revenue is 0.
	CollectionRate decimal.Decimal `json:"collection_rate"`
}

// TrendPoint is one chronological revenue bucket.
type TrendPoint struct {
	Bucket  time.Time       `json:"bucket"`
	Revenue decimal.Decimal `json:"revenue"`
	Count   int             `json:"count"`
}

// CustomerStat is one entry of the top-customers board.
type CustomerStat struct {
	CustomerName   string          `json:"customer_name"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	InvoiceCount   int             `json:"invoice_count"`
	AverageInvoice decimal.Decimal `json:"average_invoice"`
}

// StatusSlice is one payment-status share, counted per invoice.
type StatusSlice struct {
	Status ingest.PaymentStatus `json:"status"`
	Count  int                  `json:"count"`
	Amount decimal.Decimal      `json:"amount"`
}

// Dashboard bundles every aggregate for one round trip.
type Dashboard struct {
	Summary      Summary        `json:"summary"`
	RevenueTrend []TrendPoint   `json:"revenue_trend"`
	TopCustomers []CustomerStat `json:"top_customers"`
	Distribution []StatusSlice  `json:"payment_status_distribution"`
}
