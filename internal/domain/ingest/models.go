// Package ingest holds the upload pipeline's shared domain model: uploads,
// their column mappings and the normalized billing records produced from them.
package ingest

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tmcunha/billsight/internal/domain/catalog"
	"github.com/tmcunha/billsight/internal/domain/ingest/coerce"
)

// Status is the upload lifecycle state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusMapped     Status = "MAPPED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusError      Status = "ERROR"
	StatusCancelled  Status = "CANCELLED"
)

// transitions encodes the legal status moves. COMPLETED, ERROR and CANCELLED
// are terminal; CANCELLED is reachable from any non-terminal state by
// explicit user action only.
var transitions = map[Status][]Status{
	StatusPending:    {StatusMapped, StatusCancelled},
	StatusMapped:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusError, StatusCancelled},
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the normalized per-record payment state.
type PaymentStatus string

const (
	PaymentPaid      PaymentStatus = "PAID"
	PaymentPending   PaymentStatus = "PENDING"
	PaymentOverdue   PaymentStatus = "OVERDUE"
	PaymentCancelled PaymentStatus = "CANCELLED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

// paymentSynonyms maps lowercase source-file spellings onto payment states.
var paymentSynonyms = map[string]PaymentStatus{
	"paid": PaymentPaid, "complete": PaymentPaid, "completed": PaymentPaid,
	"settled": PaymentPaid, "success": PaymentPaid,
	"pending": PaymentPending, "unpaid": PaymentPending, "open": PaymentPending,
	"due": PaymentPending, "processing": PaymentPending,
	"overdue": PaymentOverdue, "late": PaymentOverdue, "past due": PaymentOverdue,
	"cancelled": PaymentCancelled, "canceled": PaymentCancelled, "void": PaymentCancelled,
	"refunded": PaymentRefunded, "refund": PaymentRefunded,
}

// NormalizePaymentStatus maps a raw payment-status cell to the closed enum.
// Unknown or empty values read as PENDING.
func NormalizePaymentStatus(raw string) PaymentStatus {
	if s, ok := paymentSynonyms[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return PaymentPending
}

// Upload is one submitted billing file and its processing state.
type Upload struct {
	ID                    uuid.UUID         `json:"id"`
	UserID                uuid.UUID         `json:"user_id"`
	Filename              string            `json:"filename"`
	SizeBytes             int64             `json:"size_bytes"`
	StorageKey            string            `json:"-"`
	Status                Status            `json:"status"`
	DateFormat            coerce.DateFormat `json:"date_format"`
	TotalRows             *int              `json:"total_rows"`
	ProcessedRows         int               `json:"processed_rows"`
	ErrorMessage          string            `json:"error_message,omitempty"`
	UploadedAt            time.Time         `json:"uploaded_at"`
	ProcessingStartedAt   *time.Time        `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time        `json:"processing_completed_at,omitempty"`
}

// FieldMapping assigns one source column to a canonical field, or to a named
// custom field when Field is the CUSTOM sentinel.
type FieldMapping struct {
	ID         uuid.UUID        `json:"id"`
	UploadID   uuid.UUID        `json:"upload_id"`
	Column     string           `json:"column"`
	Field      catalog.FieldID  `json:"field"`
	CustomName string           `json:"custom_name,omitempty"`
	Required   bool             `json:"required"`
	DataType   catalog.DataType `json:"data_type"`
}

// CustomValue is one user-defined field value. Kind is the declared data type
// of the mapping that produced it, so the type survives the JSONB round trip;
// Value is the canonical string rendering of the coerced value (dates as
// 2006-01-02, numbers exact, booleans true/false).
type CustomValue struct {
	Kind  catalog.DataType `json:"kind"`
	Value string           `json:"value"`
}

// Record is one normalized billing line produced from one source row.
type Record struct {
	ID            uuid.UUID              `json:"id"`
	UploadID      uuid.UUID              `json:"upload_id"`
	RowNumber     int                    `json:"row_number"`
	Date          time.Time              `json:"date"`
	CustomerName  string                 `json:"customer_name"`
	InvoiceNumber string                 `json:"invoice_number"`
	Amount        decimal.Decimal        `json:"amount"`
	Description   string                 `json:"description,omitempty"`
	ProductName   string                 `json:"product_name,omitempty"`
	Quantity      *decimal.Decimal       `json:"quantity,omitempty"`
	UnitPrice     *decimal.Decimal       `json:"unit_price,omitempty"`
	TaxAmount     *decimal.Decimal       `json:"tax_amount,omitempty"`
	Discount      *decimal.Decimal       `json:"discount,omitempty"`
	PaymentMethod string                 `json:"payment_method,omitempty"`
	PaymentStatus PaymentStatus          `json:"payment_status"`
	DueDate       *time.Time             `json:"due_date,omitempty"`
	PaymentDate   *time.Time             `json:"payment_date,omitempty"`
	Custom        map[string]CustomValue `json:"custom_fields,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// NetAmount is amount plus tax minus discount. It is derived, never stored.
func (r *Record) NetAmount() decimal.Decimal {
	net := r.Amount
	if r.TaxAmount != nil {
		net = net.Add(*r.TaxAmount)
	}
	if r.Discount != nil {
		net = net.Sub(*r.Discount)
	}
	return net
}
