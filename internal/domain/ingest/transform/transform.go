// Package transform turns one raw source row into one normalized billing
// record under a confirmed column mapping. Failures never escape the row: all
// of a row's violations are aggregated into a single RowError and the caller
// moves on to the next row.
package transform

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tmcunha/billsight/internal/domain/catalog"
	"github.com/tmcunha/billsight/internal/domain/ingest"
	"github.com/tmcunha/billsight/internal/domain/ingest/coerce"
)

// RowError aggregates every violation found in one row.
type RowError struct {
	RowNumber  int
	Violations []string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.RowNumber, strings.Join(e.Violations, "; "))
}

// Transformer applies a mapping set to rows. It is stateless and safe for
// concurrent use across uploads.
type Transformer struct {
	catalog *catalog.Catalog
}

func New(c *catalog.Catalog) *Transformer {
	return &Transformer{catalog: c}
}

// Transform coerces one row into a Record. Empty cells on non-required
// mappings leave the field absent; empty cells on required mappings, failed
// coercions, missing required canonical fields and a negative amount all
// collect into one RowError. On error the record is nil and nothing is
// persisted for the row.
func (t *Transformer) Transform(row map[string]string, mappings []ingest.FieldMapping, rowNumber int, policy coerce.DateFormat) (*ingest.Record, *RowError) {
	rec := &ingest.Record{
		RowNumber:     rowNumber,
		PaymentStatus: ingest.PaymentPending,
	}
	var violations []string
	var amountSet bool
	failed := make(map[string]bool)

	for _, m := range mappings {
		raw, present := row[m.Column]
		if !present {
			continue
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			if m.Required {
				violations = append(violations, fmt.Sprintf("%s is required", t.fieldName(m)))
				failed[t.fieldName(m)] = true
			}
			continue
		}

		value, cerr := coerce.Value(t.fieldName(m), raw, t.dataType(m), policy)
		if cerr != nil {
			violations = append(violations, cerr.Error())
			failed[t.fieldName(m)] = true
			continue
		}

		if m.Field == catalog.FieldCustom {
			if rec.Custom == nil {
				rec.Custom = make(map[string]ingest.CustomValue)
			}
			rec.Custom[m.CustomName] = ingest.CustomValue{
				Kind:  t.dataType(m),
				Value: formatCustom(value),
			}
			continue
		}
		if t.assign(rec, m.Field, value) && m.Field == catalog.FieldAmount {
			amountSet = true
		}
	}

	// Canonical required checks run after the mapping loop so a row missing
	// several fields reports all of them at once. Fields that already produced
	// a loop violation are not reported twice.
	if rec.CustomerName == "" && !failed["customer_name"] {
		violations = append(violations, "customer_name is required")
	}
	if rec.InvoiceNumber == "" && !failed["invoice_number"] {
		violations = append(violations, "invoice_number is required")
	}
	if (!amountSet || rec.Amount.IsNegative()) && !failed["amount"] {
		violations = append(violations, "amount must be a positive number")
	}
	if rec.Date.IsZero() && !failed["date"] {
		violations = append(violations, "date is required")
	}

	if len(violations) > 0 {
		return nil, &RowError{RowNumber: rowNumber, Violations: violations}
	}
	return rec, nil
}

// fieldName is the name used in error messages: the custom name for CUSTOM
// mappings, the canonical id otherwise.
func (t *Transformer) fieldName(m ingest.FieldMapping) string {
	if m.Field == catalog.FieldCustom {
		return m.CustomName
	}
	return string(m.Field)
}

// dataType resolves the coercion type. Canonical fields use the catalog's
// declared type so a stray mapping declaration cannot corrupt a typed column;
// CUSTOM mappings use whatever the user declared.
func (t *Transformer) dataType(m ingest.FieldMapping) catalog.DataType {
	if f, ok := t.catalog.Lookup(m.Field); ok {
		return f.DataType
	}
	return m.DataType
}

// assign routes a coerced value onto its record field. It reports whether the
// value was placed.
func (t *Transformer) assign(rec *ingest.Record, field catalog.FieldID, value any) bool {
	switch field {
	case catalog.FieldDate:
		rec.Date = value.(time.Time)
	case catalog.FieldCustomerName:
		rec.CustomerName = value.(string)
	case catalog.FieldInvoiceNumber:
		rec.InvoiceNumber = value.(string)
	case catalog.FieldAmount:
		rec.Amount = value.(decimal.Decimal)
	case catalog.FieldDescription:
		rec.Description = value.(string)
	case catalog.FieldProductName:
		rec.ProductName = value.(string)
	case catalog.FieldQuantity:
		rec.Quantity = decimalPtr(value)
	case catalog.FieldUnitPrice:
		rec.UnitPrice = decimalPtr(value)
	case catalog.FieldTaxAmount:
		rec.TaxAmount = decimalPtr(value)
	case catalog.FieldDiscount:
		rec.Discount = decimalPtr(value)
	case catalog.FieldPaymentMethod:
		rec.PaymentMethod = value.(string)
	case catalog.FieldPaymentStatus:
		rec.PaymentStatus = ingest.NormalizePaymentStatus(value.(string))
	case catalog.FieldDueDate:
		rec.DueDate = timePtr(value)
	case catalog.FieldPaymentDate:
		rec.PaymentDate = timePtr(value)
	default:
		return false
	}
	return true
}

func decimalPtr(value any) *decimal.Decimal {
	d := value.(decimal.Decimal)
	return &d
}

func timePtr(value any) *time.Time {
	ts := value.(time.Time)
	return &ts
}

// formatCustom renders a coerced value in its canonical string form.
func formatCustom(value any) string {
	switch v := value.(type) {
	case time.Time:
		return v.Format("2006-01-02")
	case decimal.Decimal:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
