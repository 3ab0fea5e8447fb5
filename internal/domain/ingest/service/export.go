package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tmcunha/billsight/internal/domain/ingest"
)

const exportBatchSize = 500

// exportRow is the flat CSV projection of a record. The leading eight columns
// are the canonical export order; derived and auxiliary columns follow.
type exportRow struct {
	InvoiceNumber string `csv:"invoice_number"`
	CustomerName  string `csv:"customer_name"`
	Amount        string `csv:"amount"`
	Date          string `csv:"date"`
	PaymentStatus string `csv:"payment_status"`
	DueDate       string `csv:"due_date"`
	PaymentDate   string `csv:"payment_date"`
	Description   string `csv:"description"`
	RowNumber     int    `csv:"row_number"`
	TaxAmount     string `csv:"tax_amount"`
	Discount      string `csv:"discount"`
	NetAmount     string `csv:"net_amount"`
	PaymentMethod string `csv:"payment_method"`
}

// ExportCSV renders an upload's records as CSV, in source-row order. Returns
// the content and a download filename derived from the original upload.
func (s *Service) ExportCSV(ctx context.Context, id, userID uuid.UUID) ([]byte, string, error) {
	u, err := s.uploads.GetByID(ctx, id, userID)
	if err != nil {
		return nil, "", err
	}

	var rows []exportRow
	for offset := 0; ; offset += exportBatchSize {
		batch, err := s.records.ListByUpload(ctx, id, exportBatchSize, offset)
		if err != nil {
			return nil, "", err
		}
		for i := range batch {
			rows = append(rows, toExportRow(&batch[i]))
		}
		if len(batch) < exportBatchSize {
			break
		}
	}

	data, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, "", fmt.Errorf("failed to render export: %w", err)
	}

	base := strings.TrimSuffix(u.Filename, "."+extOf(u.Filename))
	return data, fmt.Sprintf("%s_records.csv", base), nil
}

func toExportRow(r *ingest.Record) exportRow {
	return exportRow{
		InvoiceNumber: r.InvoiceNumber,
		CustomerName:  r.CustomerName,
		Amount:        r.Amount.StringFixed(2),
		Date:          r.Date.Format("2006-01-02"),
		PaymentStatus: string(r.PaymentStatus),
		DueDate:       dateString(r.DueDate),
		PaymentDate:   dateString(r.PaymentDate),
		Description:   r.Description,
		RowNumber:     r.RowNumber,
		TaxAmount:     decimalString(r.TaxAmount),
		Discount:      decimalString(r.Discount),
		NetAmount:     r.NetAmount().StringFixed(2),
		PaymentMethod: r.PaymentMethod,
	}
}

func decimalString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func dateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func extOf(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i+1:]
	}
	return ""
}
