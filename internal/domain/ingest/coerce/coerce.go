// Package coerce converts raw cell values into typed billing values according
// to a per-column data-type declaration and a configurable date-format policy.
package coerce

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tmcunha/billsight/internal/domain/catalog"
)

// Error describes a single-field conversion failure. It is caught at the row
// boundary and aggregated into that row's error; it never aborts a run.
type Error struct {
	Field  string
	Raw    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("field %q: %s (value %q)", e.Field, e.Reason, e.Raw)
}

// currencySymbols are stripped from numeric cells before parsing, together
// with thousands separators.
var currencySymbols = []string{"R$", "$", "€", "£", "₹", "¥"}

// Value coerces one raw cell into the declared type. Empty-cell handling
// (optional vs required) is the caller's concern; Value assumes a non-empty
// trimmed input for number and date types.
func Value(field, raw string, dataType catalog.DataType, policy DateFormat) (any, *Error) {
	switch dataType {
	case catalog.TypeNumber:
		d, err := Number(raw)
		if err != nil {
			return nil, &Error{Field: field, Raw: raw, Reason: err.Error()}
		}
		return d, nil
	case catalog.TypeDate:
		t, err := Date(raw, policy)
		if err != nil {
			return nil, &Error{Field: field, Raw: raw, Reason: err.Error()}
		}
		return t, nil
	case catalog.TypeBoolean:
		return Boolean(raw), nil
	default:
		return String(raw), nil
	}
}

// String stringifies and trims a raw value.
func String(raw string) string {
	return strings.TrimSpace(raw)
}

// Number parses a monetary or numeric cell into an exact decimal. Currency
// symbols and thousands separators are stripped first; any non-numeric
// residue fails the parse.
func Number(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	for _, sym := range currencySymbols {
		cleaned = strings.ReplaceAll(cleaned, sym, "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty numeric value")
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number format")
	}
	return d, nil
}

// truthyValues is the closed set of strings that coerce to true.
var truthyValues = map[string]struct{}{
	"true": {}, "yes": {}, "1": {}, "y": {}, "on": {},
}

// Boolean maps a raw cell to a bool. Anything outside the truthy set is false.
func Boolean(raw string) bool {
	_, ok := truthyValues[strings.ToLower(strings.TrimSpace(raw))]
	return ok
}
