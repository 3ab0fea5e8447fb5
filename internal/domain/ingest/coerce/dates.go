package coerce

import (
	"fmt"
	"strings"
	"time"
)

// DateFormat is the date-format policy attached to an upload. The tokens are
// user-facing and stored as-is; each maps to one or more parse layouts.
type DateFormat string

const (
	FormatDDMMYYYY     DateFormat = "DD/MM/YYYY"
	FormatMMDDYYYY     DateFormat = "MM/DD/YYYY"
	FormatYYYYMMDD     DateFormat = "YYYY-MM-DD"
	FormatDDMMYYYYDash DateFormat = "DD-MM-YYYY"
	FormatMMDDYYYYDash DateFormat = "MM-DD-YYYY"
	FormatDDMMYYYYDot  DateFormat = "DD.MM.YYYY"
	FormatAuto         DateFormat = "auto"
)

// formatLayouts maps each policy token to its Go parse layouts, 4-digit year
// first, then 2-digit.
var formatLayouts = map[DateFormat][]string{
	FormatDDMMYYYY:     {"02/01/2006", "02/01/06"},
	FormatMMDDYYYY:     {"01/02/2006", "01/02/06"},
	FormatYYYYMMDD:     {"2006-01-02"},
	FormatDDMMYYYYDash: {"02-01-2006", "02-01-06"},
	FormatMMDDYYYYDash: {"01-02-2006", "01-02-06"},
	FormatDDMMYYYYDot:  {"02.01.2006", "02.01.06"},
}

// autoOrder fixes the policy order tried under FormatAuto.
var autoOrder = []DateFormat{
	FormatDDMMYYYY, FormatMMDDYYYY, FormatYYYYMMDD,
	FormatDDMMYYYYDash, FormatMMDDYYYYDash, FormatDDMMYYYYDot,
}

// ValidFormat reports whether the token is a recognized date-format policy.
func ValidFormat(f DateFormat) bool {
	if f == FormatAuto {
		return true
	}
	_, ok := formatLayouts[f]
	return ok
}

// Date parses a raw cell under the given policy. A specific policy tries only
// its own layouts; FormatAuto tries every known layout in a fixed order.
// When no explicit layout matches, a permissive fallback parser runs with a
// day-first hint derived from the policy. Impossible calendar dates
// ("2024-02-30") fail under every layout.
func Date(raw string, policy DateFormat) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date value")
	}

	var layouts []string
	if policy == FormatAuto {
		for _, f := range autoOrder {
			layouts = append(layouts, formatLayouts[f]...)
		}
	} else if known, ok := formatLayouts[policy]; ok {
		layouts = known
	} else {
		layouts = formatLayouts[FormatDDMMYYYY]
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	if t, ok := parseFlexible(s, dayFirst(policy)); ok {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date format")
}

// dayFirst reports whether ambiguous numeric dates should be read day-first
// under the given policy.
func dayFirst(policy DateFormat) bool {
	switch policy {
	case FormatDDMMYYYY, FormatDDMMYYYYDash, FormatDDMMYYYYDot, FormatAuto:
		return true
	}
	return false
}

// flexibleLayouts are the fallback layouts for cells that carry more than a
// plain date, like timestamps. Day-first variants are tried before
// month-first when the policy hints day-first, and after otherwise.
var (
	neutralLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006/01/02",
	}
	dayFirstLayouts = []string{
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
	}
	monthFirstLayouts = []string{
		"01/02/2006 15:04:05",
		"01/02/2006 15:04",
	}
)

func parseFlexible(s string, preferDayFirst bool) (time.Time, bool) {
	layouts := make([]string, 0, len(neutralLayouts)+len(dayFirstLayouts)+len(monthFirstLayouts))
	layouts = append(layouts, neutralLayouts...)
	if preferDayFirst {
		layouts = append(layouts, dayFirstLayouts...)
		layouts = append(layouts, monthFirstLayouts...)
	} else {
		layouts = append(layouts, monthFirstLayouts...)
		layouts = append(layouts, dayFirstLayouts...)
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
