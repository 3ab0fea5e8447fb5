package catalog

import "strings"

// Suggestion scoring. Exact normalized matches score 100 and short-circuit;
// containment matches score proportionally to how much of the longer string
// the shorter one covers, weighted so that variant-in-column beats
// column-in-variant at equal coverage.
const (
	scoreExact            = 100.0
	weightVariantInColumn = 80.0
	weightColumnInVariant = 70.0
	acceptanceThreshold   = 60.0
)

// Suggestion is one proposed column assignment for a canonical field.
type Suggestion struct {
	Column string  `json:"column"`
	Score  float64 `json:"score"`
}

// Suggest proposes a best-effort mapping from canonical fields to file
// columns. Suggestions are non-binding: a user confirms them before any
// mapping is persisted. The result is deterministic for a given column list;
// ties are broken by column scan order.
func (c *Catalog) Suggest(columns []string) map[FieldID]Suggestion {
	suggestions := make(map[FieldID]Suggestion)

	for _, field := range c.fields {
		bestColumn := ""
		bestScore := 0.0

	scan:
		for _, col := range columns {
			normCol := normalizeColumn(col)
			if normCol == "" {
				continue
			}

			for _, variant := range field.Variants {
				// Variants go through the same normalization as columns so
				// "inv_no" and "Inv No" land on the same form.
				normVariant := normalizeColumn(variant)

				if normCol == normVariant {
					bestColumn = col
					bestScore = scoreExact
					break scan
				}

				if strings.Contains(normCol, normVariant) {
					score := float64(len(normVariant)) / float64(len(normCol)) * weightVariantInColumn
					if score > bestScore {
						bestColumn = col
						bestScore = score
					}
				} else if strings.Contains(normVariant, normCol) {
					score := float64(len(normCol)) / float64(len(normVariant)) * weightColumnInVariant
					if score > bestScore {
						bestColumn = col
						bestScore = score
					}
				}
			}
		}

		if bestColumn != "" && bestScore >= acceptanceThreshold {
			suggestions[field.ID] = Suggestion{Column: bestColumn, Score: bestScore}
		}
	}

	return suggestions
}

// normalizeColumn lowercases a header and collapses underscore, dash and
// repeated whitespace into single spaces so "Bill_Date" and "bill date"
// compare equal.
func normalizeColumn(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", " ")
	s = strings.ReplaceAll(s, "-", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return s
}
