package catalog

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Candidate is a near-miss field proposal for a column that the deterministic
// suggester did not accept. Lower distance means a closer match.
type Candidate struct {
	Field    FieldID `json:"field"`
	Variant  string  `json:"variant"`
	Distance int     `json:"distance"`
}

// FuzzyCandidates ranks canonical fields whose variants are fuzzy matches for
// the given column, for display alongside the mapping form. It never feeds the
// accepted suggestions; the scored path in Suggest stays authoritative.
func (c *Catalog) FuzzyCandidates(column string, limit int) []Candidate {
	normCol := normalizeColumn(column)
	if normCol == "" || limit <= 0 {
		return nil
	}

	best := make(map[FieldID]Candidate)
	for _, field := range c.fields {
		ranks := fuzzy.RankFindNormalizedFold(normCol, field.Variants)
		for _, r := range ranks {
			cur, seen := best[field.ID]
			if !seen || r.Distance < cur.Distance {
				best[field.ID] = Candidate{Field: field.ID, Variant: r.Target, Distance: r.Distance}
			}
		}
	}

	candidates := make([]Candidate, 0, len(best))
	for _, cand := range best {
		candidates = append(candidates, cand)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance != candidates[j].Distance {
			return candidates[i].Distance < candidates[j].Distance
		}
		return candidates[i].Field < candidates[j].Field
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
