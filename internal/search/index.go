// Package search answers substring lookups over zone names.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/agristat/internal/model"
)

// MinQueryLen is the shortest query, in runes, that reaches the index.
const MinQueryLen = 2

// DefaultMaxResults caps a result list when no cap is configured.
const DefaultMaxResults = 10

type entry struct {
	folded string
	zone   model.Zone
}

// Index is an immutable, alphabetically ordered list of searchable zones.
type Index struct {
	entries    []entry
	maxResults int
}

// New indexes every non-COUNTRY zone. maxResults <= 0 selects DefaultMaxResults.
func New(zones []model.Zone, maxResults int) *Index {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	idx := &Index{maxResults: maxResults}
	for _, z := range zones {
		if z.Level == model.LevelCountry {
			continue
		}
		idx.entries = append(idx.entries, entry{folded: Fold(z.Name), zone: z})
	}
	sort.SliceStable(idx.entries, func(i, j int) bool {
		a, b := idx.entries[i], idx.entries[j]
		if a.folded != b.folded {
			return a.folded < b.folded
		}
		return a.zone.Name < b.zone.Name
	})
	return idx
}

// Search returns up to the configured cap of zones whose name contains q,
// ignoring case and accents, in alphabetical order. Queries shorter than
// MinQueryLen return nil.
func (idx *Index) Search(q string) []model.Zone {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < MinQueryLen {
		return nil
	}
	needle := Fold(q)

	var out []model.Zone
	for _, e := range idx.entries {
		if strings.Contains(e.folded, needle) {
			out = append(out, e.zone)
			if len(out) == idx.maxResults {
				break
			}
		}
	}
	return out
}

// Len returns the number of indexed zones.
func (idx *Index) Len() int { return len(idx.entries) }
