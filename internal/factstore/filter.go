package factstore

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/model"
)

// YearRange is an inclusive range of years.
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Year returns the range covering the single year y.
func Year(y int) *YearRange { return &YearRange{From: y, To: y} }

// Between returns the inclusive range [from, to].
func Between(from, to int) *YearRange { return &YearRange{From: from, To: to} }

// Validate rejects non-positive bounds and inverted ranges.
func (r YearRange) Validate() error {
	if r.From <= 0 || r.To <= 0 {
		return eris.Wrapf(model.ErrInvalidFilter, "factstore: year range %d-%d has non-positive bound", r.From, r.To)
	}
	if r.From > r.To {
		return eris.Wrapf(model.ErrInvalidFilter, "factstore: year range %d-%d is inverted", r.From, r.To)
	}
	return nil
}

// Contains reports whether y falls inside the range.
func (r YearRange) Contains(y int) bool { return y >= r.From && y <= r.To }

// Filter is a conjunction over zone-code membership, an optional exact
// sub-sector and an optional year range.
type Filter struct {
	Codes       []string
	SubSectorID *int64
	Years       *YearRange
}

// Validate checks the filter before any store access.
func (f Filter) Validate() error {
	if f.Years != nil {
		return f.Years.Validate()
	}
	return nil
}

func (f Filter) match(fact model.Fact) bool {
	if f.SubSectorID != nil && fact.SubSectorID != *f.SubSectorID {
		return false
	}
	if f.Years != nil && !f.Years.Contains(fact.Year) {
		return false
	}
	return true
}
