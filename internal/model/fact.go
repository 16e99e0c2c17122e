package model

import "github.com/rotisserie/eris"

// Fact is one production measurement for a sub-sector, zone code and year.
type Fact struct {
	SubSectorID   int64   `json:"sub_sector_id" yaml:"sub_sector_id"`
	ZoneCode      string  `json:"zone_code" yaml:"zone_code"`
	Year          int     `json:"year" yaml:"year"`
	Volume        float64 `json:"volume" yaml:"volume"`
	Unit          string  `json:"unit" yaml:"unit"`
	SurfaceArea   float64 `json:"surface_area" yaml:"surface_area"`
	Yield         float64 `json:"yield" yaml:"yield"`
	ProducerCount int64   `json:"producer_count" yaml:"producer_count"`
	AveragePrice  float64 `json:"average_price" yaml:"average_price"`
	Description   string  `json:"description,omitempty" yaml:"description"`
}

// FactKey is the uniqueness key of a Fact.
type FactKey struct {
	SubSectorID int64
	ZoneCode    string
	Year        int
}

// Key returns the uniqueness key of f.
func (f Fact) Key() FactKey {
	return FactKey{SubSectorID: f.SubSectorID, ZoneCode: f.ZoneCode, Year: f.Year}
}

// Validate rejects facts no year filter could ever select or no zone could
// ever scope. Year ranges only admit positive years.
func (f Fact) Validate() error {
	if f.ZoneCode == "" {
		return eris.Wrap(ErrInvalidFilter, "fact has no zone_code")
	}
	if f.Year <= 0 {
		return eris.Wrapf(ErrInvalidFilter, "fact has no valid year (got %d)", f.Year)
	}
	return nil
}
