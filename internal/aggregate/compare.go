package aggregate

import (
	"time"
)

// Comparison is one child's volume of the parent's dominant sub-sector.
type Comparison struct {
	ZoneID int64   `json:"zone_id"`
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
}

// Compare measures every direct child of zoneID against a single sub-sector:
// the one with the greatest total volume over the parent's whole scope, all
// years combined. Fixing the sub-sector keeps the values comparable even
// though units differ between sub-sectors. A child without that sub-sector
// reports 0. When the parent scope has no facts at all there is nothing to
// compare against and the result is empty.
func (e *Engine) Compare(zoneID int64) ([]Comparison, error) {
	defer observe("compare", time.Now())

	children, err := e.tree.Children(zoneID)
	if err != nil {
		return nil, err
	}
	scope, err := e.index.DescendantCodes(zoneID)
	if err != nil {
		return nil, err
	}
	top, err := e.topSectorsCodes(scope, nil, 1)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return nil, nil
	}
	dominant := top[0].SubSectorID

	out := make([]Comparison, 0, len(children))
	for _, c := range children {
		codes, err := e.index.DescendantCodes(c.ID)
		if err != nil {
			return nil, err
		}
		t, err := e.rollupCodes(codes, dominant, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, Comparison{ZoneID: c.ID, Name: c.Name, Value: t.Total})
	}
	return out, nil
}

// Dominant returns the sub-sector Compare would measure children against,
// or false when the scope of zoneID has no facts.
func (e *Engine) Dominant(zoneID int64) (SectorVolume, bool, error) {
	top, err := e.TopSectors(zoneID, nil, 1)
	if err != nil {
		return SectorVolume{}, false, err
	}
	if len(top) == 0 {
		return SectorVolume{}, false, nil
	}
	return top[0], true, nil
}
