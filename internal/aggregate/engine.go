// Package aggregate answers rollup queries over a subtree scope by combining
// the descendant index with the fact store.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/agristat/internal/catalog"
	"github.com/sells-group/agristat/internal/factstore"
	"github.com/sells-group/agristat/internal/snapshot"
	"github.com/sells-group/agristat/internal/zonetree"
)

// Engine is stateless: it borrows one snapshot's structures and every method
// is a pure function of that snapshot, the fact store contents and the
// request. Engines are cheap; build one per request.
type Engine struct {
	tree    *zonetree.Tree
	index   *zonetree.DescendantIndex
	facts   *factstore.Store
	catalog *catalog.Catalog
}

// New returns an Engine bound to s.
func New(s *snapshot.Snapshot) *Engine {
	return &Engine{
		tree:    s.Tree,
		index:   s.Index,
		facts:   s.Facts,
		catalog: s.Catalog,
	}
}

// Total is a subtree sum for one sub-sector.
type Total struct {
	Total float64 `json:"total"`
	Unit  string  `json:"unit"`
}

// SectorVolume is the summed volume of one sub-sector over a scope.
type SectorVolume struct {
	SubSectorID int64   `json:"sub_sector_id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Volume      float64 `json:"volume"`
	Unit        string  `json:"unit"`
}

// Rollup sums the volume of subSectorID over the subtree of zoneID, across
// all years unless years is set. No matching facts yields a zero Total. The
// unit is the one carried by the last fact examined that has a unit; mixed
// units within a sub-sector are a data problem and are not reconciled here.
func (e *Engine) Rollup(zoneID, subSectorID int64, years *factstore.YearRange) (Total, error) {
	defer observe("rollup", time.Now())

	codes, err := e.index.DescendantCodes(zoneID)
	if err != nil {
		return Total{}, err
	}
	return e.rollupCodes(codes, subSectorID, years)
}

func (e *Engine) rollupCodes(codes []string, subSectorID int64, years *factstore.YearRange) (Total, error) {
	seq, err := e.facts.Query(factstore.Filter{Codes: codes, SubSectorID: &subSectorID, Years: years})
	if err != nil {
		return Total{}, err
	}
	scopeSize.Observe(float64(len(codes)))

	var t Total
	for f := range seq {
		t.Total += f.Volume
		if f.Unit != "" {
			t.Unit = f.Unit
		}
	}
	return t, nil
}

// TopSectors groups the facts of the subtree of zoneID by sub-sector, sums
// volumes and returns the groups by descending volume, truncated to n when
// n > 0. Equal volumes keep the order in which their sub-sector was first
// met while scanning the scope.
func (e *Engine) TopSectors(zoneID int64, years *factstore.YearRange, n int) ([]SectorVolume, error) {
	defer observe("top_sectors", time.Now())

	codes, err := e.index.DescendantCodes(zoneID)
	if err != nil {
		return nil, err
	}
	return e.topSectorsCodes(codes, years, n)
}

func (e *Engine) topSectorsCodes(codes []string, years *factstore.YearRange, n int) ([]SectorVolume, error) {
	seq, err := e.facts.Query(factstore.Filter{Codes: codes, Years: years})
	if err != nil {
		return nil, err
	}
	scopeSize.Observe(float64(len(codes)))

	pos := make(map[int64]int)
	var groups []SectorVolume
	for f := range seq {
		i, ok := pos[f.SubSectorID]
		if !ok {
			i = len(groups)
			pos[f.SubSectorID] = i
			groups = append(groups, SectorVolume{
				SubSectorID: f.SubSectorID,
				Name:        e.subSectorName(f.SubSectorID),
				Category:    e.catalog.Category(f.SubSectorID),
			})
		}
		groups[i].Volume += f.Volume
		if f.Unit != "" {
			groups[i].Unit = f.Unit
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Volume > groups[j].Volume
	})
	if n > 0 && len(groups) > n {
		groups = groups[:n]
	}
	return groups, nil
}

// Breakdown lists every sub-sector produced in the subtree of zoneID, all
// years combined, by descending volume.
func (e *Engine) Breakdown(zoneID int64) ([]SectorVolume, error) {
	return e.TopSectors(zoneID, nil, 0)
}

func (e *Engine) subSectorName(id int64) string {
	if name := e.catalog.Name(id); name != "" {
		return name
	}
	return fmt.Sprintf("sub-sector %d", id)
}
