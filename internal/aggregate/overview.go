package aggregate

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/factstore"
	"github.com/sells-group/agristat/internal/model"
)

// DefaultTopProducts is the size of the Summary leaderboard when none is given.
const DefaultTopProducts = 5

// Summary is the headline view of a subtree.
type Summary struct {
	TopProducts    []SectorVolume `json:"top_products"`
	TotalProducers int64          `json:"total_producers"`
}

// Summary returns the topN sub-sectors of the subtree of zoneID, all years
// combined, and the summed producer count of every fact in the subtree.
func (e *Engine) Summary(zoneID int64, topN int) (*Summary, error) {
	defer observe("summary", time.Now())

	if topN <= 0 {
		topN = DefaultTopProducts
	}
	codes, err := e.index.DescendantCodes(zoneID)
	if err != nil {
		return nil, err
	}
	top, err := e.topSectorsCodes(codes, nil, topN)
	if err != nil {
		return nil, err
	}

	seq, err := e.facts.Query(factstore.Filter{Codes: codes})
	if err != nil {
		return nil, err
	}
	out := &Summary{TopProducts: top}
	for f := range seq {
		out.TotalProducers += f.ProducerCount
	}
	return out, nil
}

// SubSectorOption is a sub-sector offered as a filter choice.
type SubSectorOption struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Category string `json:"category"`
}

// CategoryGroup holds the options of one sector.
type CategoryGroup struct {
	Category   string            `json:"category"`
	SubSectors []SubSectorOption `json:"sub_sectors"`
}

// AvailableSubSectors lists the catalogued sub-sectors that have at least
// one fact in the subtree of parentID, or anywhere when parentID is nil.
// Groups are ordered by category name and options by name within a group.
// Facts whose sub-sector is not catalogued are not offered.
func (e *Engine) AvailableSubSectors(parentID *int64) ([]CategoryGroup, error) {
	defer observe("available_sub_sectors", time.Now())

	var codes []string
	if parentID != nil {
		c, err := e.index.DescendantCodes(*parentID)
		if err != nil {
			return nil, err
		}
		codes = c
	} else {
		codes = e.facts.Codes()
	}
	seq, err := e.facts.Query(factstore.Filter{Codes: codes})
	if err != nil {
		return nil, err
	}

	present := make(map[int64]bool)
	for f := range seq {
		present[f.SubSectorID] = true
	}

	byCategory := make(map[string][]SubSectorOption)
	for _, ss := range e.catalog.SubSectors() {
		if !present[ss.ID] {
			continue
		}
		cat := e.catalog.Category(ss.ID)
		byCategory[cat] = append(byCategory[cat], SubSectorOption{
			ID:       ss.ID,
			Name:     ss.Name,
			Color:    ss.Color,
			Category: cat,
		})
	}

	out := make([]CategoryGroup, 0, len(byCategory))
	for cat, opts := range byCategory {
		sort.SliceStable(opts, func(i, j int) bool { return opts[i].Name < opts[j].Name })
		out = append(out, CategoryGroup{Category: cat, SubSectors: opts})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// ZoneValue is one zone's rollup on a map layer.
type ZoneValue struct {
	Zone  model.Zone `json:"zone"`
	Value float64    `json:"value"`
	Unit  string     `json:"unit"`
}

// MapLayer is a choropleth: one rollup per zone of a level.
type MapLayer struct {
	Zones     []ZoneValue      `json:"zones"`
	Total     float64          `json:"total"`
	Unit      string           `json:"unit"`
	SubSector *SubSectorOption `json:"sub_sector,omitempty"`
}

// MapLayer rolls subSectorID up for every zone at level, restricted to the
// direct children of parentID when it is set. Total is the sum of the zone
// values.
func (e *Engine) MapLayer(level model.Level, parentID *int64, subSectorID int64, years *factstore.YearRange) (*MapLayer, error) {
	defer observe("map_layer", time.Now())

	if !level.Valid() {
		return nil, eris.Wrapf(model.ErrInvalidFilter, "aggregate: unknown level %q", level)
	}
	if years != nil {
		if err := years.Validate(); err != nil {
			return nil, err
		}
	}

	out := &MapLayer{}
	if ss, ok := e.catalog.SubSector(subSectorID); ok {
		out.SubSector = &SubSectorOption{
			ID:       ss.ID,
			Name:     ss.Name,
			Color:    ss.Color,
			Category: e.catalog.Category(ss.ID),
		}
	}

	for _, z := range e.tree.ByLevel(level, parentID) {
		codes, err := e.index.DescendantCodes(z.ID)
		if err != nil {
			return nil, err
		}
		t, err := e.rollupCodes(codes, subSectorID, years)
		if err != nil {
			return nil, err
		}
		out.Zones = append(out.Zones, ZoneValue{Zone: z, Value: t.Total, Unit: t.Unit})
		out.Total += t.Total
		if t.Unit != "" {
			out.Unit = t.Unit
		}
	}
	return out, nil
}
