// Package catalog resolves sub-sector ids to display metadata.
package catalog

import (
	"github.com/sells-group/agristat/internal/model"
)

// Catalog is an immutable lookup over sectors and sub-sectors.
type Catalog struct {
	sectors    map[int64]model.Sector
	subSectors map[int64]model.SubSector
	order      []int64 // sub-sector ids in load order
}

// New indexes the given sectors and sub-sectors. A sub-sector whose sector is
// unknown is kept; its category resolves to "".
func New(sectors []model.Sector, subSectors []model.SubSector) *Catalog {
	c := &Catalog{
		sectors:    make(map[int64]model.Sector, len(sectors)),
		subSectors: make(map[int64]model.SubSector, len(subSectors)),
	}
	for _, s := range sectors {
		c.sectors[s.ID] = s
	}
	for _, ss := range subSectors {
		if _, dup := c.subSectors[ss.ID]; !dup {
			c.order = append(c.order, ss.ID)
		}
		c.subSectors[ss.ID] = ss
	}
	return c
}

// SubSector returns the sub-sector with the given id.
func (c *Catalog) SubSector(id int64) (model.SubSector, bool) {
	ss, ok := c.subSectors[id]
	return ss, ok
}

// Sector returns the sector with the given id.
func (c *Catalog) Sector(id int64) (model.Sector, bool) {
	s, ok := c.sectors[id]
	return s, ok
}

// Category returns the name of the sector owning sub-sector id.
func (c *Catalog) Category(id int64) string {
	ss, ok := c.subSectors[id]
	if !ok {
		return ""
	}
	return c.sectors[ss.SectorID].Name
}

// Name returns the sub-sector's name, or "" when unknown.
func (c *Catalog) Name(id int64) string {
	return c.subSectors[id].Name
}

// SubSectors returns every sub-sector in load order.
func (c *Catalog) SubSectors() []model.SubSector {
	out := make([]model.SubSector, len(c.order))
	for i, id := range c.order {
		out[i] = c.subSectors[id]
	}
	return out
}

// Len returns the number of sub-sectors.
func (c *Catalog) Len() int { return len(c.subSectors) }
