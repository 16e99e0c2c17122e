// Package zonetree holds the administrative hierarchy in memory and the
// subtree closure derived from it.
package zonetree

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/model"
)

// Tree is an immutable forest of zones rooted at COUNTRY zones.
type Tree struct {
	zones    []model.Zone    // snapshot order
	pos      map[int64]int   // zone id -> index into zones
	children map[int64][]int // zone id -> indexes of direct children, snapshot order
	roots    []int
}

// Build indexes the zones by id, then links every zone to its parent. Input
// order does not matter: a child may precede its parent. Any integrity
// violation aborts the build and no tree is returned.
func Build(zones []model.Zone) (*Tree, error) {
	t := &Tree{
		zones:    make([]model.Zone, len(zones)),
		pos:      make(map[int64]int, len(zones)),
		children: make(map[int64][]int),
	}
	copy(t.zones, zones)

	codes := make(map[string]int64, len(zones))
	for i, z := range t.zones {
		if !z.Level.Valid() {
			return nil, eris.Wrapf(model.ErrIntegrity, "zonetree: zone %d has unknown level %q", z.ID, z.Level)
		}
		if z.Code == "" {
			return nil, eris.Wrapf(model.ErrIntegrity, "zonetree: zone %d has empty code", z.ID)
		}
		if _, dup := t.pos[z.ID]; dup {
			return nil, eris.Wrapf(model.ErrIntegrity, "zonetree: duplicate zone id %d", z.ID)
		}
		if other, dup := codes[z.Code]; dup {
			return nil, eris.Wrapf(model.ErrIntegrity, "zonetree: code %q shared by zones %d and %d", z.Code, other, z.ID)
		}
		t.pos[z.ID] = i
		codes[z.Code] = z.ID
	}

	for i, z := range t.zones {
		if z.ParentID == nil {
			if z.Level != model.LevelCountry {
				return nil, eris.Wrapf(model.ErrIntegrity, "zonetree: root zone %d is %s, want %s", z.ID, z.Level, model.LevelCountry)
			}
			t.roots = append(t.roots, i)
			continue
		}
		if z.Level == model.LevelCountry {
			return nil, eris.Wrapf(model.ErrIntegrity, "zonetree: country zone %d has parent %d", z.ID, *z.ParentID)
		}
		pi, ok := t.pos[*z.ParentID]
		if !ok {
			return nil, eris.Wrapf(model.ErrIntegrity, "zonetree: zone %d references unknown parent %d", z.ID, *z.ParentID)
		}
		// Every link climbs exactly one level and only COUNTRY zones are
		// roots, so parent chains end within four links. This check is what
		// rejects cycles, self parents included.
		want, _ := z.Level.Parent()
		if got := t.zones[pi].Level; got != want {
			return nil, eris.Wrapf(model.ErrIntegrity, "zonetree: zone %d (%s) has parent %d at level %s, want %s", z.ID, z.Level, *z.ParentID, got, want)
		}
		t.children[*z.ParentID] = append(t.children[*z.ParentID], i)
	}

	return t, nil
}

// Len returns the number of zones in the tree.
func (t *Tree) Len() int { return len(t.zones) }

// Get returns the zone with the given id.
func (t *Tree) Get(id int64) (model.Zone, error) {
	i, ok := t.pos[id]
	if !ok {
		return model.Zone{}, eris.Wrapf(model.ErrNotFound, "zonetree: zone %d", id)
	}
	return t.zones[i], nil
}

// Has reports whether id names a zone of the tree.
func (t *Tree) Has(id int64) bool {
	_, ok := t.pos[id]
	return ok
}

// Children returns the direct children of id in snapshot order.
func (t *Tree) Children(id int64) ([]model.Zone, error) {
	if !t.Has(id) {
		return nil, eris.Wrapf(model.ErrNotFound, "zonetree: zone %d", id)
	}
	idx := t.children[id]
	out := make([]model.Zone, len(idx))
	for k, i := range idx {
		out[k] = t.zones[i]
	}
	return out, nil
}

// Roots returns the COUNTRY zones in snapshot order.
func (t *Tree) Roots() []model.Zone {
	out := make([]model.Zone, len(t.roots))
	for k, i := range t.roots {
		out[k] = t.zones[i]
	}
	return out
}

// ByLevel returns every zone at level. When parentID is non-nil only direct
// children of that zone are returned; an unknown parent yields nothing.
func (t *Tree) ByLevel(level model.Level, parentID *int64) []model.Zone {
	var out []model.Zone
	if parentID != nil {
		for _, i := range t.children[*parentID] {
			if t.zones[i].Level == level {
				out = append(out, t.zones[i])
			}
		}
		return out
	}
	for _, z := range t.zones {
		if z.Level == level {
			out = append(out, z)
		}
	}
	return out
}

// All returns every zone in snapshot order.
func (t *Tree) All() []model.Zone {
	out := make([]model.Zone, len(t.zones))
	copy(out, t.zones)
	return out
}
