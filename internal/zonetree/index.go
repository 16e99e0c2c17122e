package zonetree

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/model"
)

// DescendantIndex maps every zone to the codes of its subtree, itself
// included. Codes are laid out in pre-order, so each subtree is one
// contiguous range of a single shared slice.
type DescendantIndex struct {
	codes []string
	span  map[int64][2]int // zone id -> [start, end) into codes
}

// NewDescendantIndex computes the closure of t in a single traversal.
func NewDescendantIndex(t *Tree) *DescendantIndex {
	idx := &DescendantIndex{
		codes: make([]string, 0, len(t.zones)),
		span:  make(map[int64][2]int, len(t.zones)),
	}

	type frame struct {
		node int
		next int // next child to visit
	}
	for _, root := range t.roots {
		stack := []frame{{node: root}}
		idx.enter(t.zones[root])
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			kids := t.children[t.zones[top.node].ID]
			if top.next < len(kids) {
				child := kids[top.next]
				top.next++
				idx.enter(t.zones[child])
				stack = append(stack, frame{node: child})
				continue
			}
			idx.leave(t.zones[top.node])
			stack = stack[:len(stack)-1]
		}
	}
	return idx
}

func (idx *DescendantIndex) enter(z model.Zone) {
	idx.span[z.ID] = [2]int{len(idx.codes), 0}
	idx.codes = append(idx.codes, z.Code)
}

func (idx *DescendantIndex) leave(z model.Zone) {
	s := idx.span[z.ID]
	s[1] = len(idx.codes)
	idx.span[z.ID] = s
}

// DescendantCodes returns the subtree scope of id. The returned slice is
// shared and must not be modified; its capacity is clipped so appends copy.
func (idx *DescendantIndex) DescendantCodes(id int64) ([]string, error) {
	s, ok := idx.span[id]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "zonetree: zone %d", id)
	}
	return idx.codes[s[0]:s[1]:s[1]], nil
}

// Size returns the number of codes in the subtree of id, or 0 when unknown.
func (idx *DescendantIndex) Size(id int64) int {
	s := idx.span[id]
	return s[1] - s[0]
}
