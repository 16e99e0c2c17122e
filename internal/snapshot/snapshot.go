// Package snapshot bundles the zone tree and its derived indexes into
// immutable generations and swaps them atomically on reload.
package snapshot

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/catalog"
	"github.com/sells-group/agristat/internal/factstore"
	"github.com/sells-group/agristat/internal/model"
	"github.com/sells-group/agristat/internal/search"
	"github.com/sells-group/agristat/internal/zonetree"
)

// Snapshot is one fully built generation. Everything except Facts is
// read-only after Build; Facts accepts upserts under its own locking.
type Snapshot struct {
	ID         string
	Generation uint64
	BuiltAt    time.Time

	Tree    *zonetree.Tree
	Index   *zonetree.DescendantIndex
	Search  *search.Index
	Catalog *catalog.Catalog
	Facts   *factstore.Store
}

// Options tunes snapshot construction.
type Options struct {
	SearchMaxResults int
}

// Build constructs a snapshot from a dataset. On error nothing is returned,
// so a bad dataset can never be published.
func Build(ds *model.Dataset, opts Options) (*Snapshot, error) {
	if ds == nil {
		return nil, eris.New("snapshot: nil dataset")
	}

	tree, err := zonetree.Build(ds.Zones)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: build zone tree")
	}

	facts := factstore.New()
	if _, err := facts.UpsertAll(ds.Facts); err != nil {
		return nil, eris.Wrap(err, "snapshot: load facts")
	}

	return &Snapshot{
		ID:      uuid.NewString(),
		BuiltAt: time.Now().UTC(),
		Tree:    tree,
		Index:   zonetree.NewDescendantIndex(tree),
		Search:  search.New(tree.All(), opts.SearchMaxResults),
		Catalog: catalog.New(ds.Sectors, ds.SubSectors),
		Facts:   facts,
	}, nil
}

// Info summarises a snapshot for status output.
type Info struct {
	ID          string    `json:"id"`
	Generation  uint64    `json:"generation"`
	BuiltAt     time.Time `json:"built_at"`
	Zones       int       `json:"zones"`
	SubSectors  int       `json:"sub_sectors"`
	Facts       int       `json:"facts"`
	FactVersion uint64    `json:"fact_version"`
}

// Info returns counts describing s.
func (s *Snapshot) Info() Info {
	return Info{
		ID:          s.ID,
		Generation:  s.Generation,
		BuiltAt:     s.BuiltAt,
		Zones:       s.Tree.Len(),
		SubSectors:  s.Catalog.Len(),
		Facts:       s.Facts.Len(),
		FactVersion: s.Facts.Version(),
	}
}

// ETag identifies the snapshot contents, fact writes included.
func (s *Snapshot) ETag() string {
	return s.ID + "-" + strconv.FormatUint(s.Facts.Version(), 10)
}
