package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/agristat/internal/model"
)

// LoadDataset reads the four tables concurrently.
func LoadDataset(ctx context.Context, st Store) (*model.Dataset, error) {
	start := time.Now()
	ds := &model.Dataset{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zones, err := st.LoadZones(gctx)
		ds.Zones = zones
		return err
	})
	g.Go(func() error {
		sectors, err := st.LoadSectors(gctx)
		ds.Sectors = sectors
		return err
	})
	g.Go(func() error {
		subSectors, err := st.LoadSubSectors(gctx)
		ds.SubSectors = subSectors
		return err
	})
	g.Go(func() error {
		facts, err := st.LoadFacts(gctx)
		ds.Facts = facts
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "store: load dataset")
	}

	zap.L().Debug("store: dataset loaded",
		zap.Int("zones", len(ds.Zones)),
		zap.Int("sub_sectors", len(ds.SubSectors)),
		zap.Int("facts", len(ds.Facts)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ds, nil
}

// DatasetLoader adapts a Store to snapshot.Loader.
type DatasetLoader struct {
	Store Store
}

// Load implements snapshot.Loader.
func (l DatasetLoader) Load(ctx context.Context) (*model.Dataset, error) {
	return LoadDataset(ctx, l.Store)
}
