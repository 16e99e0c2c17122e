// Package store persists zones, the sector catalog and production facts, and
// loads them back as a model.Dataset for snapshot builds.
package store

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/model"
)

// Store defines the persistence interface behind a snapshot.
type Store interface {
	// Reads. Zones and facts come back in insertion order.
	LoadZones(ctx context.Context) ([]model.Zone, error)
	LoadSectors(ctx context.Context) ([]model.Sector, error)
	LoadSubSectors(ctx context.Context) ([]model.SubSector, error)
	LoadFacts(ctx context.Context) ([]model.Fact, error)

	// Writes
	UpsertFacts(ctx context.Context, facts []model.Fact) (int64, error)
	Seed(ctx context.Context, ds *model.Dataset) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open returns the store for driver ("postgres" or "sqlite").
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, dsn, poolCfg)
	case "sqlite":
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// normalizeLevel maps stored level strings onto model levels. Rows written by
// other tools are not always upper case.
func normalizeLevel(s string) model.Level {
	return model.Level(strings.ToUpper(strings.TrimSpace(s)))
}

// dedupeFacts keeps the last fact per key, in first-seen key order. A single
// upsert statement cannot touch the same key twice.
func dedupeFacts(facts []model.Fact) []model.Fact {
	pos := make(map[model.FactKey]int, len(facts))
	out := make([]model.Fact, 0, len(facts))
	for _, f := range facts {
		if i, ok := pos[f.Key()]; ok {
			out[i] = f
			continue
		}
		pos[f.Key()] = len(out)
		out = append(out, f)
	}
	return out
}

func validateFacts(facts []model.Fact) error {
	for i, f := range facts {
		if err := f.Validate(); err != nil {
			return eris.Wrapf(err, "store: fact %d (sub-sector %d)", i, f.SubSectorID)
		}
	}
	return nil
}
