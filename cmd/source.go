package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/fixture"
	"github.com/sells-group/agristat/internal/resilience"
	"github.com/sells-group/agristat/internal/snapshot"
	"github.com/sells-group/agristat/internal/store"
)

// source is where snapshots are loaded from. Store is nil for the file
// driver.
type source struct {
	Loader snapshot.Loader
	Store  store.Store
}

func (s *source) Close() {
	if s.Store != nil {
		_ = s.Store.Close()
	}
}

// startupPolicy retries while the database is unreachable.
func startupPolicy(operation string) resilience.Policy {
	p := resilience.DefaultPolicy()
	if cfg.Store.ConnectAttempts > 0 {
		p.Attempts = cfg.Store.ConnectAttempts
	}
	p.OnRetry = resilience.LogRetries(operation)
	return p
}

func openStore(ctx context.Context) (store.Store, error) {
	poolCfg := &store.PoolConfig{
		MaxConns: cfg.Store.Pool.MaxConns,
		MinConns: cfg.Store.Pool.MinConns,
	}
	st, err := resilience.RetryValue(ctx, startupPolicy("open store"), func(ctx context.Context) (store.Store, error) {
		return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL, poolCfg)
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

func openSource(ctx context.Context) (*source, error) {
	if cfg.Store.Driver == "file" {
		return &source{Loader: fixture.Loader{Path: cfg.Store.FixturePath}}, nil
	}
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	return &source{Loader: store.DatasetLoader{Store: st}, Store: st}, nil
}

func reloadTimeout() time.Duration {
	if cfg.Snapshot.ReloadTimeoutSecs <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(cfg.Snapshot.ReloadTimeoutSecs) * time.Second
}

func snapshotOptions() snapshot.Options {
	return snapshot.Options{SearchMaxResults: cfg.Search.MaxResults}
}

// loadSnapshot builds a one-off snapshot for commands that answer a single
// query and exit.
func loadSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	src, err := openSource(ctx)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(ctx, reloadTimeout())
	defer cancel()

	snap, err := snapshot.NewManager(src.Loader, snapshotOptions()).Reload(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "load snapshot")
	}
	return snap, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
