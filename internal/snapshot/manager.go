package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/agristat/internal/model"
)

// ErrNoSnapshot is returned before the first successful load.
var ErrNoSnapshot = eris.New("snapshot: no snapshot published")

// Loader produces the dataset a snapshot is built from.
type Loader interface {
	Load(ctx context.Context) (*model.Dataset, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (*model.Dataset, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context) (*model.Dataset, error) { return f(ctx) }

// Manager owns the active snapshot. Readers call Current once per request and
// keep the returned pointer for the whole request; a concurrent Reload never
// mutates it.
type Manager struct {
	loader     Loader
	opts       Options
	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	flight     singleflight.Group

	// mu orders fact writes against the publish step of a reload. While a
	// reload is loading, writes are also kept in pending and replayed into
	// the new snapshot before it is published.
	mu        sync.Mutex
	reloading bool
	pending   []model.Fact
}

// NewManager creates a Manager with no active snapshot. Call Reload before
// serving queries.
func NewManager(loader Loader, opts Options) *Manager {
	return &Manager{loader: loader, opts: opts}
}

// Current returns the active snapshot.
func (m *Manager) Current() (*Snapshot, error) {
	s := m.current.Load()
	if s == nil {
		return nil, ErrNoSnapshot
	}
	return s, nil
}

// Reload loads a fresh dataset, builds a new snapshot off to the side and
// publishes it. Concurrent callers share one build. On failure the previous
// snapshot stays active and the error is returned.
func (m *Manager) Reload(ctx context.Context) (*Snapshot, error) {
	v, err, shared := m.flight.Do("reload", func() (any, error) {
		return m.reload(ctx)
	})
	if shared {
		zap.L().Debug("snapshot: joined in-flight reload")
	}
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func (m *Manager) reload(ctx context.Context) (*Snapshot, error) {
	log := zap.L().With(zap.String("component", "snapshot.manager"))
	start := time.Now()

	m.mu.Lock()
	m.reloading, m.pending = true, nil
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.reloading, m.pending = false, nil
		m.mu.Unlock()
	}()

	ds, err := m.loader.Load(ctx)
	if err != nil {
		reloadsTotal.WithLabelValues("load_error").Inc()
		log.Error("dataset load failed, keeping previous snapshot", zap.Error(err))
		return nil, eris.Wrap(err, "snapshot: load dataset")
	}

	next, err := Build(ds, m.opts)
	if err != nil {
		reloadsTotal.WithLabelValues("build_error").Inc()
		log.Error("snapshot build failed, keeping previous snapshot", zap.Error(err))
		return nil, err
	}

	m.mu.Lock()
	replayed, err := next.Facts.UpsertAll(m.pending)
	if err == nil {
		m.Publish(next)
	}
	m.mu.Unlock()
	if err != nil {
		reloadsTotal.WithLabelValues("build_error").Inc()
		return nil, eris.Wrap(err, "snapshot: replay facts written during reload")
	}
	if replayed > 0 {
		log.Info("replayed facts written during reload", zap.Int("facts", replayed))
	}

	elapsed := time.Since(start)
	buildDuration.Observe(elapsed.Seconds())
	reloadsTotal.WithLabelValues("ok").Inc()

	log.Info("snapshot published",
		zap.String("id", next.ID),
		zap.Uint64("generation", next.Generation),
		zap.Int("zones", next.Tree.Len()),
		zap.Int("facts", next.Facts.Len()),
		zap.Duration("duration", elapsed),
	)
	return next, nil
}

// Publish assigns s the next generation number and makes it active.
func (m *Manager) Publish(s *Snapshot) {
	s.Generation = m.generation.Add(1)
	m.current.Store(s)

	generationGauge.Set(float64(s.Generation))
	zonesGauge.Set(float64(s.Tree.Len()))
	factsGauge.Set(float64(s.Facts.Len()))
}

// UpsertFacts writes facts into the active snapshot's store. Facts are not
// part of the tree generation, so no rebuild is triggered. Facts written while
// a reload is in progress are carried into the snapshot it publishes.
func (m *Manager) UpsertFacts(facts []model.Fact) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.Current()
	if err != nil {
		return 0, err
	}
	n, err := s.Facts.UpsertAll(facts)
	if m.reloading {
		m.pending = append(m.pending, facts[:n]...)
	}
	factsGauge.Set(float64(s.Facts.Len()))
	if err != nil {
		return n, eris.Wrap(err, "snapshot: upsert facts")
	}
	return n, nil
}
