package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/agristat/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func pid(id int64) *int64 { return &id }

func dataset(regionName string) *model.Dataset {
	return &model.Dataset{
		Zones: []model.Zone{
			{ID: 1, Name: "Cameroun", Level: model.LevelCountry, Code: "CMR"},
			{ID: 2, Name: regionName, Level: model.LevelRegion, Code: "CM001", ParentID: pid(1)},
			{ID: 3, Name: "Lekié", Level: model.LevelDepartement, Code: "CM00101", ParentID: pid(2)},
		},
		Sectors:    []model.Sector{{ID: 1, Name: "Agriculture"}},
		SubSectors: []model.SubSector{{ID: 1, SectorID: 1, Name: "Cacao"}},
		Facts: []model.Fact{
			{SubSectorID: 1, ZoneCode: "CM00101", Year: 2023, Volume: 100, Unit: "t"},
			{SubSectorID: 1, ZoneCode: "CM001", Year: 2023, Volume: 50, Unit: "t"},
		},
	}
}

func brokenDataset() *model.Dataset {
	ds := dataset("Centre")
	ds.Zones[2].ParentID = pid(99)
	return ds
}

// sequenceLoader returns its datasets (or errors) in order, repeating the last.
type sequenceLoader struct {
	mu    sync.Mutex
	steps []func() (*model.Dataset, error)
	calls int
}

func (l *sequenceLoader) Load(context.Context) (*model.Dataset, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := l.calls
	if i >= len(l.steps) {
		i = len(l.steps) - 1
	}
	l.calls++
	return l.steps[i]()
}

func ok(ds *model.Dataset) func() (*model.Dataset, error) {
	return func() (*model.Dataset, error) { return ds, nil }
}

func TestBuild(t *testing.T) {
	s, err := Build(dataset("Centre"), Options{SearchMaxResults: 5})
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 3, s.Tree.Len())
	assert.Equal(t, 2, s.Facts.Len())
	assert.Equal(t, 1, s.Catalog.Len())
	assert.Equal(t, 2, s.Search.Len())

	codes, err := s.Index.DescendantCodes(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CM001", "CM00101"}, codes)
}

// Cache keys are scoped by snapshot ID, so identical data built twice must
// still get distinct IDs.
func TestBuild_IDIsPerBuild(t *testing.T) {
	a, err := Build(dataset("Centre"), Options{})
	require.NoError(t, err)
	b, err := Build(dataset("Centre"), Options{})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ETag(), b.ETag())
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil, Options{})
	require.Error(t, err)

	_, err = Build(brokenDataset(), Options{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrIntegrity))

	ds := dataset("Centre")
	ds.Facts = append(ds.Facts, model.Fact{SubSectorID: 1, Year: 2023})
	_, err = Build(ds, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load facts")
}

func TestManager_CurrentBeforeReload(t *testing.T) {
	m := NewManager(LoaderFunc(func(context.Context) (*model.Dataset, error) {
		return dataset("Centre"), nil
	}), Options{})

	_, err := m.Current()
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoSnapshot))
}

func TestManager_ReloadPublishes(t *testing.T) {
	m := NewManager(&sequenceLoader{steps: []func() (*model.Dataset, error){
		ok(dataset("Centre")), ok(dataset("Centre (renamed)")),
	}}, Options{})
	ctx := context.Background()

	first, err := m.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Generation)

	second, err := m.Reload(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Generation)
	assert.NotEqual(t, first.ID, second.ID)

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Same(t, second, cur)
}

func TestManager_FailedBuildKeepsPrevious(t *testing.T) {
	m := NewManager(&sequenceLoader{steps: []func() (*model.Dataset, error){
		ok(dataset("Centre")), ok(brokenDataset()),
	}}, Options{})
	ctx := context.Background()

	good, err := m.Reload(ctx)
	require.NoError(t, err)

	_, err = m.Reload(ctx)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrIntegrity))

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Same(t, good, cur)
}

func TestManager_LoadErrorKeepsPrevious(t *testing.T) {
	m := NewManager(&sequenceLoader{steps: []func() (*model.Dataset, error){
		ok(dataset("Centre")),
		func() (*model.Dataset, error) { return nil, errors.New("connection refused") },
	}}, Options{})
	ctx := context.Background()

	good, err := m.Reload(ctx)
	require.NoError(t, err)

	_, err = m.Reload(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load dataset")

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Same(t, good, cur)
}

// A reader holding generation N keeps seeing N after N+1 is published.
func TestManager_InFlightReaderKeepsSnapshot(t *testing.T) {
	next := dataset("Centre")
	next.Zones = append(next.Zones, model.Zone{ID: 4, Name: "Mfoundi", Level: model.LevelDepartement, Code: "CM00102", ParentID: pid(2)})

	m := NewManager(&sequenceLoader{steps: []func() (*model.Dataset, error){
		ok(dataset("Centre")), ok(next),
	}}, Options{})
	ctx := context.Background()

	_, err := m.Reload(ctx)
	require.NoError(t, err)
	held, err := m.Current()
	require.NoError(t, err)

	_, err = m.Reload(ctx)
	require.NoError(t, err)

	codes, err := held.Index.DescendantCodes(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CM001", "CM00101"}, codes)
	assert.False(t, held.Tree.Has(4))

	cur, err := m.Current()
	require.NoError(t, err)
	codes, err = cur.Index.DescendantCodes(2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"CM001", "CM00101", "CM00102"}, codes)
}

func TestManager_ConcurrentReloads(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(LoaderFunc(func(context.Context) (*model.Dataset, error) {
		calls.Add(1)
		return dataset("Centre"), nil
	}), Options{})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Reload(context.Background())
			assert.NoError(t, err)
			assert.NotNil(t, s)
		}()
	}
	wg.Wait()

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(calls.Load()), cur.Generation)
}

func TestManager_UpsertFacts(t *testing.T) {
	m := NewManager(LoaderFunc(func(context.Context) (*model.Dataset, error) {
		return dataset("Centre"), nil
	}), Options{})

	_, err := m.UpsertFacts([]model.Fact{{SubSectorID: 1, ZoneCode: "CM001", Year: 2024}})
	assert.True(t, eris.Is(err, ErrNoSnapshot))

	s, err := m.Reload(context.Background())
	require.NoError(t, err)
	etag := s.ETag()

	n, err := m.UpsertFacts([]model.Fact{
		{SubSectorID: 1, ZoneCode: "CM001", Year: 2024, Volume: 10},
		{SubSectorID: 1, ZoneCode: "CM001", Year: 2023, Volume: 60},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 3, s.Facts.Len())
	assert.NotEqual(t, etag, s.ETag())

	info := s.Info()
	assert.Equal(t, 3, info.Zones)
	assert.Equal(t, 3, info.Facts)
	assert.Equal(t, uint64(1), info.Generation)
}

// A write acknowledged while a reload is reading must survive the publish of
// the snapshot built from that read.
func TestManager_UpsertDuringReloadSurvivesPublish(t *testing.T) {
	var (
		blocked = make(chan struct{})
		release = make(chan struct{})
		calls   atomic.Int32
	)
	m := NewManager(LoaderFunc(func(context.Context) (*model.Dataset, error) {
		ds := dataset("Centre")
		if calls.Add(1) == 2 {
			close(blocked)
			<-release
		}
		return ds, nil
	}), Options{})

	_, err := m.Reload(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Reload(context.Background())
		done <- err
	}()
	<-blocked

	late := model.Fact{SubSectorID: 1, ZoneCode: "CM00101", Year: 2024, Volume: 7, Unit: "t"}
	n, err := m.UpsertFacts([]model.Fact{late})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	close(release)
	require.NoError(t, <-done)

	cur, err := m.Current()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), cur.Generation)
	got, found := cur.Facts.Get(late.Key())
	require.True(t, found)
	assert.Equal(t, 7.0, got.Volume)
	assert.Equal(t, 3, cur.Facts.Len())
}

func TestManager_UpsertAfterReloadIsNotReplayed(t *testing.T) {
	m := NewManager(LoaderFunc(func(context.Context) (*model.Dataset, error) {
		return dataset("Centre"), nil
	}), Options{})
	_, err := m.Reload(context.Background())
	require.NoError(t, err)

	_, err = m.UpsertFacts([]model.Fact{{SubSectorID: 1, ZoneCode: "CM001", Year: 2024, Volume: 1}})
	require.NoError(t, err)
	assert.Empty(t, m.pending)

	cur, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Facts.Len())
}
