package aggregate

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/agristat/internal/factstore"
	"github.com/sells-group/agristat/internal/model"
	"github.com/sells-group/agristat/internal/snapshot"
)

const (
	cmr     int64 = 1
	centre  int64 = 2
	nord    int64 = 3
	lekie   int64 = 4
	mfoundi int64 = 5
	benoue  int64 = 6
	obala   int64 = 7
	est     int64 = 8
	sud     int64 = 9

	cacao  int64 = 1
	mais   int64 = 2
	bovins int64 = 3
)

func pid(id int64) *int64 { return &id }

func fixture() *model.Dataset {
	return &model.Dataset{
		Zones: []model.Zone{
			{ID: cmr, Name: "Cameroun", Level: model.LevelCountry, Code: "CMR"},
			{ID: centre, Name: "Centre", Level: model.LevelRegion, Code: "CM001", ParentID: pid(cmr)},
			{ID: nord, Name: "Nord", Level: model.LevelRegion, Code: "CM002", ParentID: pid(cmr)},
			{ID: lekie, Name: "Lekié", Level: model.LevelDepartement, Code: "CM00101", ParentID: pid(centre)},
			{ID: mfoundi, Name: "Mfoundi", Level: model.LevelDepartement, Code: "CM00102", ParentID: pid(centre)},
			{ID: benoue, Name: "Bénoué", Level: model.LevelDepartement, Code: "CM00201", ParentID: pid(nord)},
			{ID: obala, Name: "Obala", Level: model.LevelArrondissement, Code: "CM0010101", ParentID: pid(lekie)},
			{ID: est, Name: "Est", Level: model.LevelRegion, Code: "CM003", ParentID: pid(cmr)},
			{ID: sud, Name: "Sud", Level: model.LevelRegion, Code: "CM004", ParentID: pid(cmr)},
		},
		Sectors: []model.Sector{
			{ID: 1, Name: "Agriculture"},
			{ID: 2, Name: "Élevage"},
		},
		SubSectors: []model.SubSector{
			{ID: cacao, SectorID: 1, Name: "Cacao", Color: "#6b3e26"},
			{ID: mais, SectorID: 1, Name: "Maïs", Color: "#f2c200"},
			{ID: bovins, SectorID: 2, Name: "Bovins", Color: "#a0522d"},
		},
		Facts: []model.Fact{
			{SubSectorID: cacao, ZoneCode: "CM00101", Year: 2023, Volume: 100, Unit: "t", ProducerCount: 12},
			{SubSectorID: cacao, ZoneCode: "CM001", Year: 2023, Volume: 50, Unit: "t"},
			{SubSectorID: mais, ZoneCode: "CM00102", Year: 2023, Volume: 400, Unit: "t", ProducerCount: 10},
			{SubSectorID: mais, ZoneCode: "CM00201", Year: 2022, Volume: 300, Unit: "t", ProducerCount: 5},
			{SubSectorID: bovins, ZoneCode: "CM00201", Year: 2023, Volume: 80, Unit: "têtes"},
			{SubSectorID: cacao, ZoneCode: "CM0010101", Year: 2022, Volume: 20, Unit: "t"},
			{SubSectorID: bovins, ZoneCode: "CM003", Year: 2020, Volume: 10, Unit: "têtes"},
			{SubSectorID: cacao, ZoneCode: "CM003", Year: 2020, Volume: 10, Unit: "t"},
		},
	}
}

func engine(t *testing.T) (*Engine, *snapshot.Snapshot) {
	t.Helper()
	s, err := snapshot.Build(fixture(), snapshot.Options{})
	require.NoError(t, err)
	return New(s), s
}

func TestRollup_SubtreeSums(t *testing.T) {
	e, _ := engine(t)

	tests := []struct {
		name string
		zone int64
		want float64
	}{
		{"region includes own and descendant facts", centre, 150},
		{"departement", lekie, 100},
		{"country", cmr, 150},
		{"region without cacao", nord, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Rollup(tt.zone, cacao, factstore.Year(2023))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Total)
		})
	}
}

func TestRollup_Unit(t *testing.T) {
	e, _ := engine(t)

	got, err := e.Rollup(centre, cacao, nil)
	require.NoError(t, err)
	assert.Equal(t, Total{Total: 170, Unit: "t"}, got)

	empty, err := e.Rollup(sud, cacao, nil)
	require.NoError(t, err)
	assert.Equal(t, Total{}, empty)
}

func TestRollup_LeafIsOwnFacts(t *testing.T) {
	e, _ := engine(t)

	got, err := e.Rollup(obala, cacao, nil)
	require.NoError(t, err)
	assert.Equal(t, 20.0, got.Total)
}

func TestRollup_RootIsWholeStore(t *testing.T) {
	e, s := engine(t)

	for _, id := range []int64{cacao, mais, bovins} {
		var want float64
		for _, f := range fixture().Facts {
			if f.SubSectorID == id {
				want += f.Volume
			}
		}
		got, err := e.Rollup(cmr, id, nil)
		require.NoError(t, err)
		assert.Equal(t, want, got.Total, "sub-sector %d", id)
	}
	assert.Equal(t, len(fixture().Facts), s.Facts.Len())
}

func TestRollup_Errors(t *testing.T) {
	e, _ := engine(t)

	_, err := e.Rollup(404, cacao, nil)
	assert.True(t, eris.Is(err, model.ErrNotFound))

	_, err = e.Rollup(cmr, cacao, factstore.Between(2024, 2021))
	assert.True(t, eris.Is(err, model.ErrInvalidFilter))

	got, err := e.Rollup(cmr, 999, nil)
	require.NoError(t, err)
	assert.Equal(t, Total{}, got)
}

func TestRollup_SeesUpserts(t *testing.T) {
	e, s := engine(t)

	require.NoError(t, s.Facts.Upsert(model.Fact{SubSectorID: cacao, ZoneCode: "CM00101", Year: 2023, Volume: 130, Unit: "t"}))

	got, err := e.Rollup(centre, cacao, factstore.Year(2023))
	require.NoError(t, err)
	assert.Equal(t, 180.0, got.Total)
}

func TestTopSectors(t *testing.T) {
	e, _ := engine(t)

	got, err := e.TopSectors(cmr, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, SectorVolume{SubSectorID: mais, Name: "Maïs", Category: "Agriculture", Volume: 700, Unit: "t"}, got[0])
	assert.Equal(t, "Cacao", got[1].Name)
	assert.Equal(t, 180.0, got[1].Volume)
	assert.Equal(t, "Bovins", got[2].Name)
	assert.Equal(t, "Élevage", got[2].Category)
	assert.Equal(t, "têtes", got[2].Unit)

	top1, err := e.TopSectors(cmr, nil, 1)
	require.NoError(t, err)
	require.Len(t, top1, 1)
	assert.Equal(t, mais, top1[0].SubSectorID)

	inYear, err := e.TopSectors(cmr, factstore.Year(2023), 0)
	require.NoError(t, err)
	require.Len(t, inYear, 3)
	assert.Equal(t, []float64{400, 150, 80}, []float64{inYear[0].Volume, inYear[1].Volume, inYear[2].Volume})
}

func TestTopSectors_TiesKeepFirstSeen(t *testing.T) {
	e, _ := engine(t)

	got, err := e.TopSectors(est, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Bovins", got[0].Name)
	assert.Equal(t, "Cacao", got[1].Name)
}

func TestTopSectors_UncataloguedSubSector(t *testing.T) {
	e, s := engine(t)
	require.NoError(t, s.Facts.Upsert(model.Fact{SubSectorID: 99, ZoneCode: "CM004", Year: 2023, Volume: 1}))

	got, err := e.TopSectors(sud, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "sub-sector 99", got[0].Name)
	assert.Empty(t, got[0].Category)
}

func TestBreakdown(t *testing.T) {
	e, _ := engine(t)

	got, err := e.Breakdown(nord)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Maïs", got[0].Name)
	assert.Equal(t, "Bovins", got[1].Name)

	empty, err := e.Breakdown(sud)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestEvolution(t *testing.T) {
	e, _ := engine(t)

	got, err := e.Evolution(cmr, factstore.YearRange{From: 2021, To: 2024})
	require.NoError(t, err)

	assert.Equal(t, []EvolutionRow{
		{Year: 2022, Sector: "Cacao", Category: "Agriculture", Volume: 20},
		{Year: 2022, Sector: "Maïs", Category: "Agriculture", Volume: 300},
		{Year: 2023, Sector: "Cacao", Category: "Agriculture", Volume: 150},
		{Year: 2023, Sector: "Maïs", Category: "Agriculture", Volume: 400},
		{Year: 2023, Sector: "Bovins", Category: "Élevage", Volume: 80},
	}, got.Rows)
	assert.Equal(t, []string{"Cacao", "Maïs", "Bovins"}, got.Sectors)
	assert.Equal(t, map[string]string{
		"Cacao":  "AGRICULTURE",
		"Maïs":   "AGRICULTURE",
		"Bovins": "ÉLEVAGE",
	}, got.Categories)
	require.Len(t, got.Series, 2)
	assert.Equal(t, YearPoint{Year: 2022, Volumes: map[string]float64{"Cacao": 20, "Maïs": 300}}, got.Series[0])
	assert.Equal(t, 2023, got.Series[1].Year)
	assert.Equal(t, 80.0, got.Series[1].Volumes["Bovins"])
}

func TestEvolution_Errors(t *testing.T) {
	e, _ := engine(t)

	_, err := e.Evolution(cmr, factstore.YearRange{From: 2024, To: 2021})
	assert.True(t, eris.Is(err, model.ErrInvalidFilter))

	_, err = e.Evolution(404, factstore.YearRange{From: 2021, To: 2024})
	assert.True(t, eris.Is(err, model.ErrNotFound))

	empty, err := e.Evolution(sud, factstore.YearRange{From: 2021, To: 2024})
	require.NoError(t, err)
	assert.Empty(t, empty.Rows)
	assert.Empty(t, empty.Series)
}

func TestCompare(t *testing.T) {
	e, _ := engine(t)

	got, err := e.Compare(cmr)
	require.NoError(t, err)
	assert.Equal(t, []Comparison{
		{ZoneID: centre, Name: "Centre", Value: 400},
		{ZoneID: nord, Name: "Nord", Value: 300},
		{ZoneID: est, Name: "Est", Value: 0},
		{ZoneID: sud, Name: "Sud", Value: 0},
	}, got)

	dom, ok, err := e.Dominant(cmr)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Maïs", dom.Name)
}

func TestCompare_ChildWithoutDominantReportsZero(t *testing.T) {
	e, _ := engine(t)

	got, err := e.Compare(centre)
	require.NoError(t, err)
	assert.Equal(t, []Comparison{
		{ZoneID: lekie, Name: "Lekié", Value: 0},
		{ZoneID: mfoundi, Name: "Mfoundi", Value: 400},
	}, got)
}

func TestCompare_EmptyCases(t *testing.T) {
	e, _ := engine(t)

	noFacts, err := e.Compare(sud)
	require.NoError(t, err)
	assert.Empty(t, noFacts)

	_, ok, err := e.Dominant(sud)
	require.NoError(t, err)
	assert.False(t, ok)

	leaf, err := e.Compare(obala)
	require.NoError(t, err)
	assert.Empty(t, leaf)

	_, err = e.Compare(404)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestSummary(t *testing.T) {
	e, _ := engine(t)

	got, err := e.Summary(cmr, 0)
	require.NoError(t, err)
	assert.Len(t, got.TopProducts, 3)
	assert.Equal(t, int64(27), got.TotalProducers)

	one, err := e.Summary(nord, 1)
	require.NoError(t, err)
	require.Len(t, one.TopProducts, 1)
	assert.Equal(t, "Maïs", one.TopProducts[0].Name)
	assert.Equal(t, int64(5), one.TotalProducers)
}

func TestAvailableSubSectors(t *testing.T) {
	e, s := engine(t)
	require.NoError(t, s.Facts.Upsert(model.Fact{SubSectorID: 99, ZoneCode: "CM004", Year: 2023, Volume: 1}))

	all, err := e.AvailableSubSectors(nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Agriculture", all[0].Category)
	require.Len(t, all[0].SubSectors, 2)
	assert.Equal(t, "Cacao", all[0].SubSectors[0].Name)
	assert.Equal(t, "Maïs", all[0].SubSectors[1].Name)
	assert.Equal(t, "Élevage", all[1].Category)
	assert.Equal(t, "#a0522d", all[1].SubSectors[0].Color)

	scoped, err := e.AvailableSubSectors(pid(centre))
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Len(t, scoped[0].SubSectors, 2)

	none, err := e.AvailableSubSectors(pid(sud))
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = e.AvailableSubSectors(pid(404))
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestMapLayer(t *testing.T) {
	e, _ := engine(t)

	got, err := e.MapLayer(model.LevelDepartement, nil, cacao, nil)
	require.NoError(t, err)
	require.Len(t, got.Zones, 3)
	assert.Equal(t, "Lekié", got.Zones[0].Zone.Name)
	assert.Equal(t, 120.0, got.Zones[0].Value)
	assert.Equal(t, 0.0, got.Zones[1].Value)
	assert.Equal(t, 120.0, got.Total)
	assert.Equal(t, "t", got.Unit)
	require.NotNil(t, got.SubSector)
	assert.Equal(t, "Cacao", got.SubSector.Name)
	assert.Equal(t, "Agriculture", got.SubSector.Category)

	regions, err := e.MapLayer(model.LevelRegion, pid(cmr), mais, factstore.Year(2023))
	require.NoError(t, err)
	require.Len(t, regions.Zones, 4)
	assert.Equal(t, 400.0, regions.Zones[0].Value)
	assert.Equal(t, 0.0, regions.Zones[1].Value)
	assert.Equal(t, 400.0, regions.Total)
}

func TestMapLayer_Errors(t *testing.T) {
	e, _ := engine(t)

	_, err := e.MapLayer(model.Level("CANTON"), nil, cacao, nil)
	assert.True(t, eris.Is(err, model.ErrInvalidFilter))

	_, err = e.MapLayer(model.LevelRegion, nil, cacao, factstore.Between(0, 2023))
	assert.True(t, eris.Is(err, model.ErrInvalidFilter))

	unknown, err := e.MapLayer(model.LevelRegion, nil, 999, nil)
	require.NoError(t, err)
	assert.Nil(t, unknown.SubSector)
	assert.Zero(t, unknown.Total)
}
