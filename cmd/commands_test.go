package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/agristat/internal/aggregate"
	"github.com/sells-group/agristat/internal/config"
	"github.com/sells-group/agristat/internal/fixture"
	"github.com/sells-group/agristat/internal/model"
	"github.com/sells-group/agristat/internal/snapshot"
)

const fixturePath = "../internal/fixture/testdata/cameroun.yaml"

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func useConfig(t *testing.T, store config.StoreConfig) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{
		Store:  store,
		Search: config.SearchConfig{MaxResults: 10},
		Stats:  config.StatsConfig{EvolutionFrom: 2021, EvolutionTo: 2024, TopProducts: 5},
	}
	t.Cleanup(func() {
		cfg = prev
		queryZone, queryFrom, queryTo, querySector, queryTop = 0, 0, 0, 0, 0
		queryLevel, queryParent, queryParentSet = "REGION", 0, false
		factsDryRun = false
	})
}

func useFixture(t *testing.T) {
	useConfig(t, config.StoreConfig{Driver: "file", FixturePath: fixturePath})
}

func useSQLite(t *testing.T) {
	useConfig(t, config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "agristat.db")})
}

// execute runs a command's RunE with a captured stdout.
func execute(t *testing.T, c *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	run := &cobra.Command{}
	run.SetContext(context.Background())
	run.SetOut(&out)
	err := c.RunE(run, args)
	return out.String(), err
}

func TestQueryRollup(t *testing.T) {
	useFixture(t)
	queryZone, querySector = 2, 1

	out, err := execute(t, queryRollupCmd)
	require.NoError(t, err)
	var total aggregate.Total
	require.NoError(t, json.Unmarshal([]byte(out), &total))
	assert.InDelta(t, 170.0, total.Total, 1e-9)
	assert.Equal(t, "t", total.Unit)

	queryFrom, queryTo = 2023, 2023
	out, err = execute(t, queryRollupCmd)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &total))
	assert.InDelta(t, 150.0, total.Total, 1e-9)
}

func TestQueryRollup_UnknownZone(t *testing.T) {
	useFixture(t)
	queryZone, querySector = 404, 1

	_, err := execute(t, queryRollupCmd)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrNotFound))
}

func TestQueryRollup_LoneBoundUsesConfiguredWindow(t *testing.T) {
	useFixture(t)
	queryZone, querySector, queryTo = 1, 1, 2022

	yr := queryYears()
	require.NotNil(t, yr)
	assert.Equal(t, 2021, yr.From)
	assert.Equal(t, 2022, yr.To)

	out, err := execute(t, queryRollupCmd)
	require.NoError(t, err)
	var total aggregate.Total
	require.NoError(t, json.Unmarshal([]byte(out), &total))
	assert.InDelta(t, 20.0, total.Total, 1e-9)
}

func TestQueryTop(t *testing.T) {
	useFixture(t)
	queryZone, queryTop = 1, 2

	out, err := execute(t, queryTopCmd)
	require.NoError(t, err)
	var rows []aggregate.SectorVolume
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "Maïs", rows[0].Name)
	assert.Equal(t, "Cacao", rows[1].Name)
}

func TestQueryEvolution_DefaultWindow(t *testing.T) {
	useFixture(t)
	queryZone = 2

	out, err := execute(t, queryEvolutionCmd)
	require.NoError(t, err)
	var ev aggregate.Evolution
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	require.Len(t, ev.Series, 2)
	assert.Equal(t, 2022, ev.Series[0].Year)
	assert.Equal(t, 2023, ev.Series[1].Year)
	assert.Equal(t, "AGRICULTURE", ev.Categories["Maïs"])
}

func TestQueryEvolution_InvertedWindow(t *testing.T) {
	useFixture(t)
	queryZone, queryFrom, queryTo = 2, 2024, 2021

	_, err := execute(t, queryEvolutionCmd)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrInvalidFilter))
}

func TestQueryCompare(t *testing.T) {
	useFixture(t)
	queryZone = 1

	out, err := execute(t, queryCompareCmd)
	require.NoError(t, err)
	var rows []aggregate.Comparison
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 4)
	assert.Equal(t, "Centre", rows[0].Name)
	assert.InDelta(t, 400.0, rows[0].Value, 1e-9)
}

func TestQuerySummary_DefaultsToConfiguredTop(t *testing.T) {
	useFixture(t)
	queryZone = 1

	out, err := execute(t, querySummaryCmd)
	require.NoError(t, err)
	var sum aggregate.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &sum))
	assert.Len(t, sum.TopProducts, 3)
	assert.Equal(t, int64(27), sum.TotalProducers)
}

func TestQueryFilters_Parent(t *testing.T) {
	useFixture(t)
	queryParent, queryParentSet = 3, true

	out, err := execute(t, queryFiltersCmd)
	require.NoError(t, err)
	var groups []aggregate.CategoryGroup
	require.NoError(t, json.Unmarshal([]byte(out), &groups))
	require.Len(t, groups, 2)
	assert.Equal(t, "Agriculture", groups[0].Category)
	assert.Equal(t, "Maïs", groups[0].SubSectors[0].Name)
	assert.Equal(t, "Élevage", groups[1].Category)
}

func TestQueryMap(t *testing.T) {
	useFixture(t)
	querySector, queryLevel = 1, "region"

	out, err := execute(t, queryMapCmd)
	require.NoError(t, err)
	var layer aggregate.MapLayer
	require.NoError(t, json.Unmarshal([]byte(out), &layer))
	assert.Len(t, layer.Zones, 4)
	assert.InDelta(t, 180.0, layer.Total, 1e-9)
	require.NotNil(t, layer.SubSector)
	assert.Equal(t, "Cacao", layer.SubSector.Name)

	queryLevel = "province"
	_, err = execute(t, queryMapCmd)
	assert.True(t, eris.Is(err, model.ErrInvalidFilter))
}

func TestQuerySearch(t *testing.T) {
	useFixture(t)

	out, err := execute(t, querySearchCmd, "LEKIE")
	require.NoError(t, err)
	var hits []model.Zone
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "Lekié", hits[0].Name)

	out, err = execute(t, querySearchCmd, "x")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestStatus(t *testing.T) {
	useFixture(t)

	out, err := execute(t, statusCmd)
	require.NoError(t, err)
	var info snapshot.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 9, info.Zones)
	assert.Equal(t, 3, info.SubSectors)
	assert.Equal(t, 8, info.Facts)
	assert.NotEmpty(t, info.ID)
}

func TestStatus_MissingFixture(t *testing.T) {
	useConfig(t, config.StoreConfig{Driver: "file", FixturePath: filepath.Join(t.TempDir(), "missing.yaml")})

	_, err := execute(t, statusCmd)
	require.Error(t, err)
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadFacts(t *testing.T) {
	path := writeFile(t, "facts.yaml", `
- {sub_sector_id: 1, zone_code: CM004, year: 2023, volume: 5, unit: t}
- {sub_sector_id: 2, zone_code: CM004, year: 2023, volume: 7, unit: t, producer_count: 3}
`)
	facts, err := readFacts(path)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, int64(3), facts[1].ProducerCount)

	jsonPath := writeFile(t, "facts.json", `[{"sub_sector_id": 1, "zone_code": "CM004", "year": 2023, "volume": 5}]`)
	facts, err = readFacts(jsonPath)
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

func TestReadFacts_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":       `[]`,
		"no code":     `[{sub_sector_id: 1, year: 2023, volume: 5}]`,
		"no year":     `[{sub_sector_id: 1, zone_code: CM004, volume: 5}]`,
		"unknown key": `[{sub_sector_id: 1, zone_code: CM004, year: 2023, tonnes: 5}]`,
		"not a list":  `zone_code: CM004`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := readFacts(writeFile(t, "facts.yaml", body))
			assert.Error(t, err)
		})
	}

	_, err := readFacts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFactsImport_DryRunAndFileDriver(t *testing.T) {
	useFixture(t)
	path := writeFile(t, "facts.yaml", `[{sub_sector_id: 1, zone_code: CM004, year: 2023, volume: 5}]`)

	factsDryRun = true
	_, err := execute(t, factsImportCmd, path)
	require.NoError(t, err)

	factsDryRun = false
	_, err = execute(t, factsImportCmd, path)
	assert.True(t, eris.Is(err, errFileDriver))
}

func TestSQLite_SeedImportQueryExport(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, fixtureSeedCmd, fixturePath)
	require.NoError(t, err)

	path := writeFile(t, "facts.yaml", `
- {sub_sector_id: 1, zone_code: CM004, year: 2023, volume: 5, unit: t}
- {sub_sector_id: 1, zone_code: CM00101, year: 2023, volume: 130, unit: t, producer_count: 12}
`)
	_, err = execute(t, factsImportCmd, path)
	require.NoError(t, err)

	queryZone, querySector = 1, 1
	out, err := execute(t, queryRollupCmd)
	require.NoError(t, err)
	var total aggregate.Total
	require.NoError(t, json.Unmarshal([]byte(out), &total))
	// 180 seeded, CM00101 replaced 100 -> 130, CM004 adds 5
	assert.InDelta(t, 215.0, total.Total, 1e-9)

	exported := filepath.Join(t.TempDir(), "export.yaml")
	_, err = execute(t, fixtureExportCmd, exported)
	require.NoError(t, err)

	ds, err := fixture.Load(exported)
	require.NoError(t, err)
	assert.Len(t, ds.Zones, 9)
	assert.Len(t, ds.Facts, 9)
	assert.NotEmpty(t, ds.Zones[1].Geometry)
}

func TestFixtureCommands_FileDriver(t *testing.T) {
	useFixture(t)

	_, err := execute(t, fixtureSeedCmd, fixturePath)
	assert.True(t, eris.Is(err, errFileDriver))
	_, err = execute(t, fixtureExportCmd, filepath.Join(t.TempDir(), "out.yaml"))
	assert.True(t, eris.Is(err, errFileDriver))
}

func TestMigrate_SQLite(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, migrateCmd)
	require.NoError(t, err)
	// idempotent
	_, err = execute(t, migrateCmd)
	require.NoError(t, err)
}

func TestMigrate_RejectsFileDriver(t *testing.T) {
	useFixture(t)

	_, err := execute(t, migrateCmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no schema")
}
