package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/agristat/internal/db"
	"github.com/sells-group/agristat/internal/model"
)

// PostgresStore implements Store on a PostGIS database.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig sizes the pgx pool. Zero fields keep the defaults of 10 max
// and 2 idle connections.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

func (pc *PoolConfig) apply(c *pgxpool.Config) {
	c.MaxConns, c.MinConns = 10, 2
	c.MaxConnLifetime = 30 * time.Minute
	c.MaxConnIdleTime = 5 * time.Minute
	if pc == nil {
		return
	}
	if pc.MaxConns > 0 {
		c.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		c.MinConns = pc.MinConns
	}
}

// NewPostgres connects to dsn and verifies the database answers.
func NewPostgres(ctx context.Context, dsn string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: invalid database url")
	}
	poolCfg.apply(pgxCfg)

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies the embedded migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// parent_id is TEXT in databases created by the legacy loader, where "",
// "null" and "undefined" all mean no parent; only digit strings are kept.
const loadZonesSQL = `SELECT id, name, level, code,
	CASE WHEN parent_id::text ~ '^[0-9]+$' THEN parent_id::text::bigint END AS parent_id,
	ST_AsBinary(geometry) AS geometry
FROM administrative_zones
ORDER BY id`

// LoadZones reads every administrative zone with its geometry as WKB.
func (s *PostgresStore) LoadZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.pool.Query(ctx, loadZonesSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load zones")
	}
	defer rows.Close()

	var out []model.Zone
	for rows.Next() {
		var (
			z     model.Zone
			level string
		)
		if err := rows.Scan(&z.ID, &z.Name, &level, &z.Code, &z.ParentID, &z.Geometry); err != nil {
			return nil, eris.Wrap(err, "postgres: scan zone")
		}
		z.Level = normalizeLevel(level)
		out = append(out, z)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate zones")
}

// LoadSectors reads the sector table.
func (s *PostgresStore) LoadSectors(ctx context.Context) ([]model.Sector, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM sectors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load sectors")
	}
	defer rows.Close()

	var out []model.Sector
	for rows.Next() {
		var sec model.Sector
		if err := rows.Scan(&sec.ID, &sec.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sector")
		}
		out = append(out, sec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sectors")
}

// LoadSubSectors reads the sub-sector table.
func (s *PostgresStore) LoadSubSectors(ctx context.Context) ([]model.SubSector, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, sector_id, name, COALESCE(color, '') FROM sub_sectors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load sub-sectors")
	}
	defer rows.Close()

	var out []model.SubSector
	for rows.Next() {
		var ss model.SubSector
		if err := rows.Scan(&ss.ID, &ss.SectorID, &ss.Name, &ss.Color); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sub-sector")
		}
		out = append(out, ss)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate sub-sectors")
}

const loadFactsSQL = `SELECT sub_sector_id, zone_code, year,
	COALESCE(volume, 0)::float8, COALESCE(unit, ''),
	COALESCE(surface_area, 0)::float8, COALESCE(yield, 0)::float8,
	COALESCE(producer_count, 0)::bigint, COALESCE(average_price, 0)::float8,
	COALESCE(description, '')
FROM production_stats
ORDER BY id`

// LoadFacts reads every production fact in insertion order.
func (s *PostgresStore) LoadFacts(ctx context.Context) ([]model.Fact, error) {
	rows, err := s.pool.Query(ctx, loadFactsSQL)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load facts")
	}
	defer rows.Close()

	var out []model.Fact
	for rows.Next() {
		var f model.Fact
		if err := rows.Scan(&f.SubSectorID, &f.ZoneCode, &f.Year,
			&f.Volume, &f.Unit, &f.SurfaceArea, &f.Yield,
			&f.ProducerCount, &f.AveragePrice, &f.Description,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate facts")
}

var factTable = db.Table{
	Name: "production_stats",
	Columns: []string{
		"sub_sector_id", "zone_code", "year", "volume", "unit",
		"surface_area", "yield", "producer_count", "average_price", "description",
	},
	Key: []string{"sub_sector_id", "zone_code", "year"},
}

func factRows(facts []model.Fact) [][]any {
	rows := make([][]any, len(facts))
	for i, f := range facts {
		rows[i] = []any{
			f.SubSectorID, f.ZoneCode, int32(f.Year), f.Volume, f.Unit,
			f.SurfaceArea, f.Yield, f.ProducerCount, f.AveragePrice, f.Description,
		}
	}
	return rows
}

// UpsertFacts writes facts through db.Upsert; a fact replaces any stored
// fact with the same key wholesale.
func (s *PostgresStore) UpsertFacts(ctx context.Context, facts []model.Fact) (int64, error) {
	if err := validateFacts(facts); err != nil {
		return 0, err
	}
	n, err := db.Upsert(ctx, s.pool, factTable, factRows(dedupeFacts(facts)))
	return n, eris.Wrap(err, "postgres: upsert facts")
}

const upsertZoneSQL = `INSERT INTO administrative_zones (id, name, level, code, parent_id, geometry)
VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_GeomFromWKB($6::bytea), 4326))
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name, level = EXCLUDED.level, code = EXCLUDED.code,
	parent_id = EXCLUDED.parent_id, geometry = EXCLUDED.geometry`

var (
	sectorTable    = db.Table{Name: "sectors", Columns: []string{"id", "name"}, Key: []string{"id"}}
	subSectorTable = db.Table{Name: "sub_sectors", Columns: []string{"id", "sector_id", "name", "color"}, Key: []string{"id"}}
)

// Seed writes a full dataset in one transaction: catalog, zones, then facts.
// A failure at any step leaves the database as it was.
func (s *PostgresStore) Seed(ctx context.Context, ds *model.Dataset) error {
	if ds == nil {
		return eris.New("postgres: seed: nil dataset")
	}
	if err := validateFacts(ds.Facts); err != nil {
		return eris.Wrap(err, "postgres: seed")
	}

	sectorRows := make([][]any, len(ds.Sectors))
	for i, sec := range ds.Sectors {
		sectorRows[i] = []any{sec.ID, sec.Name}
	}
	subRows := make([][]any, len(ds.SubSectors))
	for i, ss := range ds.SubSectors {
		subRows[i] = []any{ss.ID, ss.SectorID, ss.Name, ss.Color}
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := db.UpsertTx(ctx, tx, sectorTable, sectorRows); err != nil {
			return eris.Wrap(err, "postgres: seed sectors")
		}
		if _, err := db.UpsertTx(ctx, tx, subSectorTable, subRows); err != nil {
			return eris.Wrap(err, "postgres: seed sub-sectors")
		}
		if err := seedZones(ctx, tx, ds.Zones); err != nil {
			return err
		}
		if _, err := db.UpsertTx(ctx, tx, factTable, factRows(dedupeFacts(ds.Facts))); err != nil {
			return eris.Wrap(err, "postgres: seed facts")
		}
		return nil
	})
}

func seedZones(ctx context.Context, tx pgx.Tx, zones []model.Zone) error {
	for _, z := range zones {
		var geom []byte
		if len(z.Geometry) > 0 {
			geom = z.Geometry
		}
		if _, err := tx.Exec(ctx, upsertZoneSQL, z.ID, z.Name, string(z.Level), z.Code, z.ParentID, geom); err != nil {
			return eris.Wrapf(err, "postgres: seed zone %s", z.Code)
		}
	}
	return nil
}
