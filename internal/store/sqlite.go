package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/agristat/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Geometry is kept as
// a WKB blob.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS administrative_zones (
	id        INTEGER PRIMARY KEY,
	name      TEXT NOT NULL,
	level     TEXT NOT NULL,
	code      TEXT NOT NULL UNIQUE,
	parent_id INTEGER,
	geometry  BLOB
);

CREATE TABLE IF NOT EXISTS sectors (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS sub_sectors (
	id        INTEGER PRIMARY KEY,
	sector_id INTEGER NOT NULL REFERENCES sectors(id),
	name      TEXT NOT NULL,
	color     TEXT NOT NULL DEFAULT '',
	UNIQUE (sector_id, name)
);

CREATE TABLE IF NOT EXISTS production_stats (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	sub_sector_id  INTEGER NOT NULL REFERENCES sub_sectors(id),
	zone_code      TEXT NOT NULL,
	year           INTEGER NOT NULL,
	volume         REAL NOT NULL DEFAULT 0,
	unit           TEXT NOT NULL DEFAULT '',
	surface_area   REAL NOT NULL DEFAULT 0,
	yield          REAL NOT NULL DEFAULT 0,
	producer_count INTEGER NOT NULL DEFAULT 0,
	average_price  REAL NOT NULL DEFAULT 0,
	description    TEXT NOT NULL DEFAULT '',
	UNIQUE (sub_sector_id, zone_code, year)
);

CREATE INDEX IF NOT EXISTS idx_administrative_zones_parent ON administrative_zones(parent_id);
CREATE INDEX IF NOT EXISTS idx_production_stats_zone_code ON production_stats(zone_code);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadZones reads every zone in id order.
func (s *SQLiteStore) LoadZones(ctx context.Context) ([]model.Zone, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, level, code, parent_id, geometry FROM administrative_zones ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load zones")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Zone
	for rows.Next() {
		var (
			z      model.Zone
			level  string
			parent sql.NullInt64
		)
		if err := rows.Scan(&z.ID, &z.Name, &level, &z.Code, &parent, &z.Geometry); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan zone")
		}
		z.Level = normalizeLevel(level)
		if parent.Valid {
			p := parent.Int64
			z.ParentID = &p
		}
		out = append(out, z)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate zones")
}

// LoadSectors reads the sector table.
func (s *SQLiteStore) LoadSectors(ctx context.Context) ([]model.Sector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM sectors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load sectors")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Sector
	for rows.Next() {
		var sec model.Sector
		if err := rows.Scan(&sec.ID, &sec.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sector")
		}
		out = append(out, sec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sectors")
}

// LoadSubSectors reads the sub-sector table.
func (s *SQLiteStore) LoadSubSectors(ctx context.Context) ([]model.SubSector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, sector_id, name, color FROM sub_sectors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load sub-sectors")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SubSector
	for rows.Next() {
		var ss model.SubSector
		if err := rows.Scan(&ss.ID, &ss.SectorID, &ss.Name, &ss.Color); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sub-sector")
		}
		out = append(out, ss)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate sub-sectors")
}

// LoadFacts reads every fact in insertion order.
func (s *SQLiteStore) LoadFacts(ctx context.Context) ([]model.Fact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sub_sector_id, zone_code, year, volume, unit,
		surface_area, yield, producer_count, average_price, description
		FROM production_stats ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load facts")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Fact
	for rows.Next() {
		var f model.Fact
		if err := rows.Scan(&f.SubSectorID, &f.ZoneCode, &f.Year,
			&f.Volume, &f.Unit, &f.SurfaceArea, &f.Yield,
			&f.ProducerCount, &f.AveragePrice, &f.Description,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate facts")
}

const sqliteUpsertFact = `INSERT INTO production_stats
	(sub_sector_id, zone_code, year, volume, unit, surface_area, yield, producer_count, average_price, description)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (sub_sector_id, zone_code, year) DO UPDATE SET
	volume = excluded.volume, unit = excluded.unit,
	surface_area = excluded.surface_area, yield = excluded.yield,
	producer_count = excluded.producer_count, average_price = excluded.average_price,
	description = excluded.description`

// UpsertFacts writes facts in one transaction; a fact replaces any stored
// fact with the same key wholesale and keeps its row position.
func (s *SQLiteStore) UpsertFacts(ctx context.Context, facts []model.Fact) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	if err := validateFacts(facts); err != nil {
		return 0, err
	}

	var n int64
	err := s.inTx(ctx, func(tx *sql.Tx) (err error) {
		n, err = upsertFactsTx(ctx, tx, facts)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func upsertFactsTx(ctx context.Context, tx *sql.Tx, facts []model.Fact) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, sqliteUpsertFact)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare fact upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
	for _, f := range facts {
		if _, err := stmt.ExecContext(ctx,
			f.SubSectorID, f.ZoneCode, f.Year, f.Volume, f.Unit,
			f.SurfaceArea, f.Yield, f.ProducerCount, f.AveragePrice, f.Description,
		); err != nil {
			return n, eris.Wrapf(err, "sqlite: upsert fact %d/%s/%d", f.SubSectorID, f.ZoneCode, f.Year)
		}
		n++
	}
	return n, nil
}

// Seed writes a full dataset in one transaction: either every row lands or
// none does.
func (s *SQLiteStore) Seed(ctx context.Context, ds *model.Dataset) error {
	if ds == nil {
		return eris.New("sqlite: seed: nil dataset")
	}
	if err := validateFacts(ds.Facts); err != nil {
		return eris.Wrap(err, "sqlite: seed")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, sec := range ds.Sectors {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sectors (id, name) VALUES (?, ?)
				ON CONFLICT (id) DO UPDATE SET name = excluded.name`,
				sec.ID, sec.Name,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed sector %d", sec.ID)
			}
		}
		for _, ss := range ds.SubSectors {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sub_sectors (id, sector_id, name, color) VALUES (?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET sector_id = excluded.sector_id, name = excluded.name, color = excluded.color`,
				ss.ID, ss.SectorID, ss.Name, ss.Color,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed sub-sector %d", ss.ID)
			}
		}
		for _, z := range ds.Zones {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO administrative_zones (id, name, level, code, parent_id, geometry) VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET name = excluded.name, level = excluded.level, code = excluded.code,
					parent_id = excluded.parent_id, geometry = excluded.geometry`,
				z.ID, z.Name, string(z.Level), z.Code, z.ParentID, z.Geometry,
			); err != nil {
				return eris.Wrapf(err, "sqlite: seed zone %s", z.Code)
			}
		}
		_, err := upsertFactsTx(ctx, tx, ds.Facts)
		return err
	})
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}
