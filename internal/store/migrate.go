package store

import (
	"context"
	"embed"
	"io/fs"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/agristat/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Held for the whole run so concurrent `agristat migrate` invocations queue.
const migrationLockID = 7263001

const schemaMigrationsDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// migrate brings the schema up to date. Each pending file is executed in its
// own transaction together with its schema_migrations row.
func migrate(ctx context.Context, pool db.Pool) error {
	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return eris.Wrap(err, "migrate: advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			zap.L().Warn("migrate: release advisory lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, schemaMigrationsDDL); err != nil {
		return eris.Wrap(err, "migrate: create schema_migrations")
	}

	names, err := migrationNames()
	if err != nil {
		return err
	}
	done, err := appliedMigrations(ctx, pool)
	if err != nil {
		return err
	}

	var ran int
	for _, name := range names {
		if _, ok := done[name]; ok {
			continue
		}
		if err := applyMigration(ctx, pool, name); err != nil {
			return err
		}
		ran++
	}
	if ran > 0 {
		zap.L().Info("schema migrated", zap.Int("applied", ran), zap.Int("total", len(names)))
	}
	return nil
}

func applyMigration(ctx context.Context, pool db.Pool, name string) error {
	ddl, err := migrationFS.ReadFile("migrations/" + name)
	if err != nil {
		return eris.Wrapf(err, "migrate: read %s", name)
	}
	zap.L().Info("applying migration", zap.String("file", name))

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, string(ddl)); err != nil {
			return eris.Wrapf(err, "apply migration %s", name)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name); err != nil {
			return eris.Wrapf(err, "record migration %s", name)
		}
		return nil
	})
}

// migrationNames lists the embedded files in the order they are applied.
func migrationNames() ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, eris.Wrap(err, "migrate: list migrations")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)
	return names, nil
}

func appliedMigrations(ctx context.Context, pool db.Pool) (map[string]struct{}, error) {
	rows, err := pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "migrate: load applied migrations")
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "migrate: scan applied migrations")
	}
	done := make(map[string]struct{}, len(names))
	for _, n := range names {
		done[n] = struct{}{}
	}
	return done, nil
}
