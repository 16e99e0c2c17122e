package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Table describes an upsert target.
type Table struct {
	Name    string   // optionally schema-qualified
	Columns []string // column order of every row
	Key     []string // columns of the unique constraint
	// Update lists the columns overwritten on conflict. Nil means every
	// column outside Key; when that leaves nothing, conflicts are skipped.
	Update []string
}

func (t Table) validate() error {
	if t.Name == "" {
		return eris.New("db: upsert: no table name")
	}
	if len(t.Columns) == 0 {
		return eris.Errorf("db: upsert %s: no columns", t.Name)
	}
	if len(t.Key) == 0 {
		return eris.Errorf("db: upsert %s: no key columns", t.Name)
	}
	return nil
}

func (t Table) updateColumns() []string {
	if t.Update != nil {
		return t.Update
	}
	key := make(map[string]struct{}, len(t.Key))
	for _, k := range t.Key {
		key[k] = struct{}{}
	}
	var out []string
	for _, c := range t.Columns {
		if _, ok := key[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// staging is the session-local table rows are copied into.
func (t Table) staging() string {
	return "stage_" + strings.ReplaceAll(t.Name, ".", "_")
}

func (t Table) createStagingSQL() string {
	return "CREATE TEMP TABLE " + pgx.Identifier{t.staging()}.Sanitize() +
		" (LIKE " + quoteTable(t.Name) + " INCLUDING DEFAULTS) ON COMMIT DROP"
}

func (t Table) mergeSQL() string {
	cols := quoteColumns(t.Columns)

	var b strings.Builder
	b.WriteString("INSERT INTO " + quoteTable(t.Name) + " (" + cols + ")")
	b.WriteString(" SELECT " + cols + " FROM " + pgx.Identifier{t.staging()}.Sanitize())
	b.WriteString(" ON CONFLICT (" + quoteColumns(t.Key) + ")")

	update := t.updateColumns()
	if len(update) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	b.WriteString(" DO UPDATE SET ")
	for i, c := range update {
		if i > 0 {
			b.WriteString(", ")
		}
		q := pgx.Identifier{c}.Sanitize()
		b.WriteString(q + " = EXCLUDED." + q)
	}
	return b.String()
}

// Upsert merges rows into t in one transaction: COPY into a staging copy of
// the table, then INSERT ... SELECT ... ON CONFLICT. Postgres rejects two
// rows with the same key in one statement, so rows must be unique on Key.
// It returns the number of rows inserted or updated.
func Upsert(ctx context.Context, pool Pool, t Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := t.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: begin", t.Name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := UpsertTx(ctx, tx, t, rows)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: commit", t.Name)
	}
	return n, nil
}

// UpsertTx is Upsert inside a caller-owned transaction, for writes that must
// commit together. The staging table lives until the transaction ends, so
// each table can be upserted at most once per transaction.
func UpsertTx(ctx context.Context, tx pgx.Tx, t Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := t.validate(); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, t.createStagingSQL()); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: create staging table", t.Name)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{t.staging()}, t.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: copy rows", t.Name)
	}
	tag, err := tx.Exec(ctx, t.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %s: merge", t.Name)
	}
	return tag.RowsAffected(), nil
}

func quoteTable(name string) string {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return pgx.Identifier{schema, table}.Sanitize()
	}
	return pgx.Identifier{name}.Sanitize()
}

func quoteColumns(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
