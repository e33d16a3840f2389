// Package postgres mirrors tables into a Postgres database (Supabase or
// plain Postgres). Remote tables are expected to exist with the TableSpec column
// names; every value travels as text and Postgres casts it on insert.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"emprestimos/internal/mirror"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of *pgxpool.Pool the mirror uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Mirror struct {
	db DB
}

var _ mirror.Mirror = (*Mirror)(nil)

func New(db DB) *Mirror {
	return &Mirror{db: db}
}

// Connect opens a pool and checks it with a ping.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Upsert writes rows in one batch, keyed on spec.Key.
func (m *Mirror) Upsert(ctx context.Context, spec mirror.TableSpec, rows []mirror.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	query := upsertSQL(spec)
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(query, args(spec, r)...)
	}

	br := m.db.SendBatch(ctx, batch)
	defer br.Close()

	written := 0
	for i := range rows {
		if _, err := br.Exec(); err != nil {
			return written, fmt.Errorf("upsert %s row %q: %w", spec.Remote, rows[i].Key(spec), err)
		}
		written++
	}
	slog.DebugContext(ctx, "Upserted rows to Postgres", "table", spec.Remote, "count", written)
	return written, nil
}

// Delete removes rows whose key is in keys.
func (m *Mirror) Delete(ctx context.Context, spec mirror.TableSpec, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tag, err := m.db.Exec(ctx, deleteSQL(spec), keys)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", spec.Remote, err)
	}
	slog.DebugContext(ctx, "Deleted rows from Postgres", "table", spec.Remote, "count", tag.RowsAffected())
	return nil
}

// Fetch reads every row, with NULLs as blank text.
func (m *Mirror) Fetch(ctx context.Context, spec mirror.TableSpec) ([]mirror.Row, error) {
	rows, err := m.db.Query(ctx, selectSQL(spec))
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", spec.Remote, err)
	}
	defer rows.Close()

	var out []mirror.Row
	for rows.Next() {
		vals := make([]string, len(spec.Columns))
		dest := make([]any, len(vals))
		for i := range vals {
			dest[i] = &vals[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.Remote, err)
		}
		row := make(mirror.Row, len(spec.Columns))
		for i, c := range spec.Columns {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", spec.Remote, err)
	}
	return out, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func upsertSQL(spec mirror.TableSpec) string {
	cols := make([]string, len(spec.Columns))
	params := make([]string, len(spec.Columns))
	var sets []string
	for i, c := range spec.Columns {
		cols[i] = ident(c)
		params[i] = fmt.Sprintf("$%d", i+1)
		if c != spec.Key {
			sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
		}
	}
	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s",
		ident(spec.Remote), strings.Join(cols, ", "), strings.Join(params, ", "), ident(spec.Key), conflict)
}

func deleteSQL(spec mirror.TableSpec) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1)", ident(spec.Remote), ident(spec.Key))
}

func selectSQL(spec mirror.TableSpec) string {
	cols := make([]string, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = fmt.Sprintf("COALESCE(%s::text, '')", ident(c))
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), ident(spec.Remote), ident(spec.Key))
}

// args maps blank values to NULL so typed remote columns accept them.
func args(spec mirror.TableSpec, r mirror.Row) []any {
	out := make([]any, len(spec.Columns))
	for i, c := range spec.Columns {
		v := strings.TrimSpace(r[c])
		if v == "" {
			out[i] = nil
			continue
		}
		out[i] = v
	}
	return out
}
