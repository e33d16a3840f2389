package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"emprestimos/internal/core"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("record not found")

// SQLiteRepository is the local store. Every write also enqueues the record
// in sync_queue within the same transaction so the mirror can catch up later.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; background saves share this connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) withTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", what, id, err)
}

// Clients

func (r *SQLiteRepository) SaveClient(ctx context.Context, c core.Client) (core.Client, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.UpsertClient(ctx, c); err != nil {
			return fmt.Errorf("upsert client: %w", err)
		}
		return q.EnqueueSync(ctx, TableClients, c.ID, OpSync)
	})
	if err != nil {
		return core.Client{}, err
	}
	slog.DebugContext(ctx, "Client saved to SQLite", "id", c.ID, "name", c.Name)
	return c, nil
}

func (r *SQLiteRepository) GetClient(ctx context.Context, id string) (core.Client, error) {
	c, err := r.queries.GetClient(ctx, id)
	if err != nil {
		return core.Client{}, notFound(err, "client", id)
	}
	return c, nil
}

func (r *SQLiteRepository) ListClients(ctx context.Context) ([]core.Client, error) {
	clients, err := r.queries.ListClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

func (r *SQLiteRepository) ListCities(ctx context.Context) ([]string, error) {
	cities, err := r.queries.ListCities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cities: %w", err)
	}
	return cities, nil
}

func (r *SQLiteRepository) DeleteClient(ctx context.Context, id string) error {
	return r.deleteRecord(ctx, TableClients, id)
}

// Loans

// SaveLoan upserts the loan and its installments. Installments are matched on
// (loan, number): existing rows keep their identifier, rows beyond the new
// term are removed. It returns the installments as stored.
func (r *SQLiteRepository) SaveLoan(ctx context.Context, l core.Loan, installments []core.Installment) ([]core.Installment, error) {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	var stored []core.Installment
	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.UpsertLoan(ctx, l); err != nil {
			return fmt.Errorf("upsert loan: %w", err)
		}
		if err := q.EnqueueSync(ctx, TableLoans, l.ID, OpSync); err != nil {
			return err
		}
		if installments == nil {
			return nil
		}

		for _, inst := range installments {
			inst.LoanID = l.ID
			if inst.ID == "" {
				inst.ID = uuid.NewString()
			}
			if err := q.UpsertInstallment(ctx, inst); err != nil {
				return fmt.Errorf("upsert installment %d: %w", inst.Number, err)
			}
		}

		current, err := q.ListInstallments(ctx, l.ID)
		if err != nil {
			return fmt.Errorf("reload installments: %w", err)
		}
		for _, inst := range current {
			if inst.Number <= len(installments) {
				stored = append(stored, inst)
				if err := q.EnqueueSync(ctx, TableInstallments, inst.ID, OpSync); err != nil {
					return err
				}
				continue
			}
			if _, err := q.DeleteByID(ctx, TableInstallments, inst.ID); err != nil {
				return fmt.Errorf("delete installment %d: %w", inst.Number, err)
			}
			if err := q.EnqueueSync(ctx, TableInstallments, inst.ID, OpDelete); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Loan saved to SQLite",
		"id", l.ID,
		"client_id", l.ClientID,
		"term", l.Term,
		"installments", len(stored))
	return stored, nil
}

func (r *SQLiteRepository) GetLoan(ctx context.Context, id string) (core.Loan, error) {
	l, err := r.queries.GetLoan(ctx, id)
	if err != nil {
		return core.Loan{}, notFound(err, "loan", id)
	}
	return l, nil
}

func (r *SQLiteRepository) ListLoans(ctx context.Context) ([]core.Loan, error) {
	loans, err := r.queries.ListLoans(ctx)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}

func (r *SQLiteRepository) ListLoansByClient(ctx context.Context, clientID string) ([]core.Loan, error) {
	loans, err := r.queries.ListLoansByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list loans for client %s: %w", clientID, err)
	}
	return loans, nil
}

// DeleteLoan removes the loan together with its installments.
func (r *SQLiteRepository) DeleteLoan(ctx context.Context, id string) error {
	return r.withTx(ctx, func(q *Queries) error {
		installments, err := q.ListInstallments(ctx, id)
		if err != nil {
			return fmt.Errorf("list installments: %w", err)
		}
		for _, inst := range installments {
			if _, err := q.DeleteByID(ctx, TableInstallments, inst.ID); err != nil {
				return fmt.Errorf("delete installment %s: %w", inst.ID, err)
			}
			if err := q.EnqueueSync(ctx, TableInstallments, inst.ID, OpDelete); err != nil {
				return err
			}
		}
		n, err := q.DeleteByID(ctx, TableLoans, id)
		if err != nil {
			return fmt.Errorf("delete loan: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return q.EnqueueSync(ctx, TableLoans, id, OpDelete)
	})
}

// Installments

// SaveInstallment updates one existing installment by identifier.
func (r *SQLiteRepository) SaveInstallment(ctx context.Context, inst core.Installment) error {
	return r.withTx(ctx, func(q *Queries) error {
		n, err := q.UpdateInstallment(ctx, inst)
		if err != nil {
			return fmt.Errorf("update installment: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("installment %s: %w", inst.ID, ErrNotFound)
		}
		return q.EnqueueSync(ctx, TableInstallments, inst.ID, OpSync)
	})
}

func (r *SQLiteRepository) GetInstallment(ctx context.Context, id string) (core.Installment, error) {
	inst, err := r.queries.GetInstallment(ctx, id)
	if err != nil {
		return core.Installment{}, notFound(err, "installment", id)
	}
	return inst, nil
}

func (r *SQLiteRepository) ListInstallments(ctx context.Context, loanID string) ([]core.Installment, error) {
	rows, err := r.queries.ListInstallments(ctx, loanID)
	if err != nil {
		return nil, fmt.Errorf("list installments for loan %s: %w", loanID, err)
	}
	return rows, nil
}

func (r *SQLiteRepository) ListAllInstallments(ctx context.Context) ([]core.Installment, error) {
	rows, err := r.queries.ListAllInstallments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list installments: %w", err)
	}
	return rows, nil
}

// ListOpenInstallments returns unpaid installments due on or before through.
func (r *SQLiteRepository) ListOpenInstallments(ctx context.Context, through core.Date) ([]core.Installment, error) {
	rows, err := r.queries.ListOpenInstallments(ctx, through.ISO())
	if err != nil {
		return nil, fmt.Errorf("list open installments: %w", err)
	}
	return rows, nil
}

// Movements

func (r *SQLiteRepository) SaveMovement(ctx context.Context, m core.Movement) (core.Movement, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Origin == "" {
		m.Origin = core.OriginManual
	}
	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.UpsertMovement(ctx, m); err != nil {
			return fmt.Errorf("upsert movement: %w", err)
		}
		return q.EnqueueSync(ctx, TableMovements, m.ID, OpSync)
	})
	if err != nil {
		return core.Movement{}, err
	}
	return m, nil
}

func (r *SQLiteRepository) GetMovement(ctx context.Context, id string) (core.Movement, error) {
	m, err := r.queries.GetMovement(ctx, id)
	if err != nil {
		return core.Movement{}, notFound(err, "movement", id)
	}
	return m, nil
}

func (r *SQLiteRepository) ListMovements(ctx context.Context) ([]core.Movement, error) {
	rows, err := r.queries.ListMovements(ctx)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return rows, nil
}

func (r *SQLiteRepository) DeleteMovement(ctx context.Context, id string) error {
	return r.deleteRecord(ctx, TableMovements, id)
}

func (r *SQLiteRepository) deleteRecord(ctx context.Context, table, id string) error {
	return r.withTx(ctx, func(q *Queries) error {
		n, err := q.DeleteByID(ctx, table, id)
		if err != nil {
			return fmt.Errorf("delete from %s: %w", table, err)
		}
		if n == 0 {
			return fmt.Errorf("%s %s: %w", table, id, ErrNotFound)
		}
		return q.EnqueueSync(ctx, table, id, OpDelete)
	})
}

// Bulk replacement, used when downloading a table from the mirror. Nothing is
// enqueued: the rows already match the remote copy.

func (r *SQLiteRepository) replaceTable(ctx context.Context, table string, n int, insert func(q *Queries, i int) error) error {
	err := r.withTx(ctx, func(q *Queries) error {
		if err := q.DeleteAll(ctx, table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
		for i := 0; i < n; i++ {
			if err := insert(q, i); err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Local table replaced", "table", table, "rows", n)
	return nil
}

func (r *SQLiteRepository) ReplaceClients(ctx context.Context, rows []core.Client) error {
	return r.replaceTable(ctx, TableClients, len(rows), func(q *Queries, i int) error {
		return q.UpsertClient(ctx, rows[i])
	})
}

func (r *SQLiteRepository) ReplaceLoans(ctx context.Context, rows []core.Loan) error {
	return r.replaceTable(ctx, TableLoans, len(rows), func(q *Queries, i int) error {
		return q.UpsertLoan(ctx, rows[i])
	})
}

func (r *SQLiteRepository) ReplaceInstallments(ctx context.Context, rows []core.Installment) error {
	return r.replaceTable(ctx, TableInstallments, len(rows), func(q *Queries, i int) error {
		return q.UpsertInstallment(ctx, rows[i])
	})
}

func (r *SQLiteRepository) ReplaceMovements(ctx context.Context, rows []core.Movement) error {
	return r.replaceTable(ctx, TableMovements, len(rows), func(q *Queries, i int) error {
		return q.UpsertMovement(ctx, rows[i])
	})
}

// BackfillIDs assigns a fresh identifier to every row whose id is NULL or
// blank and returns how many rows were fixed per table.
func (r *SQLiteRepository) BackfillIDs(ctx context.Context) (map[string]int64, error) {
	fixed := make(map[string]int64, len(Tables))
	err := r.withTx(ctx, func(q *Queries) error {
		for _, table := range Tables {
			rowids, err := q.rowidsWithoutID(ctx, table)
			if err != nil {
				return fmt.Errorf("scan %s: %w", table, err)
			}
			for _, rowid := range rowids {
				id := uuid.NewString()
				if _, err := q.db.ExecContext(ctx, `UPDATE `+table+` SET id = ? WHERE rowid = ?`, id, rowid); err != nil {
					return fmt.Errorf("update %s rowid %d: %w", table, rowid, err)
				}
				if err := q.EnqueueSync(ctx, table, id, OpSync); err != nil {
					return err
				}
			}
			fixed[table] = int64(len(rowids))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fixed, nil
}

func (q *Queries) rowidsWithoutID(ctx context.Context, table string) ([]int64, error) {
	if !isKnownTable(table) {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	rows, err := q.db.QueryContext(ctx, `SELECT rowid FROM `+table+` WHERE id IS NULL OR id = ''`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
