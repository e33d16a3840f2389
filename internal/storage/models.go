package storage

import (
	"database/sql"
	"fmt"
	"time"

	"emprestimos/internal/core"

	"github.com/shopspring/decimal"
)

// Table names of the local store. The mirror uses the same names (with its
// own capitalisation) for the remote copies.
const (
	TableClients      = "clientes"
	TableLoans        = "emprestimos"
	TableInstallments = "parcelas"
	TableMovements    = "movimentacoes"
)

// Tables lists the synced tables in dependency order.
var Tables = []string{TableClients, TableLoans, TableInstallments, TableMovements}

// Sync queue operations and statuses.
const (
	OpSync   = "sync"
	OpDelete = "delete"

	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// SyncQueue is one row of the durable mirror queue.
type SyncQueue struct {
	ID            int64
	TableName     string
	RecordID      string
	Operation     string
	Status        string
	Attempts      int64
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// SyncQueueStats counts queue rows per status.
type SyncQueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

func amountText(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullAmountText(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: amountText(d.Decimal), Valid: true}
}

func parseAmountText(column, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %s: %w", column, err)
	}
	return d, nil
}

func parseNullAmountText(column string, s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid || s.String == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := parseAmountText(column, s.String)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func parseDateText(column, s string) (core.Date, error) {
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, fmt.Errorf("column %s: %w", column, err)
	}
	return d, nil
}

func parseTimeText(s string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
