package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// EnqueueSync adds a pending queue item unless one is already pending for the
// same record and operation.
func (q *Queries) EnqueueSync(ctx context.Context, table, recordID, operation string) error {
	_, err := q.db.ExecContext(ctx, `
INSERT INTO sync_queue (table_name, record_id, operation)
SELECT ?, ?, ?
WHERE NOT EXISTS (
    SELECT 1 FROM sync_queue
    WHERE table_name = ? AND record_id = ? AND operation = ? AND status = 'pending'
)`, table, recordID, operation, table, recordID, operation)
	if err != nil {
		return fmt.Errorf("enqueue %s %s %s: %w", operation, table, recordID, err)
	}
	return nil
}

// EnqueueSync adds a queue item outside a record write, e.g. to force an
// upload of an existing row.
func (r *SQLiteRepository) EnqueueSync(ctx context.Context, table, recordID, operation string) error {
	if !isKnownTable(table) {
		return fmt.Errorf("unknown table %q", table)
	}
	return r.queries.EnqueueSync(ctx, table, recordID, operation)
}

// DequeueSyncBatch returns up to limit pending items whose retry time has come,
// oldest first.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncQueue, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, table_name, record_id, operation, status, attempts, last_error, next_attempt_at, created_at
FROM sync_queue
WHERE status = 'pending' AND next_attempt_at <= ?
ORDER BY id
LIMIT ?`, time.Now().UTC().Format(sqliteTimeLayout), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	defer rows.Close()

	var items []SyncQueue
	for rows.Next() {
		var (
			item            SyncQueue
			next, createdAt string
		)
		if err := rows.Scan(&item.ID, &item.TableName, &item.RecordID, &item.Operation, &item.Status,
			&item.Attempts, &item.LastError, &next, &createdAt); err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		item.NextAttemptAt = parseTimeText(next)
		item.CreatedAt = parseTimeText(createdAt)
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, append(args, id)...)
	return err
}

func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, `
UPDATE sync_queue SET status = 'processing', updated_at = CURRENT_TIMESTAMP WHERE id = ?`); err != nil {
		return fmt.Errorf("mark sync processing: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncComplete(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, `
UPDATE sync_queue SET status = 'completed', last_error = '', processed_at = CURRENT_TIMESTAMP,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?`); err != nil {
		return fmt.Errorf("mark sync complete: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, errMsg string) error {
	if err := r.setSyncStatus(ctx, id, `
UPDATE sync_queue SET status = 'failed', attempts = attempts + 1, last_error = ?,
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, errMsg); err != nil {
		return fmt.Errorf("mark sync failed: %w", err)
	}
	slog.WarnContext(ctx, "Sync item marked as failed", "id", id)
	return nil
}

// IncrementSyncAttempt puts an item back to pending and delays its next
// attempt exponentially: 30s, 60s, 120s, ... capped at one hour.
func (r *SQLiteRepository) IncrementSyncAttempt(ctx context.Context, id int64, errMsg string) error {
	if err := r.setSyncStatus(ctx, id, `
UPDATE sync_queue SET status = 'pending', attempts = attempts + 1, last_error = ?,
    next_attempt_at = datetime('now', '+' || MIN(30 * (1 << attempts), 3600) || ' seconds'),
    updated_at = CURRENT_TIMESTAMP
WHERE id = ?`, errMsg); err != nil {
		return fmt.Errorf("increment sync attempt: %w", err)
	}
	return nil
}

// ResetStaleProcessing returns items left in processing by a crashed run to
// pending.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE sync_queue SET status = 'pending', updated_at = CURRENT_TIMESTAMP WHERE status = 'processing'`)
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Reset stale sync items", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, before time.Time) error {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM sync_queue WHERE status = 'completed' AND processed_at < ?`,
		before.UTC().Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed sync items", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) GetSyncQueueStats(ctx context.Context) (*SyncQueueStats, error) {
	var s SyncQueueStats
	err := r.db.QueryRowContext(ctx, `
SELECT
    COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
FROM sync_queue`).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("get sync queue stats: %w", err)
	}
	return &s, nil
}

// RetryFailedSyncs moves every failed item back to pending with a fresh
// attempt counter.
func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE sync_queue SET status = 'pending', attempts = 0, next_attempt_at = CURRENT_TIMESTAMP,
    updated_at = CURRENT_TIMESTAMP
WHERE status = 'failed'`)
	if err != nil {
		return 0, fmt.Errorf("retry failed syncs: %w", err)
	}
	return res.RowsAffected()
}
