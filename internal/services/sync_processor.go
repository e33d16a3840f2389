package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"emprestimos/internal/metrics"
	"emprestimos/internal/mirror"
	"emprestimos/internal/storage"
)

// SyncProcessorConfig tunes the queue drain loop. Zero fields take the
// DefaultSyncProcessorConfig value.
type SyncProcessorConfig struct {
	PollInterval    time.Duration // how often due items are fetched
	BatchSize       int           // items per fetch
	MaxRetries      int           // attempts before an item is marked failed
	CleanupInterval time.Duration // how often completed items are purged
	CleanupAge      time.Duration // completed items older than this are purged
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

func (c SyncProcessorConfig) withDefaults() SyncProcessorConfig {
	def := DefaultSyncProcessorConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.CleanupAge <= 0 {
		c.CleanupAge = def.CleanupAge
	}
	return c
}

// SyncProcessor drains the SQLite sync queue into the mirror.
type SyncProcessor struct {
	storage *storage.SQLiteRepository
	mirror  mirror.Mirror
	metrics *metrics.Metrics
	config  SyncProcessorConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSyncProcessor(repo *storage.SQLiteRepository, m mirror.Mirror, mt *metrics.Metrics, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		storage: repo,
		mirror:  m,
		metrics: mt,
		config:  config.withDefaults(),
	}
}

// Start launches the drain loop until Stop is called or ctx ends. Items left
// in processing by a previous crash are put back in the queue first.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("sync processor is already running")
	}

	if err := p.storage.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.running, p.cancel, p.done = true, cancel, make(chan struct{})
	go p.run(loopCtx, p.done)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries)
	return nil
}

// Stop cancels the loop and waits for the batch in flight, or for ctx.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	slog.InfoContext(ctx, "Sync processor stopped")
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	poll := time.NewTicker(p.config.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(p.config.CleanupInterval)
	defer cleanup.Stop()

	for {
		if _, err := p.ProcessPending(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "Failed to dequeue sync batch", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
		case <-cleanup.C:
			cutoff := time.Now().Add(-p.config.CleanupAge)
			if err := p.storage.CleanupCompletedSyncs(ctx, cutoff); err != nil {
				slog.ErrorContext(ctx, "Failed to cleanup completed syncs", "error", err)
			}
		}
	}
}

// ProcessPending handles one batch of due queue items and returns how many
// were attempted.
func (p *SyncProcessor) ProcessPending(ctx context.Context) (int, error) {
	items, err := p.storage.DequeueSyncBatch(ctx, int64(p.config.BatchSize))
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	done := 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		if err := p.storage.MarkSyncProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item as processing", "id", item.ID, "error", err)
			continue
		}
		err := p.ProcessItem(ctx, item.TableName, item.RecordID, item.Operation)
		p.metrics.SyncItem(item.TableName, item.Operation, err)
		p.settle(ctx, item, err)
		done++
	}
	return done, nil
}

// ProcessItem mirrors one record: a sync upserts its current local state, a
// delete removes it remotely. A sync for a record that no longer exists
// locally is a no-op.
func (p *SyncProcessor) ProcessItem(ctx context.Context, table, recordID, operation string) error {
	if p.mirror == nil {
		return ErrNoMirror
	}
	spec, err := mirror.Spec(table)
	if err != nil {
		return err
	}

	switch operation {
	case storage.OpSync:
		row, err := RecordRow(ctx, p.storage, table, recordID)
		if errors.Is(err, storage.ErrNotFound) {
			slog.InfoContext(ctx, "Record gone before sync, skipping",
				"table", table, "record_id", recordID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("load %s %s: %w", table, recordID, err)
		}
		if !spec.Complete(row) {
			return fmt.Errorf("record %s %s is missing required fields", table, recordID)
		}
		if _, err := p.mirror.Upsert(ctx, spec, []mirror.Row{row}); err != nil {
			return fmt.Errorf("upsert to mirror: %w", err)
		}
	case storage.OpDelete:
		if err := p.mirror.Delete(ctx, spec, []string{recordID}); err != nil {
			return fmt.Errorf("delete from mirror: %w", err)
		}
	default:
		return fmt.Errorf("unknown operation: %s", operation)
	}

	slog.DebugContext(ctx, "Mirrored record",
		"table", table,
		"record_id", recordID,
		"operation", operation)
	return nil
}

// settle records the outcome of one attempt. Failed items are retried with
// backoff until MaxRetries attempts, then marked failed.
func (p *SyncProcessor) settle(ctx context.Context, item storage.SyncQueue, processErr error) {
	if processErr == nil {
		if err := p.storage.MarkSyncComplete(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark sync complete", "id", item.ID, "error", err)
		}
		return
	}

	attempt := item.Attempts + 1
	log := slog.With(
		"id", item.ID,
		"table", item.TableName,
		"record_id", item.RecordID,
		"operation", item.Operation,
		"attempt", attempt)

	if attempt < int64(p.config.MaxRetries) {
		log.WarnContext(ctx, "Sync attempt failed, will retry", "error", processErr)
		if err := p.storage.IncrementSyncAttempt(ctx, item.ID, processErr.Error()); err != nil {
			log.ErrorContext(ctx, "Failed to record sync attempt", "error", err)
		}
		return
	}
	log.ErrorContext(ctx, "Sync item failed permanently", "error", processErr)
	if err := p.storage.MarkSyncFailed(ctx, item.ID, processErr.Error()); err != nil {
		log.ErrorContext(ctx, "Failed to mark sync as failed", "error", err)
	}
}

// Stats returns the queue counts by status.
func (p *SyncProcessor) Stats(ctx context.Context) (*storage.SyncQueueStats, error) {
	return p.storage.GetSyncQueueStats(ctx)
}

// RetryFailed resets all failed items for retry and returns how many.
func (p *SyncProcessor) RetryFailed(ctx context.Context) (int64, error) {
	return p.storage.RetryFailedSyncs(ctx)
}
