// Package worker mirrors records announced over AMQP and replays the local
// sync queue as a backup for lost messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"emprestimos/internal/amqp"
)

// Processor applies a single record change to the mirror and drains the
// durable queue.
type Processor interface {
	ProcessItem(ctx context.Context, table, recordID, operation string) error
	ProcessPending(ctx context.Context) (int, error)
}

// Consumer delivers record sync messages until ctx ends.
type Consumer interface {
	ConsumeRecordSync(ctx context.Context, handler func(context.Context, *amqp.RecordSyncMessage) error) error
}

// SyncWorker handles record sync messages from AMQP.
type SyncWorker struct {
	processor Processor
	interval  time.Duration
}

func NewSyncWorker(processor Processor, interval time.Duration) *SyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SyncWorker{processor: processor, interval: interval}
}

// HandleMessage processes a single record sync message.
func (w *SyncWorker) HandleMessage(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"table", msg.Table,
		"record_id", msg.RecordID,
		"operation", msg.Operation,
		"version", msg.Version)

	if err := w.processor.ProcessItem(ctx, msg.Table, msg.RecordID, msg.Operation); err != nil {
		return fmt.Errorf("mirror %s %s: %w", msg.Table, msg.RecordID, err)
	}
	return nil
}

// StartupSyncCheck drains everything left pending while the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	total := 0
	for {
		n, err := w.processor.ProcessPending(ctx)
		if err != nil {
			return fmt.Errorf("startup sync: %w", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total == 0 {
		slog.InfoContext(ctx, "No pending records found on startup")
		return nil
	}
	slog.InfoContext(ctx, "Startup sync completed", "processed", total)
	return nil
}

// Run consumes messages and replays the queue every interval until ctx is
// cancelled. A nil consumer runs the replay loop alone.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer) error {
	if err := w.StartupSyncCheck(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup sync check failed", "error", err)
	}

	errCh := make(chan error, 1)
	if consumer != nil {
		go func() {
			errCh <- consumer.ConsumeRecordSync(ctx, w.HandleMessage)
		}()
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("consume: %w", err)
			}
			return nil
		case <-ticker.C:
			if n, err := w.processor.ProcessPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Failed to process pending records", "error", err)
			} else if n > 0 {
				slog.InfoContext(ctx, "Processed pending records", "count", n)
			}
		}
	}
}
