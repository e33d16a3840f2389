package services

import (
	"context"
	"log/slog"
	"time"
)

// Publisher announces record changes to the sync worker. *amqp.Client
// implements it.
type Publisher interface {
	PublishRecordSync(ctx context.Context, table, recordID, operation string, version int64) error
}

// notify publishes a change notification. Failures are logged only: the
// durable sync queue already holds the change.
func notify(ctx context.Context, p Publisher, table, id, operation string) {
	if p == nil || id == "" {
		return
	}
	if err := p.PublishRecordSync(ctx, table, id, operation, time.Now().UnixMilli()); err != nil {
		slog.WarnContext(ctx, "Failed to publish sync message",
			"table", table,
			"record_id", id,
			"operation", operation,
			"error", err)
	}
}
