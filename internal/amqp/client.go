package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

// ErrCircuitOpen is returned by PublishRecordSync while the breaker is open.
var ErrCircuitOpen = errors.New("amqp: circuit breaker open, publishing paused")

// Client publishes and consumes RecordSyncMessages on one durable queue bound
// to a direct exchange, with the queue name as routing key. It reconnects
// lazily; publishing is guarded by a circuit breaker.
type Client struct {
	url      string
	exchange string
	queue    string
	breaker  *breaker

	mu   sync.Mutex
	conn *amqp091.Connection
	ch   *amqp091.Channel
}

// NewClient dials url and declares the topology.
func NewClient(url, exchange, queue string) (*Client, error) {
	c := newClient(url, exchange, queue)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dialLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(url, exchange, queue string) *Client {
	return &Client{
		url:      url,
		exchange: exchange,
		queue:    queue,
		breaker:  newBreaker(maxFailures, openTimeout),
	}
}

func (c *Client) dialLocked() error {
	_ = c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declare(ch, c.exchange, c.queue); err != nil {
		ch.Close()
		conn.Close()
		return err
	}
	c.conn, c.ch = conn, ch
	return nil
}

func declare(ch *amqp091.Channel, exchange, queue string) error {
	// durable, not auto-deleted, not internal, wait for the broker
	if err := ch.ExchangeDeclare(exchange, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	// durable, kept when unused, shared, wait for the broker
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

// channel returns the open channel, redialing when the connection dropped.
func (c *Client) channel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch == nil || c.ch.IsClosed() || c.conn == nil || c.conn.IsClosed() {
		if err := c.dialLocked(); err != nil {
			return nil, err
		}
	}
	return c.ch, nil
}

// PublishRecordSync announces a changed record to the sync worker.
func (c *Client) PublishRecordSync(ctx context.Context, table, recordID, operation string, version int64) error {
	if !c.breaker.allow() {
		return ErrCircuitOpen
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := NewRecordSyncMessage(table, recordID, operation, version).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.publish(ctx, body)
	if err != nil {
		if c.breaker.failure() {
			slog.WarnContext(ctx, "AMQP circuit breaker opened", "error", err)
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.breaker.success()

	slog.DebugContext(ctx, "Published record sync message",
		"table", table,
		"record_id", recordID,
		"operation", operation,
		"queue", c.queue)
	return nil
}

func (c *Client) publish(ctx context.Context, body []byte) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, c.exchange, c.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// ConsumeRecordSync delivers messages to handler until ctx is done,
// reconnecting with exponential backoff when the connection drops.
// Undecodable messages are dropped; handler errors requeue the message.
func (c *Client) ConsumeRecordSync(ctx context.Context, handler func(context.Context, *RecordSyncMessage) error) error {
	for attempt := 0; ; {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer lost connection, reconnecting",
			"error", err,
			"attempt", attempt+1,
			"backoff", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if _, err := c.channel(); err != nil {
			slog.ErrorContext(ctx, "AMQP reconnect failed", "error", err)
			attempt++
			continue
		}
		attempt = 0
	}
}

func (c *Client) consume(ctx context.Context, handler func(context.Context, *RecordSyncMessage) error) error {
	ch, err := c.channel()
	if err != nil {
		return err
	}
	// manual ack, shared queue
	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	slog.InfoContext(ctx, "Consuming record sync messages", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return amqp091.ErrClosed
			}
			handleDelivery(ctx, d, handler)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp091.Delivery, handler func(context.Context, *RecordSyncMessage) error) {
	msg, err := RecordSyncMessageFromJSON(d.Body)
	if err != nil {
		slog.ErrorContext(ctx, "Dropping undecodable message", "error", err)
		_ = d.Nack(false, false)
		return
	}
	log := slog.With("table", msg.Table, "record_id", msg.RecordID, "operation", msg.Operation)
	if err := handler(ctx, msg); err != nil {
		log.ErrorContext(ctx, "Failed to handle message, requeueing", "error", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
	log.DebugContext(ctx, "Processed record sync message")
}

// IsHealthy reports whether the connection is open and the breaker closed.
func (c *Client) IsHealthy() bool {
	c.mu.Lock()
	up := c.conn != nil && !c.conn.IsClosed()
	c.mu.Unlock()
	return up && c.breaker.current() == StateClosed
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Second<<attempt, maxBackoff)
}

var connectionErrorHints = []string{
	"connection refused",
	"connection closed",
	"EOF",
	"broken pipe",
	"use of closed network connection",
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, hint := range connectionErrorHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.ch != nil {
		_ = c.ch.Close()
		c.ch = nil
	}
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil && !errors.Is(err, amqp091.ErrClosed) {
		return err
	}
	return nil
}
