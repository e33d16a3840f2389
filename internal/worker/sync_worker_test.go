package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"emprestimos/internal/amqp"
)

type fakeProcessor struct {
	mu      sync.Mutex
	items   []string
	pending []int
	calls   int
	itemErr error
}

func (f *fakeProcessor) ProcessItem(_ context.Context, table, recordID, operation string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, table+"/"+recordID+"/"+operation)
	return f.itemErr
}

func (f *fakeProcessor) ProcessPending(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.pending) == 0 {
		return 0, nil
	}
	n := f.pending[0]
	f.pending = f.pending[1:]
	return n, nil
}

type fakeConsumer struct {
	msgs []*amqp.RecordSyncMessage
	errs []error
}

func (c *fakeConsumer) ConsumeRecordSync(ctx context.Context, handler func(context.Context, *amqp.RecordSyncMessage) error) error {
	for _, m := range c.msgs {
		c.errs = append(c.errs, handler(ctx, m))
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestHandleMessage(t *testing.T) {
	p := &fakeProcessor{}
	w := NewSyncWorker(p, time.Second)
	msg := amqp.NewRecordSyncMessage("parcelas", "i1", amqp.OperationSync, 2)

	if err := w.HandleMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(p.items) != 1 || p.items[0] != "parcelas/i1/sync" {
		t.Fatalf("items = %v", p.items)
	}

	p.itemErr = errors.New("mirror down")
	if err := w.HandleMessage(context.Background(), msg); !errors.Is(err, p.itemErr) {
		t.Fatalf("expected wrapped mirror error, got %v", err)
	}
}

func TestStartupSyncCheckDrainsQueue(t *testing.T) {
	p := &fakeProcessor{pending: []int{10, 10, 3}}
	w := NewSyncWorker(p, time.Second)
	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p.calls != 4 {
		t.Errorf("ProcessPending calls = %d, want 4", p.calls)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	p := &fakeProcessor{}
	c := &fakeConsumer{msgs: []*amqp.RecordSyncMessage{
		amqp.NewRecordSyncMessage("clientes", "c1", amqp.OperationSync, 1),
		amqp.NewRecordSyncMessage("emprestimos", "l1", amqp.OperationDelete, 1),
	}}
	w := NewSyncWorker(p, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx, c); err != nil {
		t.Fatalf("Run: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) != 2 {
		t.Fatalf("items = %v", p.items)
	}
	if p.calls < 2 {
		t.Errorf("expected periodic replays, got %d calls", p.calls)
	}
}

func TestNewSyncWorkerDefaultInterval(t *testing.T) {
	w := NewSyncWorker(&fakeProcessor{}, 0)
	if w.interval != time.Minute {
		t.Errorf("interval = %v", w.interval)
	}
}
