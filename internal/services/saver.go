package services

import (
	"context"
	"log/slog"
	"sync"

	"emprestimos/internal/metrics"

	"golang.org/x/sync/errgroup"
)

// Pending is the outcome of a background save.
type Pending struct {
	done chan struct{}
	err  error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

// Done is closed once the save has finished.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the save finishes or ctx ends.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Err returns the save error, or nil while the save is still running.
func (p *Pending) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *Pending) finish(err error) {
	p.err = err
	close(p.done)
}

// Completed returns an already finished Pending.
func Completed(err error) *Pending {
	p := newPending()
	p.finish(err)
	return p
}

// Saver runs persistence work off the caller's path with bounded
// concurrency. Each submission gets its own Pending; one failed save does not
// cancel the others.
type Saver struct {
	group   errgroup.Group
	metrics *metrics.Metrics

	mu     sync.Mutex
	closed bool
}

func NewSaver(limit int, m *metrics.Metrics) *Saver {
	s := &Saver{metrics: m}
	if limit > 0 {
		s.group.SetLimit(limit)
	}
	return s
}

// Submit schedules fn. The task runs with ctx's values but not its
// cancellation, so a finished request does not abort its save. After Close,
// fn runs synchronously.
func (s *Saver) Submit(ctx context.Context, task string, fn func(context.Context) error) *Pending {
	p := newPending()
	ctx = context.WithoutCancel(ctx)
	run := func() error {
		err := fn(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "Background save failed", "task", task, "error", err)
		}
		s.metrics.SaveFinished(task, err)
		p.finish(err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = run()
		return p
	}
	s.group.Go(run)
	s.mu.Unlock()
	return p
}

// Close waits for every submitted save and returns the first error.
func (s *Saver) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.group.Wait()
}
