package amqp

import (
	"sync"
	"time"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

// breaker stops publishing after threshold consecutive failures. Once
// cooldown has passed it lets one probe through: success closes it, failure
// opens it again.
type breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    int32
	failures int
	openedAt time.Time
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// allow reports whether a call may go ahead, moving an open breaker to
// half-open when its cooldown is over.
func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = StateHalfOpen
	}
	return b.state != StateOpen
}

func (b *breaker) success() {
	b.mu.Lock()
	b.state, b.failures = StateClosed, 0
	b.mu.Unlock()
}

// failure records a failed call and reports whether it opened the breaker.
func (b *breaker) failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == StateOpen {
		return false
	}
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state, b.openedAt = StateOpen, b.now()
		return true
	}
	return false
}

func (b *breaker) current() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
