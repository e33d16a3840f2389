// Package ratelimit caps requests per client IP over a fixed window.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config sizes the limiter. Zero fields take the DefaultConfig value.
type Config struct {
	RequestsPerMinute int
	// Window is the counting period; RequestsPerMinute is the budget per
	// window whatever its length.
	Window time.Duration
	// IdleTTL drops clients that have been quiet this long.
	IdleTTL         time.Duration
	CleanupInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Window:            time.Minute,
		IdleTTL:           10 * time.Minute,
		CleanupInterval:   5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = d.RequestsPerMinute
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = d.IdleTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = d.CleanupInterval
	}
	return c
}

type window struct {
	start time.Time
	seen  time.Time
	count int
}

// Limiter counts requests per key. A janitor goroutine evicts idle keys
// until Stop.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window

	rejected atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		windows: make(map[string]*window),
		stop:    make(chan struct{}),
	}
	go l.janitor()
	return l
}

// Allow records a request from key and reports whether it fits the budget.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.take(key)
	return ok
}

// take returns whether the request is allowed and, when it is not, how long
// until the key's window resets.
func (l *Limiter) take(key string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[key]
	if w == nil || now.Sub(w.start) >= l.cfg.Window {
		l.windows[key] = &window{start: now, seen: now, count: 1}
		return true, 0
	}
	w.seen = now
	w.count++
	if w.count <= l.cfg.RequestsPerMinute {
		return true, 0
	}
	l.rejected.Add(1)
	return false, w.start.Add(l.cfg.Window).Sub(now)
}

func (l *Limiter) janitor() {
	t := time.NewTicker(l.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			l.evictIdle()
		case <-l.stop:
			return
		}
	}
}

func (l *Limiter) evictIdle() {
	cutoff := l.now().Add(-l.cfg.IdleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.windows {
		if w.seen.Before(cutoff) {
			delete(l.windows, key)
		}
	}
}

// ActiveClients returns how many keys are being tracked.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Hits returns how many requests were rejected.
func (l *Limiter) Hits() int64 {
	return l.rejected.Load()
}

// Stop ends the janitor. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Writes limits only state-changing methods; reads pass through.
func Writes(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// Middleware rejects requests over budget with 429 and a Retry-After header.
// keyOf picks the client key. Requests for which applies returns false are
// not counted; a nil applies counts everything. onLimit writes the rejection
// body, plain text when nil.
func (l *Limiter) Middleware(keyOf func(*http.Request) string, applies func(*http.Request) bool, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if applies == nil || applies(r) {
				if ok, wait := l.take(keyOf(r)); !ok {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
					if onLimit != nil {
						onLimit(w, r)
					} else {
						http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
					}
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
