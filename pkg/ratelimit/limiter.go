// Package ratelimit provides fixed-window budget limiters keyed by caller
// identity. One mechanism serves request rates and byte throughput alike;
// each concern gets its own limiter instance with its own limit and window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result reports the outcome of a Consume call.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Limiter is the budget-consumption contract shared by the in-memory and
// Redis implementations.
type Limiter interface {
	Consume(ctx context.Context, identity string, cost int64) (Result, error)
}

// Config sets a limiter's budget per identity per window.
type Config struct {
	Limit  int64
	Window time.Duration
}

type window struct {
	used    int64
	resetAt time.Time
}

// WindowLimiter is an in-process fixed-window limiter. Counters reset lazily
// when their window elapses.
type WindowLimiter struct {
	mu      sync.Mutex
	limit   int64
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
}

// NewWindowLimiter creates an in-memory fixed-window limiter.
func NewWindowLimiter(cfg Config) *WindowLimiter {
	return &WindowLimiter{
		limit:   cfg.Limit,
		window:  cfg.Window,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Consume charges cost against the identity's current window. When the budget
// does not cover the cost, nothing is charged and Allowed is false.
func (l *WindowLimiter) Consume(_ context.Context, identity string, cost int64) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	current, exists := l.windows[identity]
	if !exists || !now.Before(current.resetAt) {
		current = &window{resetAt: now.Add(l.window)}
		l.windows[identity] = current
	}

	if current.used+cost > l.limit {
		return Result{
			Allowed:   false,
			Remaining: l.limit - current.used,
			ResetAt:   current.resetAt,
		}, nil
	}

	current.used += cost

	return Result{
		Allowed:   true,
		Remaining: l.limit - current.used,
		ResetAt:   current.resetAt,
	}, nil
}

// PurgeExpired drops identities whose window has elapsed, bounding the map
// for long-lived processes with high-cardinality identities.
func (l *WindowLimiter) PurgeExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0

	for identity, current := range l.windows {
		if !now.Before(current.resetAt) {
			delete(l.windows, identity)

			removed++
		}
	}

	return removed
}
