// Package ratelimit enforces a minimum spacing between successive outbound
// requests on a single logical client. There is no token-bucket burst;
// strictly one request may pass per interval.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter spaces out calls to Acquire by at least the configured interval.
// The interval is mutable at runtime; the config watcher calls SetInterval
// from another goroutine, so all state is mutex-guarded.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	changed  chan struct{} // closed and replaced on SetInterval to wake waiters
}

// New creates a limiter with the given minimum inter-request interval.
// A zero or negative interval disables throttling.
func New(interval time.Duration) *Limiter {
	return &Limiter{interval: interval, changed: make(chan struct{})}
}

// Acquire blocks until at least the interval has elapsed since the previous
// successful Acquire, then records the new request time. The first call
// passes immediately. Returns ctx.Err() if the context is canceled while
// waiting; in that case the request slot is not consumed.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		next := l.last.Add(l.interval)
		if l.last.IsZero() || !now.Before(next) {
			l.last = now
			l.mu.Unlock()
			return nil
		}
		wait := next.Sub(now)
		changed := l.changed
		l.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-changed:
			timer.Stop()
			// Interval replaced mid-wait; recompute against the new value.
		case <-timer.C:
		}
	}
}

// SetInterval replaces the minimum spacing and wakes any waiter so it
// re-evaluates against the new value.
func (l *Limiter) SetInterval(d time.Duration) {
	l.mu.Lock()
	l.interval = d
	close(l.changed)
	l.changed = make(chan struct{})
	l.mu.Unlock()
}

// Interval returns the current minimum spacing.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}
