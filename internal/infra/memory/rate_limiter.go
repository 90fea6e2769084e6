package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a process-local fixed-window counter. State is lost on restart and
// is not shared between instances; use the Redis limiter for multi-instance deployments.
type RateLimiter struct {
	clock func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	count int
	start time.Time
}

func NewRateLimiter() *RateLimiter {
	return NewRateLimiterWithClock(time.Now)
}

// NewRateLimiterWithClock is test-only for deterministic windows.
func NewRateLimiterWithClock(now func() time.Time) *RateLimiter {
	return &RateLimiter{clock: now, windows: make(map[string]*window)}
}

// Allow admits the call when key has used fewer than limit calls in its current window.
// A denied call does not count against the window.
func (l *RateLimiter) Allow(_ context.Context, key string, limit int, period time.Duration) (bool, error) {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) > period {
		l.windows[key] = &window{count: 1, start: now}
		l.sweepLocked(now, period)
		return true, nil
	}
	if w.count >= limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// sweepLocked drops windows that ended long ago so idle clients do not accumulate.
func (l *RateLimiter) sweepLocked(now time.Time, period time.Duration) {
	if len(l.windows) < 1024 {
		return
	}
	for key, w := range l.windows {
		if now.Sub(w.start) > 2*period {
			delete(l.windows, key)
		}
	}
}
