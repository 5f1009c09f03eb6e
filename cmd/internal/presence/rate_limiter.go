package presence

import (
	"sync"
	"time"
)

// RateLimiter bounds how many inbound frames a single connection may send
// within a sliding window. Timestamps live in a fixed-size ring so a burst
// cannot grow the buffer.
type RateLimiter struct {
	mu     sync.Mutex
	ring   []time.Time
	head   int
	count  int
	window time.Duration
}

// NewRateLimiter constructs a RateLimiter. Non-positive inputs fall back to
// the package limits.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{
		ring:   make([]time.Time, limit),
		window: window,
	}
}

// Allow reports whether an event at time "now" is within the limit, and
// records it when it is.
func (r *RateLimiter) Allow(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cut := now.Add(-r.window)

	// Drop expired entries from the oldest end.
	for r.count > 0 {
		oldest := (r.head - r.count + len(r.ring)) % len(r.ring)
		if r.ring[oldest].After(cut) {
			break
		}
		r.count--
	}

	if r.count >= len(r.ring) {
		return false
	}

	r.ring[r.head] = now
	r.head = (r.head + 1) % len(r.ring)
	r.count++
	return true
}
