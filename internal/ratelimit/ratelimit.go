// Package ratelimit implements the process-wide rolling-window quota on LLM
// calls.
//
// The limiter keeps a bounded list of wall-clock timestamps of accepted LLM
// starts. Entries older than the configured window are pruned on every check,
// so at any instant the list holds at most MaxRequests entries. One limiter
// instance is shared by all sessions; it is passed into sessions explicitly
// rather than reached through a global.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultMaxRequests is the default quota of LLM calls per window.
	DefaultMaxRequests = 40

	// DefaultWindow is the default rolling window width.
	DefaultWindow = 24 * time.Hour
)

// Limiter is a rolling-window rate limiter. All methods are safe for
// concurrent use; Allow and Record are atomic with respect to each other.
type Limiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	records []time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Limiter admitting at most max requests per window. Zero or
// negative arguments select the defaults.
func New(max int, window time.Duration) *Limiter {
	if max <= 0 {
		max = DefaultMaxRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// Allow prunes expired records and reports whether another request fits in
// the window. Callers that receive true must follow up with Record before
// starting the LLM call.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.records) < l.max
}

// TryAcquire atomically checks the quota and records the request when it
// fits. Unlike the Allow-then-Record pair, two sessions racing for the last
// slot cannot both be admitted.
func (l *Limiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	if len(l.records) >= l.max {
		return false
	}
	l.records = append(l.records, now)
	return true
}

// Record appends the current timestamp to the record list.
func (l *Limiter) Record() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.prune(now)
	l.records = append(l.records, now)
}

// Len reports the number of unexpired records.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.records)
}

// prune drops records older than the window. Caller must hold mu.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.records) && !l.records[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.records = append(l.records[:0], l.records[i:]...)
	}
}
