// Package ratelimit implements a per-key sliding-window request limiter.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow allows at most Limit calls per key within any Window.
type SlidingWindow struct {
	limit  int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time
}

// NewSlidingWindow creates a limiter allowing limit calls per window.
func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	if limit < 1 {
		limit = 1
	}
	return &SlidingWindow{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// Limit returns the per-window cap.
func (l *SlidingWindow) Limit() int { return l.limit }

// prune drops timestamps at or before now-window. Caller holds mu.
func (l *SlidingWindow) prune(key string, now time.Time) []time.Time {
	ts := l.hits[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	ts = ts[i:]
	if len(ts) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = ts
	return ts
}

// Allow records a call for key at now and reports whether it fits the window.
// Rejected calls are not recorded.
func (l *SlidingWindow) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.prune(key, now)
	if len(ts) >= l.limit {
		return false
	}
	l.hits[key] = append(ts, now)
	return true
}

// RetryAfter returns how long key must wait before its next call is allowed.
// Zero means a call would be allowed now.
func (l *SlidingWindow) RetryAfter(key string, now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.prune(key, now)
	if len(ts) < l.limit {
		return 0
	}
	// The oldest timestamp that must expire for a slot to open.
	oldest := ts[len(ts)-l.limit]
	return oldest.Add(l.window).Sub(now)
}

// Sweep evicts keys with no timestamps left in the window.
func (l *SlidingWindow) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.hits)
	for key := range l.hits {
		l.prune(key, now)
	}
	return before - len(l.hits)
}

// Keys returns the number of tracked keys.
func (l *SlidingWindow) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// Run sweeps every interval until ctx is cancelled.
func (l *SlidingWindow) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = l.window
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}
