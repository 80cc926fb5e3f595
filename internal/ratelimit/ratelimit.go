// Package ratelimit implements a per-key sliding window request limiter.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows at most max requests per key within any window. It is safe
// for concurrent use; prune, check and append happen under one lock.
type Limiter struct {
	mu        sync.Mutex
	window    time.Duration
	max       int
	hits      map[string][]time.Time
	lastSweep time.Time
	now       func() time.Time
}

// New creates a Limiter allowing max requests per window for each key.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Window is the length of the sliding window.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Allow records a request for key and reports whether it is within the limit.
// Rejected requests are not recorded.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.window {
		l.sweep(now)
	}

	recent := l.prune(l.hits[key], now)
	if len(recent) >= l.max {
		l.hits[key] = recent
		return false
	}
	l.hits[key] = append(recent, now)
	return true
}

// Len returns the number of keys currently tracked.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// prune drops timestamps that fell out of the window. hits is ordered.
func (l *Limiter) prune(hits []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	return hits[i:]
}

// sweep forgets keys with no request inside the window.
func (l *Limiter) sweep(now time.Time) {
	for key, hits := range l.hits {
		if recent := l.prune(hits, now); len(recent) == 0 {
			delete(l.hits, key)
		} else {
			l.hits[key] = recent
		}
	}
	l.lastSweep = now
}
