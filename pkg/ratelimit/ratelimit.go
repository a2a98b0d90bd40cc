package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a sliding window counter keyed by caller, e.g. a remote address.
type Limiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	window  time.Duration
	maxHits int
	now     func() time.Time

	lastSweep time.Time
}

func NewLimiter(window time.Duration, maxHits int) *Limiter {
	return &Limiter{
		hits:    make(map[string][]time.Time),
		window:  window,
		maxHits: maxHits,
		now:     time.Now,
	}
}

// Allow records a hit for key unless the window is already full.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Reserve(key)
	return ok
}

// Reserve is Allow that also reports, on rejection, how long until the oldest
// hit leaves the window.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.window {
		l.sweepLocked(now)
	}
	recent := l.prune(key, now)

	if len(recent) >= l.maxHits {
		if len(recent) == 0 {
			return false, l.window
		}
		return false, recent[0].Add(l.window).Sub(now)
	}

	l.hits[key] = append(recent, now)
	return true, 0
}

// Sweep drops keys with no hit inside the window and returns how many remain.
// Reserve also sweeps once per window.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(l.now())
	return len(l.hits)
}

// caller holds l.mu
func (l *Limiter) sweepLocked(now time.Time) {
	for key := range l.hits {
		l.prune(key, now)
	}
	l.lastSweep = now
}

// caller holds l.mu
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	hits := l.hits[key]
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]

	if len(hits) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = hits
	return hits
}
