// Package ratelimit implements the fixed-window policy rate limiter keyed by
// (subject, operation). This is distinct from the per-IP HTTP flood limiter
// in the server middleware: this one enforces configured governance quotas
// and is consulted by the gateway before every dispatch.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Limiter tracks fixed-window counters per (subject, operation) key. Safe for
// concurrent use; the check and the increment happen atomically under one
// lock so concurrent callers can never overshoot a quota.
type Limiter struct {
	window time.Duration

	mu      sync.Mutex
	windows map[string]*window

	now func() time.Time // injectable clock for tests
}

type window struct {
	start time.Time
	count int
}

// Decision reports the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int           // calls left in the window after this one; -1 when unlimited
	RetryAfter time.Duration // time until window reset; only set when denied
}

// New creates a Limiter with the given fixed window length.
func New(windowLen time.Duration) *Limiter {
	if windowLen <= 0 {
		windowLen = time.Hour
	}
	return &Limiter{
		window:  windowLen,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow performs an atomic check-and-increment for one call against the
// quota. A quota of zero or less means unlimited. The counter is only
// incremented when the call is admitted, so a denied call never consumes
// budget.
func (l *Limiter) Allow(subject, operation string, quota int) Decision {
	if quota <= 0 {
		return Decision{Allowed: true, Remaining: -1}
	}

	key := subject + "\x00" + operation
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &window{start: now}
		l.windows[key] = w
	}

	if w.count >= quota {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: w.start.Add(l.window).Sub(now),
		}
	}

	w.count++
	return Decision{Allowed: true, Remaining: quota - w.count}
}

// Count returns the current counter for a key. Expired windows read as zero.
func (l *Limiter) Count(subject, operation string) int {
	key := subject + "\x00" + operation

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().Sub(w.start) >= l.window {
		return 0
	}
	return w.count
}

// Prune drops windows that expired before the current one began. Called
// periodically by the background sweeper; Allow also replaces expired
// windows lazily, so pruning is purely a memory bound.
func (l *Limiter) Prune() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.window {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// StartSweeper runs Prune at the given interval until stop is called.
func (l *Limiter) StartSweeper(interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				l.Prune()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// FormatRetryAfter renders a retry hint rounded up to whole seconds.
func FormatRetryAfter(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%ds", secs)
}
