package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow is an in-memory sliding-window limiter.
type SlidingWindow struct {
	config Config

	mu   sync.RWMutex
	keys map[string]*window
}

type window struct {
	mu   sync.Mutex
	hits []time.Time
	// dead is set by Sweep after the window left the key map.
	dead bool
}

// NewSlidingWindow creates an in-memory sliding-window limiter.
func NewSlidingWindow(config Config) *SlidingWindow {
	return &SlidingWindow{
		config: config.withDefaults(),
		keys:   make(map[string]*window),
	}
}

// Config returns the effective configuration.
func (l *SlidingWindow) Config() Config {
	return l.config
}

// Allow prunes the window for key and admits the event if the window has room.
func (l *SlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	for {
		w := l.window(key)
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		d := l.admit(w, l.config.Now())
		w.mu.Unlock()
		return d, nil
	}
}

func (l *SlidingWindow) window(key string) *window {
	l.mu.RLock()
	w, ok := l.keys[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if w, ok = l.keys[key]; ok {
		return w
	}
	w = &window{}
	l.keys[key] = w
	return w
}

// admit must be called with w.mu held.
func (l *SlidingWindow) admit(w *window, now time.Time) Decision {
	if n := len(w.hits); n > 0 && now.Before(w.hits[n-1]) {
		now = w.hits[n-1]
	}
	w.prune(now.Add(-l.config.Window))

	limit := l.config.Max
	if len(w.hits) >= limit {
		resetAt := w.hits[0].Add(l.config.Window)
		return Decision{
			Allowed:    false,
			Limit:      limit,
			Remaining:  0,
			RetryAfter: resetAt.Sub(now),
			ResetAt:    resetAt,
		}
	}

	w.hits = append(w.hits, now)
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.hits),
		ResetAt:   w.hits[0].Add(l.config.Window),
	}
}

// prune drops every hit at or before cutoff.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.hits) && !w.hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	w.hits = append(w.hits[:0], w.hits[i:]...)
}

// Len returns the number of tracked keys.
func (l *SlidingWindow) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keys)
}

// Sweep removes keys whose windows are empty at now and returns how many
// were removed.
func (l *SlidingWindow) Sweep(now time.Time) int {
	cutoff := now.Add(-l.config.Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, w := range l.keys {
		w.mu.Lock()
		w.prune(cutoff)
		if len(w.hits) == 0 {
			w.dead = true
			delete(l.keys, key)
			removed++
		}
		w.mu.Unlock()
	}
	return removed
}

// Run sweeps idle keys every interval until ctx is cancelled.
func (l *SlidingWindow) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.config.Window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep(l.config.Now())
		}
	}
}

// Ensure SlidingWindow implements Limiter
var _ Limiter = (*SlidingWindow)(nil)
