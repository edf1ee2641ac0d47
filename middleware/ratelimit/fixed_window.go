package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedWindow admits up to limit requests per window and keeps a small FIFO
// queue of requests that arrive while the window is full: those wait for the
// next window instead of failing. Requests beyond the queue bound are
// rejected immediately.
type FixedWindow struct {
	limit      int
	window     time.Duration
	queueLimit int

	mu      sync.Mutex
	entries map[string]*fixedWindowEntry

	stop      chan struct{}
	closeOnce sync.Once
}

type fixedWindowEntry struct {
	count       int
	windowStart time.Time
	queued      int
}

func NewFixedWindow(limit int, window time.Duration, queueLimit int) *FixedWindow {
	fw := &FixedWindow{
		limit:      limit,
		window:     window,
		queueLimit: queueLimit,
		entries:    make(map[string]*fixedWindowEntry),
		stop:       make(chan struct{}),
	}

	go fw.cleanup()

	return fw
}

// Close stops the janitor goroutine. Safe to call more than once.
func (fw *FixedWindow) Close() {
	fw.closeOnce.Do(func() { close(fw.stop) })
}

func (fw *FixedWindow) Admit(ctx context.Context, key string) Decision {
	now := time.Now()

	fw.mu.Lock()
	entry := fw.entry(key, now)

	if entry.count < fw.limit {
		entry.count++
		fw.mu.Unlock()
		return Decision{Allowed: true}
	}

	windowEnd := entry.windowStart.Add(fw.window)

	if entry.queued >= fw.queueLimit {
		fw.mu.Unlock()
		return Decision{Allowed: false, RetryAfter: time.Until(windowEnd)}
	}

	// Queue the request: hold it until the window rolls over, then admit it
	// into the fresh window. Waiters are woken in arrival order by the
	// timer expiring for all of them at the same deadline.
	entry.queued++
	fw.mu.Unlock()

	timer := time.NewTimer(time.Until(windowEnd))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		fw.mu.Lock()
		entry.queued--
		fw.mu.Unlock()
		return Decision{Allowed: false, RetryAfter: time.Until(windowEnd)}
	case <-timer.C:
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	entry = fw.entry(key, time.Now())
	entry.queued--
	entry.count++

	return Decision{Allowed: true}
}

// entry returns the state for key, rolling the window over if it has lapsed.
// Callers must hold fw.mu.
func (fw *FixedWindow) entry(key string, now time.Time) *fixedWindowEntry {
	e, ok := fw.entries[key]
	if !ok {
		e = &fixedWindowEntry{windowStart: now}
		fw.entries[key] = e
		return e
	}

	if now.Sub(e.windowStart) >= fw.window {
		e.count = 0
		e.windowStart = now
	}

	return e
}

func (fw *FixedWindow) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-fw.stop:
			return
		case <-ticker.C:
			fw.mu.Lock()
			now := time.Now()
			for key, e := range fw.entries {
				if e.queued == 0 && now.Sub(e.windowStart) >= 2*fw.window {
					delete(fw.entries, key)
				}
			}
			fw.mu.Unlock()
		}
	}
}
