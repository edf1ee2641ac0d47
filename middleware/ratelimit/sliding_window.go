package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow counts requests across a segmented window: the window is
// divided into equal segments and the admitted total is the sum over the
// segments still inside the window. Segmentation avoids the double-burst
// weakness at fixed-window boundaries.
type SlidingWindow struct {
	limit    int
	window   time.Duration
	segments int
	segSize  time.Duration

	mu      sync.Mutex
	entries map[string]map[int64]int

	stop      chan struct{}
	closeOnce sync.Once
}

func NewSlidingWindow(limit int, window time.Duration, segments int) *SlidingWindow {
	sw := &SlidingWindow{
		limit:    limit,
		window:   window,
		segments: segments,
		segSize:  window / time.Duration(segments),
		entries:  make(map[string]map[int64]int),
		stop:     make(chan struct{}),
	}

	go sw.cleanup()

	return sw
}

// Close stops the janitor goroutine. Safe to call more than once.
func (sw *SlidingWindow) Close() {
	sw.closeOnce.Do(func() { close(sw.stop) })
}

func (sw *SlidingWindow) Admit(ctx context.Context, key string) Decision {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := time.Now()
	current := now.UnixNano() / int64(sw.segSize)
	oldest := current - int64(sw.segments) + 1

	segs, ok := sw.entries[key]
	if !ok {
		segs = make(map[int64]int)
		sw.entries[key] = segs
	}

	total := 0
	for idx, count := range segs {
		if idx < oldest {
			delete(segs, idx)
			continue
		}
		total += count
	}

	if total < sw.limit {
		segs[current]++
		return Decision{Allowed: true}
	}

	// The earliest the count can drop is when the oldest populated segment
	// slides out of the window.
	oldestPopulated := current
	for idx := range segs {
		if idx < oldestPopulated {
			oldestPopulated = idx
		}
	}
	retryAt := time.Unix(0, (oldestPopulated+int64(sw.segments))*int64(sw.segSize))

	return Decision{Allowed: false, RetryAfter: time.Until(retryAt)}
}

func (sw *SlidingWindow) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-sw.stop:
			return
		case <-ticker.C:
			sw.mu.Lock()
			oldest := time.Now().UnixNano()/int64(sw.segSize) - int64(sw.segments) + 1
			for key, segs := range sw.entries {
				for idx := range segs {
					if idx < oldest {
						delete(segs, idx)
					}
				}
				if len(segs) == 0 {
					delete(sw.entries, key)
				}
			}
			sw.mu.Unlock()
		}
	}
}
