package ratelimit

import (
	"context"
	"sync"
	"time"
)

// TokenBucket admits one request per available token. Tokens replenish
// lazily: refillTokens are added per refillPeriod elapsed, capped at the
// bucket size. Sized small on the auth routes to blunt credential stuffing
// and refresh token brute force.
type TokenBucket struct {
	size         int
	refillTokens int
	refillPeriod time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket

	stop      chan struct{}
	closeOnce sync.Once
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

func NewTokenBucket(size, refillTokens int, refillPeriod time.Duration) *TokenBucket {
	tb := &TokenBucket{
		size:         size,
		refillTokens: refillTokens,
		refillPeriod: refillPeriod,
		buckets:      make(map[string]*bucket),
		stop:         make(chan struct{}),
	}

	go tb.cleanup()

	return tb
}

// Close stops the janitor goroutine. Safe to call more than once.
func (tb *TokenBucket) Close() {
	tb.closeOnce.Do(func() { close(tb.stop) })
}

func (tb *TokenBucket) Admit(ctx context.Context, key string) Decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()

	b, ok := tb.buckets[key]
	if !ok {
		b = &bucket{tokens: tb.size, lastRefill: now}
		tb.buckets[key] = b
	} else {
		tb.refill(b, now)
	}

	if b.tokens > 0 {
		b.tokens--
		return Decision{Allowed: true}
	}

	return Decision{
		Allowed:    false,
		RetryAfter: b.lastRefill.Add(tb.refillPeriod).Sub(now),
	}
}

// refill credits whole periods elapsed since the last refill. Callers must
// hold tb.mu.
func (tb *TokenBucket) refill(b *bucket, now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	periods := int(elapsed / tb.refillPeriod)
	if periods <= 0 {
		return
	}

	b.tokens += periods * tb.refillTokens
	if b.tokens > tb.size {
		b.tokens = tb.size
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(periods) * tb.refillPeriod)
}

func (tb *TokenBucket) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-tb.stop:
			return
		case <-ticker.C:
			tb.mu.Lock()
			now := time.Now()
			for key, b := range tb.buckets {
				tb.refill(b, now)
				if b.tokens >= tb.size {
					delete(tb.buckets, key)
				}
			}
			tb.mu.Unlock()
		}
	}
}
