package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Decision is the outcome of admission control for one request.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Policy is one admission-control algorithm. Admit may block briefly for
// policies that queue delayed requests instead of rejecting them outright.
type Policy interface {
	Admit(ctx context.Context, key string) Decision
}

// RateLimitedError is returned up the middleware chain when any policy
// rejects a request. The HTTP layer renders it uniformly so callers cannot
// tell which policy fired.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// RetryAfterSeconds rounds up so a client never retries too early.
func (e *RateLimitedError) RetryAfterSeconds() int {
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 || secs == 0 {
		secs++
	}
	return secs
}
