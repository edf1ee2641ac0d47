package ratelimit

import (
	"context"

	"go.uber.org/fx"

	"identity-api/config"
)

// Policies bundles the three admission-control algorithms guarding the API:
// a global fixed window over all traffic, a small token bucket on the auth
// routes, and a segmented sliding window on the general API.
type Policies struct {
	Global *FixedWindow
	Auth   *TokenBucket
	API    *SlidingWindow
}

func ProvidePolicies(cfg *config.Config) *Policies {
	rl := cfg.RateLimit
	return &Policies{
		Global: NewFixedWindow(rl.GlobalLimit, rl.GlobalWindow, rl.GlobalQueueLimit),
		Auth:   NewTokenBucket(rl.AuthBucketSize, rl.AuthRefillTokens, rl.AuthRefillPeriod),
		API:    NewSlidingWindow(rl.APILimit, rl.APIWindow, rl.APISegments),
	}
}

// Close stops every policy's janitor goroutine.
func (p *Policies) Close() {
	p.Global.Close()
	p.Auth.Close()
	p.API.Close()
}

var Options = fx.Options(
	fx.Provide(ProvidePolicies),
	fx.Invoke(func(lc fx.Lifecycle, p *Policies) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				p.Close()
				return nil
			},
		})
	}),
)
