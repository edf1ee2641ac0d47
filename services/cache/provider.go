package cache

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Options = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(func(lc fx.Lifecycle, svc *Service) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				// An unreachable cache is degraded service, not a startup
				// failure.
				if err := svc.Ping(ctx); err != nil {
					svc.logger.Warn("redis unreachable, caching degraded", zap.Error(err))
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return svc.Close()
			},
		})
	}),
)
