package sweeper

import (
	"context"

	"go.uber.org/fx"

	"identity-api/config"
	"identity-api/services/logging"
	"identity-api/services/refreshtoken"
)

var Options = fx.Options(
	fx.Provide(ProvideSweeper),
	fx.Invoke(func(lc fx.Lifecycle, s *Sweeper) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return s.Stop(ctx)
			},
		})
	}),
)

func ProvideSweeper(store *refreshtoken.Store, cfg *config.Config, logger *logging.Service) *Sweeper {
	return New(store, cfg, logger)
}

var _ Store = (*refreshtoken.Store)(nil)
