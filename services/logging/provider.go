package logging

import (
	"context"

	"go.uber.org/fx"

	"identity-api/config"
)

var Module = fx.Options(
	fx.Provide(NewLoggingService),
	fx.Invoke(func(lc fx.Lifecycle, svc *Service) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				// Sync flushes buffered entries; stdout sync errors are harmless.
				_ = svc.Sync()
				return nil
			},
		})
	}),
)

func NewLoggingService(cfg *config.Config) (*Service, error) {
	return NewService(cfg.Log)
}
