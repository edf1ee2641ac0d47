package server

import (
	"context"

	"go.uber.org/fx"
)

var Options = fx.Options(
	fx.Provide(New),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(func(lc fx.Lifecycle, srv *Server) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go srv.Start()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
