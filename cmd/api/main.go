package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"identity-api/config"
	"identity-api/database"
	"identity-api/handlers"
	"identity-api/middleware/ratelimit"
	"identity-api/server"
	"identity-api/services/cache"
	"identity-api/services/logging"
	"identity-api/services/refreshtoken"
	"identity-api/services/sweeper"
	"identity-api/services/tokens"
	"identity-api/services/users"
)

func main() {
	app := fx.New(
		config.NewProvider(),
		logging.Module,
		fx.Provide(func() *database.ModelsOption {
			return database.WithModels(
				&users.User{},
				&users.Role{},
				&refreshtoken.RefreshToken{},
			)
		}),
		database.Module,
		users.Options,
		tokens.Options,
		refreshtoken.Options,
		sweeper.Options,
		cache.Options,
		ratelimit.Options,
		handlers.Options,
		server.Options,
		fx.WithLogger(func(svc *logging.Service) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: svc.Logger()}
		}),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("received %v, shutting down gracefully", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		log.Fatalf("failed to stop gracefully: %v", err)
	}
}
