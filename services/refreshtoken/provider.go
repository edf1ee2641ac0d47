package refreshtoken

import (
	"go.uber.org/fx"

	"identity-api/config"
	"identity-api/services/logging"
	"identity-api/services/tokens"
	"identity-api/services/users"
)

var Options = fx.Options(
	fx.Provide(NewStore),
	fx.Provide(ProvideRotator),
)

func ProvideRotator(store *Store, userService *users.Service, tokenService *tokens.Service, cfg *config.Config, logger *logging.Service) *Rotator {
	return NewRotator(store, userService, tokenService, cfg, logger)
}

var _ UserDirectory = (*users.Service)(nil)
var _ AccessTokenIssuer = (*tokens.Service)(nil)
