package server

import (
	"gorm.io/gorm"

	"identity-api/handlers"
	"identity-api/middleware/authjwt"
	"identity-api/middleware/ratelimit"
	"identity-api/middleware/secureheaders"
	"identity-api/middleware/transaction"
	"identity-api/services/logging"
	"identity-api/services/tokens"
)

// RegisterRoutes wires the middleware stack and the API surface. The global
// fixed-window limiter sits on every group; the auth token bucket only on
// the credential-bearing routes; the sliding window on the authenticated
// general API.
func RegisterRoutes(
	srv *Server,
	db *gorm.DB,
	logger *logging.Service,
	tokenService *tokens.Service,
	policies *ratelimit.Policies,
	account *handlers.AccountHandler,
	admin *handlers.AdminHandler,
	users *handlers.UsersHandler,
	roles *handlers.RolesHandler,
	monitoring *handlers.MonitoringHandler,
) {
	e := srv.Echo()

	e.Use(secureheaders.Middleware())
	e.Use(logging.RequestLogger(logger, "/api/monitoring/health"))
	e.Use(transaction.Middleware(db, logger))

	global := ratelimit.Middleware(policies.Global, ratelimit.IdentityOrHostKey)
	authBucket := ratelimit.Middleware(policies.Auth, ratelimit.RouteKey)
	apiWindow := ratelimit.Middleware(policies.API, ratelimit.RouteKey)
	requireAuth := authjwt.RequireAuth(tokenService)
	requireAdmin := authjwt.RequireRole("admin")

	accountGroup := e.Group("/api/account", global, authBucket)
	accountGroup.POST("/register", account.Register)
	accountGroup.POST("/login", account.Login)
	accountGroup.POST("/refresh-token", account.Refresh)
	accountGroup.POST("/logout", account.Logout)

	usersGroup := e.Group("/api/users", requireAuth, global, apiWindow)
	usersGroup.GET("", users.List, requireAdmin)

	rolesGroup := e.Group("/api/roles", requireAuth, requireAdmin, global, apiWindow)
	rolesGroup.POST("", roles.Create)
	rolesGroup.GET("", roles.List)
	rolesGroup.DELETE("/:id", roles.Delete)

	adminGroup := e.Group("/api/admin", requireAuth, requireAdmin, global)
	adminGroup.POST("/cleanup-tokens", admin.CleanupTokens)

	monitoringGroup := e.Group("/api/monitoring")
	monitoringGroup.GET("/health", monitoring.Health)
	monitoringGroup.GET("/version", monitoring.Version)
}
