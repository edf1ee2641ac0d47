package ratelimit

import (
	"github.com/labstack/echo/v4"

	"identity-api/middleware/authjwt"
)

// KeyFunc derives the partition key for a request.
type KeyFunc func(c echo.Context) string

// IdentityOrHostKey partitions by the authenticated identity when present,
// falling back to the request host for anonymous traffic.
func IdentityOrHostKey(c echo.Context) string {
	if claims := authjwt.GetClaims(c); claims != nil {
		return "user:" + claims.Subject
	}
	return "host:" + c.Request().Host
}

// RouteKey gives every request to the same route one shared partition, the
// way the auth and API policies are scoped.
func RouteKey(c echo.Context) string {
	return "route:" + c.Path()
}

// Middleware runs one policy in front of the handler. A rejection surfaces
// as RateLimitedError so the central error handler renders the uniform 429
// regardless of which policy fired.
func Middleware(policy Policy, key KeyFunc) echo.MiddlewareFunc {
	if key == nil {
		key = IdentityOrHostKey
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := policy.Admit(c.Request().Context(), key(c))
			if !decision.Allowed {
				return &RateLimitedError{RetryAfter: decision.RetryAfter}
			}
			return next(c)
		}
	}
}
