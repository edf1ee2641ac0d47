package authjwt

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"identity-api/services/tokens"
)

const (
	claimsKey = "_access_claims"
	userIDKey = "_access_user_id"
)

// RequireAuth validates the bearer access token on every request. Rejection
// messages are deliberately generic so callers cannot probe which check
// failed.
func RequireAuth(tokenService *tokens.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			tokenString := strings.TrimPrefix(header, "Bearer ")
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			claims, err := tokenService.Validate(tokenString)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			userID, err := claims.SubjectID()
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}

			c.Set(claimsKey, claims)
			c.Set(userIDKey, userID)

			return next(c)
		}
	}
}

// RequireRole guards a route group behind RequireAuth with a role check.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := GetClaims(c)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !claims.HasRole(role) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}
			return next(c)
		}
	}
}

func GetClaims(c echo.Context) *tokens.Claims {
	if claims, ok := c.Get(claimsKey).(*tokens.Claims); ok {
		return claims
	}
	return nil
}

func GetUserID(c echo.Context) uint {
	if id, ok := c.Get(userIDKey).(uint); ok {
		return id
	}
	return 0
}
