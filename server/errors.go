package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-api/middleware/ratelimit"
	"identity-api/services/logging"
)

// errorHandler is the single place errors become HTTP responses. Rate limit
// rejections share one shape no matter which policy fired, and raw internal
// errors never reach the body.
func errorHandler(logger *logging.Service) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var rateErr *ratelimit.RateLimitedError
		if errors.As(err, &rateErr) {
			retryAfter := rateErr.RetryAfterSeconds()
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = c.JSON(http.StatusTooManyRequests, map[string]any{
				"error":      "too many requests",
				"retryAfter": retryAfter,
			})
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			message := httpErr.Message
			if _, ok := message.(string); !ok {
				message = http.StatusText(httpErr.Code)
			}
			_ = c.JSON(httpErr.Code, map[string]any{"error": message})
			return
		}

		logger.Error("unhandled error",
			zap.String("path", c.Path()),
			zap.Error(err))
		_ = c.JSON(http.StatusInternalServerError, map[string]any{"error": "internal server error"})
	}
}
