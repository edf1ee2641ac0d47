package logging

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// RequestLogger logs one structured line per request. Paths in skipPaths
// (health probes, typically) are not logged.
func RequestLogger(logger *Service, skipPaths ...string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		Skipper: func(c echo.Context) bool {
			return skip[c.Request().URL.Path]
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}

			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}

			switch {
			case v.Status >= 500:
				logger.Error("server error", fields...)
			case v.Status >= 400:
				logger.Warn("client error", fields...)
			default:
				logger.Info("request", fields...)
			}

			return nil
		},
	})
}
