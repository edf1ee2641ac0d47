package transaction

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"identity-api/services/logging"
)

const txKey = "_db_tx"

// Middleware wraps every mutating request in one database transaction:
// begin before the handler, commit only if it returns without error, roll
// back otherwise. Read-only methods bypass the wrapper entirely. This
// transaction is the atomicity boundary the refresh token rotation relies
// on: retire-old and create-new can never be observed half-applied.
func Middleware(db *gorm.DB, logger *logging.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			tx := db.WithContext(c.Request().Context()).Begin()
			if tx.Error != nil {
				logger.Error("failed to begin transaction", zap.Error(tx.Error))
				return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}

			c.Set(txKey, tx)

			defer func() {
				if r := recover(); r != nil {
					tx.Rollback()
					panic(r)
				}
			}()

			if err := next(c); err != nil {
				if rbErr := tx.Rollback().Error; rbErr != nil {
					logger.Error("transaction rollback failed",
						zap.String("path", c.Path()),
						zap.Error(rbErr))
				}
				logger.Debug("transaction rolled back", zap.String("path", c.Path()))
				return err
			}

			if err := tx.Commit().Error; err != nil {
				logger.Error("transaction commit failed",
					zap.String("path", c.Path()),
					zap.Error(err))
				return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}

			return nil
		}
	}
}

// FromContext returns the request-scoped transaction, or nil outside the
// wrapper (read-only requests, tests).
func FromContext(c echo.Context) *gorm.DB {
	if tx, ok := c.Get(txKey).(*gorm.DB); ok {
		return tx
	}
	return nil
}
