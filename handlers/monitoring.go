package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"identity-api/config"
)

type MonitoringHandler struct {
	db      *gorm.DB
	config  *config.Config
	started time.Time
}

func NewMonitoringHandler(db *gorm.DB, cfg *config.Config) *MonitoringHandler {
	return &MonitoringHandler{db: db, config: cfg, started: time.Now().UTC()}
}

func (h *MonitoringHandler) Health(c echo.Context) error {
	status := "healthy"
	code := http.StatusOK

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	return c.JSON(code, map[string]any{
		"status": status,
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *MonitoringHandler) Version(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"name":    h.config.App.Name,
		"version": h.config.App.Version,
	})
}
