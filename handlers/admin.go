package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-api/services/logging"
	"identity-api/services/sweeper"
)

type AdminHandler struct {
	sweeper *sweeper.Sweeper
	logger  *logging.Service
}

func NewAdminHandler(sw *sweeper.Sweeper, logger *logging.Service) *AdminHandler {
	return &AdminHandler{sweeper: sw, logger: logger}
}

// CleanupTokens triggers the same purge the background sweeper runs, on
// demand, and reports how many rows were removed.
func (h *AdminHandler) CleanupTokens(c echo.Context) error {
	cleaned, err := h.sweeper.RunOnce()
	if err != nil {
		return err
	}

	h.logger.Info("manual token cleanup", zap.Int64("cleaned", cleaned))

	return c.JSON(http.StatusOK, map[string]int64{"cleanedTokens": cleaned})
}
