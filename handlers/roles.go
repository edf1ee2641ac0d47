package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-api/middleware/transaction"
	"identity-api/services/cache"
	"identity-api/services/logging"
	"identity-api/services/users"
)

const rolesCacheKey = "roles"

type RolesHandler struct {
	users  *users.Service
	cache  *cache.Service
	logger *logging.Service
}

func NewRolesHandler(userService *users.Service, cacheService *cache.Service, logger *logging.Service) *RolesHandler {
	return &RolesHandler{users: userService, cache: cacheService, logger: logger}
}

type CreateRoleRequest struct {
	Name string `json:"name"`
}

func (h *RolesHandler) Create(c echo.Context) error {
	var req CreateRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role name is required")
	}

	role, err := h.users.CreateRole(transaction.FromContext(c), req.Name)
	if err != nil {
		if errors.Is(err, users.ErrRoleExists) {
			return echo.NewHTTPError(http.StatusBadRequest, "role already exists")
		}
		return err
	}

	h.invalidate(c)

	return c.JSON(http.StatusCreated, role)
}

func (h *RolesHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	var cached []users.RoleSummary
	hit, err := h.cache.Get(ctx, rolesCacheKey, &cached)
	if err != nil {
		h.logger.Warn("role cache read failed", zap.Error(err))
	}
	if hit {
		return c.JSON(http.StatusOK, cached)
	}

	roles, err := h.users.ListRoles()
	if err != nil {
		return err
	}

	if err := h.cache.Set(ctx, rolesCacheKey, roles, 0); err != nil {
		h.logger.Warn("role cache write failed", zap.Error(err))
	}

	return c.JSON(http.StatusOK, roles)
}

func (h *RolesHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid role id")
	}

	if err := h.users.DeleteRole(transaction.FromContext(c), uint(id)); err != nil {
		if errors.Is(err, users.ErrRoleNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "role not found")
		}
		return err
	}

	h.invalidate(c)

	return c.NoContent(http.StatusNoContent)
}

func (h *RolesHandler) invalidate(c echo.Context) {
	if err := h.cache.Remove(c.Request().Context(), rolesCacheKey); err != nil {
		h.logger.Warn("role cache invalidation failed", zap.Error(err))
	}
}
