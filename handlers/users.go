package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-api/services/cache"
	"identity-api/services/logging"
	"identity-api/services/users"
)

const userPagePrefix = "users:page:"

type UsersHandler struct {
	users  *users.Service
	cache  *cache.Service
	logger *logging.Service
}

func NewUsersHandler(userService *users.Service, cacheService *cache.Service, logger *logging.Service) *UsersHandler {
	return &UsersHandler{users: userService, cache: cacheService, logger: logger}
}

// List serves one page of users, backed by the cache so the admin dashboard
// does not hammer the database on every poll.
func (h *UsersHandler) List(c echo.Context) error {
	pageNumber := queryInt(c, "pageNumber", 1)
	pageSize := queryInt(c, "pageSize", 10)

	ctx := c.Request().Context()
	key := fmt.Sprintf("%s%d:%d", userPagePrefix, pageNumber, pageSize)

	var page users.PagedUsers
	hit, err := h.cache.Get(ctx, key, &page)
	if err != nil {
		h.logger.Warn("user page cache read failed", zap.Error(err))
	}
	if hit {
		return c.JSON(http.StatusOK, page)
	}

	result, err := h.users.ListUsers(pageNumber, pageSize)
	if err != nil {
		return err
	}

	if err := h.cache.Set(ctx, key, result, 0); err != nil {
		h.logger.Warn("user page cache write failed", zap.Error(err))
	}

	return c.JSON(http.StatusOK, result)
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
