package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"

	"identity-api/config"
	"identity-api/middleware/transaction"
	"identity-api/services/cache"
	"identity-api/services/logging"
	"identity-api/services/refreshtoken"
	"identity-api/services/tokens"
	"identity-api/services/users"
)

type AccountHandler struct {
	users   *users.Service
	tokens  *tokens.Service
	store   *refreshtoken.Store
	rotator *refreshtoken.Rotator
	cache   *cache.Service
	config  *config.Config
	logger  *logging.Service
}

func NewAccountHandler(
	userService *users.Service,
	tokenService *tokens.Service,
	store *refreshtoken.Store,
	rotator *refreshtoken.Rotator,
	cacheService *cache.Service,
	cfg *config.Config,
	logger *logging.Service,
) *AccountHandler {
	return &AccountHandler{
		users:   userService,
		tokens:  tokenService,
		store:   store,
		rotator: rotator,
		cache:   cacheService,
		config:  cfg,
		logger:  logger,
	}
}

type RegisterRequest struct {
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	AccessToken string `json:"accessToken"`
}

func (h *AccountHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	_, err := h.users.Create(transaction.FromContext(c), req.Email, req.FullName, req.Password, req.Roles)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrEmailTaken):
			return echo.NewHTTPError(http.StatusBadRequest, "email address is already registered")
		case errors.Is(err, users.ErrPasswordTooShort):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return err
		}
	}

	// cached user pages are stale once a new account exists
	if err := h.cache.RemoveByPrefix(c.Request().Context(), userPagePrefix); err != nil {
		h.logger.Warn("user page cache invalidation failed", zap.Error(err))
	}

	return c.JSON(http.StatusCreated, map[string]string{"message": "user registered successfully"})
}

func (h *AccountHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	user, err := h.users.VerifyCredentials(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	accessToken, err := h.tokens.Issue(user.ID, user.Email, user.FullName, user.RoleNames())
	if err != nil {
		return err
	}

	refreshToken, err := h.store.Create(transaction.FromContext(c), user.ID, deviceInfo(c))
	if err != nil {
		return err
	}

	h.setRefreshCookie(c, refreshToken.Token, refreshToken.ExpiryDate)

	h.logger.Info("user logged in", zap.Uint("user_id", user.ID))

	return c.JSON(http.StatusOK, AuthResponse{AccessToken: accessToken})
}

func (h *AccountHandler) Refresh(c echo.Context) error {
	presented := h.refreshCookieValue(c)
	origin := c.Request().Header.Get("Origin")

	result, err := h.rotator.Rotate(transaction.FromContext(c), presented, origin, deviceInfo(c))
	if err != nil {
		switch {
		case errors.Is(err, refreshtoken.ErrMissingToken),
			errors.Is(err, refreshtoken.ErrOriginRejected),
			errors.Is(err, refreshtoken.ErrTokenInvalid),
			errors.Is(err, refreshtoken.ErrUserNotEligible):
			h.clearRefreshCookie(c)
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		default:
			return err
		}
	}

	h.setRefreshCookie(c, result.RefreshToken.Token, result.RefreshToken.ExpiryDate)

	return c.JSON(http.StatusOK, AuthResponse{AccessToken: result.AccessToken})
}

func (h *AccountHandler) Logout(c echo.Context) error {
	if err := h.rotator.Revoke(transaction.FromContext(c), h.refreshCookieValue(c)); err != nil {
		return err
	}

	h.clearRefreshCookie(c)

	return c.JSON(http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AccountHandler) refreshCookieValue(c echo.Context) string {
	cookie, err := c.Cookie(h.config.RefreshToken.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *AccountHandler) setRefreshCookie(c echo.Context, token string, expiry time.Time) {
	c.SetCookie(&http.Cookie{
		Name:     h.config.RefreshToken.CookieName,
		Value:    token,
		Path:     h.config.RefreshToken.CookiePath,
		Expires:  expiry,
		MaxAge:   int(h.config.RefreshToken.Expiry.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AccountHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.config.RefreshToken.CookieName,
		Value:    "",
		Path:     h.config.RefreshToken.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

// deviceInfo condenses the User-Agent into "browser os device" for the audit
// trail on refresh token rows.
func deviceInfo(c echo.Context) string {
	ua := useragent.Parse(c.Request().UserAgent())
	if ua.Name == "" {
		return ""
	}
	info := ua.Name + " " + ua.Version
	if ua.OS != "" {
		info += " on " + ua.OS
	}
	return info
}
