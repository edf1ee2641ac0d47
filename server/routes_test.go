package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"identity-api/config"
	"identity-api/handlers"
	"identity-api/middleware/ratelimit"
	"identity-api/services/cache"
	"identity-api/services/logging"
	"identity-api/services/refreshtoken"
	"identity-api/services/sweeper"
	"identity-api/services/tokens"
	"identity-api/services/users"
	"identity-api/testutils"
)

type testAPI struct {
	server *Server
	users  *users.Service
	store  *refreshtoken.Store
}

// setupAPI assembles the full middleware and handler stack against a
// file-backed database, the same wiring production uses minus the listener.
func setupAPI(t *testing.T, tweaks ...func(*config.Config)) *testAPI {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&users.User{}, &users.Role{}, &refreshtoken.RefreshToken{}))

	cfg := testutils.GetTestConfig()
	// generous limits so the limiter never interferes with functional tests
	cfg.RateLimit.GlobalLimit = 100000
	cfg.RateLimit.AuthBucketSize = 100000
	cfg.RateLimit.APILimit = 100000
	for _, tweak := range tweaks {
		tweak(cfg)
	}

	logger := logging.NewNop()

	userService := users.NewService(db, cfg, logger)
	tokenService, err := tokens.NewService(cfg, logger)
	require.NoError(t, err)
	store := refreshtoken.NewStore(db, cfg, logger)
	rotator := refreshtoken.NewRotator(store, userService, tokenService, cfg, logger)
	sw := sweeper.New(store, cfg, logger)

	mr := miniredis.RunT(t)
	cacheService := cache.NewServiceWithClient(
		redis.NewClient(&redis.Options{Addr: mr.Addr()}), cfg.Redis.CacheTTL, logger)
	t.Cleanup(func() { _ = cacheService.Close() })

	policies := ratelimit.ProvidePolicies(cfg)
	t.Cleanup(policies.Close)

	srv := New(cfg, logger)
	RegisterRoutes(
		srv, db, logger, tokenService, policies,
		handlers.NewAccountHandler(userService, tokenService, store, rotator, cacheService, cfg, logger),
		handlers.NewAdminHandler(sw, logger),
		handlers.NewUsersHandler(userService, cacheService, logger),
		handlers.NewRolesHandler(userService, cacheService, logger),
		handlers.NewMonitoringHandler(db, cfg),
	)

	return &testAPI{server: srv, users: userService, store: store}
}

type request struct {
	method        string
	path          string
	body          any
	authorization string
	origin        string
	cookie        *http.Cookie
}

func (api *testAPI) do(t *testing.T, r request) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}

	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.authorization != "" {
		req.Header.Set("Authorization", "Bearer "+r.authorization)
	}
	if r.origin != "" {
		req.Header.Set("Origin", r.origin)
	}
	// honour the cookie's path attribute the way a browser would: a cookie
	// scoped elsewhere is simply not sent
	if r.cookie != nil && strings.HasPrefix(r.path, r.cookie.Path) {
		req.AddCookie(r.cookie)
	}

	rec := httptest.NewRecorder()
	api.server.Echo().ServeHTTP(rec, req)
	return rec
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	return nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (api *testAPI) login(t *testing.T, email, password string) (string, *http.Cookie) {
	rec := api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/login",
		body:   map[string]string{"email": email, "password": password},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := refreshCookie(rec)
	require.NotNil(t, cookie, "login must set the refresh cookie")

	return decode(t, rec)["accessToken"].(string), cookie
}

func TestRegisterAndLogin(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/register",
		body:   map[string]string{"email": "alice@example.com", "fullName": "Alice", "password": "password123"},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	// duplicate registration
	rec = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/register",
		body:   map[string]string{"email": "alice@example.com", "fullName": "Alice", "password": "password123"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// weak password
	rec = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/register",
		body:   map[string]string{"email": "bob@example.com", "password": "short"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// wrong password
	rec = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/login",
		body:   map[string]string{"email": "alice@example.com", "password": "wrong-password"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	accessToken, cookie := api.login(t, "alice@example.com", "password123")
	assert.NotEmpty(t, accessToken)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, "/api/account", cookie.Path,
		"cookie must be in scope for both refresh and logout")
}

func TestRefreshFlow(t *testing.T) {
	api := setupAPI(t)

	_, err := api.users.Create(nil, "alice@example.com", "Alice", "password123", nil)
	require.NoError(t, err)
	_, cookie := api.login(t, "alice@example.com", "password123")

	// full rotation: new access token, new cookie
	rec := api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/refresh-token",
		origin: "http://localhost:3000",
		cookie: cookie,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["accessToken"])

	rotated := refreshCookie(rec)
	require.NotNil(t, rotated)
	assert.NotEqual(t, cookie.Value, rotated.Value)

	// replaying the retired cookie fails, clears the cookie, and removes
	// the row immediately even though the request ran inside the wrapping
	// transaction
	start := time.Now()
	rec = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/refresh-token",
		origin: "http://localhost:3000",
		cookie: cookie,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Less(t, time.Since(start), 3*time.Second, "replay rejection must not stall on a lock")
	cleared := refreshCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	_, err = api.store.Find(nil, cookie.Value)
	assert.ErrorIs(t, err, refreshtoken.ErrTokenNotFound, "replayed token is deleted, not left for the sweeper")

	// the rotated cookie still works
	rec = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/refresh-token",
		origin: "http://localhost:3000",
		cookie: rotated,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRefresh_OriginEnforced(t *testing.T) {
	api := setupAPI(t)

	_, err := api.users.Create(nil, "alice@example.com", "Alice", "password123", nil)
	require.NoError(t, err)
	_, cookie := api.login(t, "alice@example.com", "password123")

	// cross-origin and missing-origin requests are both rejected
	rec := api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/refresh-token",
		origin: "http://evil.example.com",
		cookie: cookie,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/refresh-token",
		cookie: cookie,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// missing cookie
	rec = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/refresh-token",
		origin: "http://localhost:3000",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	api := setupAPI(t)

	_, err := api.users.Create(nil, "alice@example.com", "Alice", "password123", nil)
	require.NoError(t, err)
	_, cookie := api.login(t, "alice@example.com", "password123")

	rec := api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/logout",
		cookie: cookie,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	cleared := refreshCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)

	// the cookie reached the handler despite its path scope and the row
	// was actually retired
	row, err := api.store.Find(nil, cookie.Value)
	require.NoError(t, err)
	assert.False(t, row.IsActive)

	// the revoked cookie can no longer be rotated
	rec = api.do(t, request{
		method: http.MethodPost,
		path:   "/api/account/refresh-token",
		origin: "http://localhost:3000",
		cookie: cookie,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// logout without a cookie is fine
	rec = api.do(t, request{method: http.MethodPost, path: "/api/account/logout"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminSurfaceAuthorisation(t *testing.T) {
	api := setupAPI(t)

	_, err := api.users.Create(nil, "admin@example.com", "Admin", "password123", []string{"admin"})
	require.NoError(t, err)
	_, err = api.users.Create(nil, "bob@example.com", "Bob", "password123", nil)
	require.NoError(t, err)

	adminToken, _ := api.login(t, "admin@example.com", "password123")
	userToken, _ := api.login(t, "bob@example.com", "password123")

	// anonymous and non-admin callers are turned away
	assert.Equal(t, http.StatusUnauthorized, api.do(t, request{method: http.MethodGet, path: "/api/users"}).Code)
	assert.Equal(t, http.StatusForbidden, api.do(t, request{method: http.MethodGet, path: "/api/users", authorization: userToken}).Code)

	rec := api.do(t, request{method: http.MethodGet, path: "/api/users", authorization: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["totalCount"])

	// a second read is served from the cache with the same shape
	rec = api.do(t, request{method: http.MethodGet, path: "/api/users", authorization: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["totalCount"])
}

func TestRolesCRUD(t *testing.T) {
	api := setupAPI(t)

	_, err := api.users.Create(nil, "admin@example.com", "Admin", "password123", []string{"admin"})
	require.NoError(t, err)
	adminToken, _ := api.login(t, "admin@example.com", "password123")

	rec := api.do(t, request{
		method:        http.MethodPost,
		path:          "/api/roles",
		authorization: adminToken,
		body:          map[string]string{"name": "auditor"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(t, request{method: http.MethodGet, path: "/api/roles", authorization: adminToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))

	var auditorID int
	names := make([]string, 0, len(summaries))
	for _, s := range summaries {
		names = append(names, s["name"].(string))
		if s["name"] == "auditor" {
			auditorID = int(s["id"].(float64))
		}
	}
	assert.Contains(t, names, "auditor")
	assert.Contains(t, names, "admin")

	// duplicate role
	rec = api.do(t, request{
		method:        http.MethodPost,
		path:          "/api/roles",
		authorization: adminToken,
		body:          map[string]string{"name": "auditor"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, request{
		method:        http.MethodDelete,
		path:          "/api/roles/" + strconv.Itoa(auditorID),
		authorization: adminToken,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// deleting again is a 404
	rec = api.do(t, request{
		method:        http.MethodDelete,
		path:          "/api/roles/" + strconv.Itoa(auditorID),
		authorization: adminToken,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCleanupTokensEndpoint(t *testing.T) {
	api := setupAPI(t)

	admin, err := api.users.Create(nil, "admin@example.com", "Admin", "password123", []string{"admin"})
	require.NoError(t, err)
	adminToken, _ := api.login(t, "admin@example.com", "password123")

	stale, err := api.store.Create(nil, admin.ID, "")
	require.NoError(t, err)
	require.NoError(t, api.store.Retire(nil, stale.Token))

	rec := api.do(t, request{
		method:        http.MethodPost,
		path:          "/api/admin/cleanup-tokens",
		authorization: adminToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["cleanedTokens"])
}

func TestMonitoringEndpoints(t *testing.T) {
	api := setupAPI(t)

	rec := api.do(t, request{method: http.MethodGet, path: "/api/monitoring/health"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	rec = api.do(t, request{method: http.MethodGet, path: "/api/monitoring/version"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", decode(t, rec)["version"])

	// hardening headers ride on every response
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRateLimitedResponseShape(t *testing.T) {
	api := setupAPI(t, func(cfg *config.Config) {
		cfg.RateLimit.AuthBucketSize = 2
	})

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = api.do(t, request{
			method: http.MethodPost,
			path:   "/api/account/login",
			body:   map[string]string{"email": "nobody@example.com", "password": "password123"},
		})
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)

	body := decode(t, last)
	assert.Equal(t, "too many requests", body["error"])
	assert.GreaterOrEqual(t, body["retryAfter"], float64(1))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
}
