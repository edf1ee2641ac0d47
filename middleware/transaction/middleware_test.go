package transaction

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"identity-api/services/logging"
	"identity-api/testutils"
)

type widget struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:64"`
}

func doRequest(t *testing.T, db *gorm.DB, method string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(Middleware(db, logging.NewNop()))
	e.Add(method, "/widgets", handler)

	req := httptest.NewRequest(method, "/widgets", strings.NewReader(""))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func countWidgets(t *testing.T, db *gorm.DB) int64 {
	var count int64
	require.NoError(t, db.Model(&widget{}).Count(&count).Error)
	return count
}

func TestMiddleware_CommitsOnSuccess(t *testing.T) {
	db := testutils.SetupTestDB(t, &widget{})

	rec := doRequest(t, db, http.MethodPost, func(c echo.Context) error {
		tx := FromContext(c)
		require.NotNil(t, tx, "mutating requests carry a transaction")
		require.NoError(t, tx.Create(&widget{Name: "kept"}).Error)
		return c.NoContent(http.StatusCreated)
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(1), countWidgets(t, db))
}

func TestMiddleware_RollsBackOnHandlerError(t *testing.T) {
	db := testutils.SetupTestDB(t, &widget{})

	rec := doRequest(t, db, http.MethodPost, func(c echo.Context) error {
		tx := FromContext(c)
		require.NoError(t, tx.Create(&widget{Name: "discarded"}).Error)
		return errors.New("handler failed")
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, int64(0), countWidgets(t, db), "failed request must leave no rows behind")
}

func TestMiddleware_RollsBackOnHTTPError(t *testing.T) {
	db := testutils.SetupTestDB(t, &widget{})

	rec := doRequest(t, db, http.MethodPost, func(c echo.Context) error {
		tx := FromContext(c)
		require.NoError(t, tx.Create(&widget{Name: "discarded"}).Error)
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int64(0), countWidgets(t, db))
}

func TestMiddleware_SkipsReadOnlyMethods(t *testing.T) {
	db := testutils.SetupTestDB(t, &widget{})

	rec := doRequest(t, db, http.MethodGet, func(c echo.Context) error {
		assert.Nil(t, FromContext(c), "read-only requests run outside a transaction")
		return c.NoContent(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFromContext_Absent(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Nil(t, FromContext(c))
}
