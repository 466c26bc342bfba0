package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventpay/internal/auth"
	"eventpay/internal/middleware"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	sessions, err := auth.NewSessionStore(nil, time.Hour)
	require.NoError(t, err)
	deduper, err := middleware.NewCallbackDeduper(nil, time.Minute)
	require.NoError(t, err)

	e := echo.New()
	Setup(e, Deps{
		Sessions:    sessions,
		Deduper:     deduper,
		AdminAPIKey: "secret",
		Logger:      zap.NewNop(),
	})
	return e
}

func TestSetup_Routes(t *testing.T) {
	e := newTestServer(t)

	want := map[string]bool{
		"POST /api/payment/initiate":   false,
		"GET /api/payment/status/:ref": false,
		"GET /api/payment/track/:ref":  false,
		"POST /api/admin/session":      false,
		"DELETE /api/admin/session":    false,
		"GET /payment/khalti/callback": false,
		"GET /payment/return":          false,
		"GET /metrics":                 false,
		"GET /health":                  false,
	}
	for _, r := range e.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		assert.True(t, found, route)
	}
}

func TestSetup_Health(t *testing.T) {
	e := newTestServer(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSetup_TrackRequiresSession(t *testing.T) {
	e := newTestServer(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/payment/track/abc", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetup_ReturnPage(t *testing.T) {
	e := newTestServer(t)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payment/return?payment=pending", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Refresh Status")
}
