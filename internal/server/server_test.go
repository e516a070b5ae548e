package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proledger/internal/config"
)

func newTestServer(t *testing.T) *Server {
	gin.SetMode(gin.TestMode)

	mockDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	cfg := &config.Config{
		Port:           "8080",
		JWTSecret:      "test-secret",
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}

	return New(sqlx.NewDb(mockDB, "sqlmock"), cfg, nil)
}

func TestHealthRoute(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("GET", "/credits/balance", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// Shutdown must be safe even when a signal lands before Start ever ran.
func TestShutdownBeforeStart(t *testing.T) {
	srv := newTestServer(t)

	require.NoError(t, srv.Shutdown(context.Background()))
}
