package obs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveReadyz(h HealthHandlers) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/readyz", h.Readyz)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec
}

func TestReadyzWithoutChecks(t *testing.T) {
	rec := serveReadyz(HealthHandlers{})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReportsFailingCheck(t *testing.T) {
	rec := serveReadyz(HealthHandlers{Checks: []Check{
		{Name: "mongo", Probe: func(context.Context) error { return nil }},
		{Name: "kafka", Probe: func(context.Context) error { return errors.New("no brokers") }},
	}})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"mongo":"ok"`)
	assert.Contains(t, rec.Body.String(), `"kafka":"no brokers"`)
}

func TestAccessLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, accessLevel("/api/v1/reservations", 500))
	assert.Equal(t, slog.LevelWarn, accessLevel("/api/v1/reservations", 409))
	assert.Equal(t, slog.LevelDebug, accessLevel("/readyz", 200))
	assert.Equal(t, slog.LevelInfo, accessLevel("/api/v1/pricing", 200))
}

func TestRequestIDPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware{}.RequestID())
	var seen string
	router.GET("/x", func(c *gin.Context) { seen = RequestIDFromContext(c.Request.Context()) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "req-7")
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-7", seen)
	assert.Equal(t, "req-7", rec.Header().Get("X-Request-ID"))
}
