package obs

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsChunkCommitted(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.ChunkCommitted("purge", 450, nil)
	m.ChunkCommitted("purge", 50, nil)
	m.ChunkCommitted("purge", 450, errors.New("quota"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.chunks.WithLabelValues("purge", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunks.WithLabelValues("purge", "failed")))
	assert.Equal(t, 500.0, testutil.ToFloat64(m.writes.WithLabelValues("purge")))
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.ChunkCommitted("recalculate", 1, nil)
	m.CloseFinished(nil)
}

func TestMetricsHTTP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(nil)
	r := gin.New()
	r.Use(m.HTTP())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("/ping", "204")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "consultorios_http_requests_total")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
