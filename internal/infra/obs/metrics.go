package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
)

// Metrics exposes counters for batched writes and period closes. It is the
// batch.Recorder handed to the pricing engine, the lifecycle handlers and
// the closing service.
type Metrics struct {
	chunks       *prometheus.CounterVec
	writes       *prometheus.CounterVec
	closes       *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	gatherer     prometheus.Gatherer
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultorios",
			Subsystem: "batch",
			Name:      "chunks_total",
			Help:      "Chunk commits by operation and outcome",
		}, []string{"op", "status"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultorios",
			Subsystem: "batch",
			Name:      "writes_total",
			Help:      "Document writes committed by operation",
		}, []string{"op"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultorios",
			Subsystem: "closing",
			Name:      "runs_total",
			Help:      "Period close runs by outcome",
		}, []string{"status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultorios",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consultorios",
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		gatherer: reg,
	}
	reg.MustRegister(m.chunks, m.writes, m.closes, m.httpRequests, m.httpLatency)
	return m
}

func (m *Metrics) ChunkCommitted(op string, writes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.chunks.WithLabelValues(op, "failed").Inc()
		return
	}
	m.chunks.WithLabelValues(op, "ok").Inc()
	m.writes.WithLabelValues(op).Add(float64(writes))
}

func (m *Metrics) CloseFinished(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.closes.WithLabelValues(status).Inc()
}

// HTTP counts requests per matched route.
func (m *Metrics) HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

var _ batch.Recorder = (*Metrics)(nil)
