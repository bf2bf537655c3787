package ginserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"github.com/DanielNoblero/consultorios-app/internal/app/closing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

type ReportHTTP interface {
	Monthly(c *gin.Context)
}

// PeriodCloser is the part of closing.Service the endpoint drives.
type PeriodCloser interface {
	Generate(ctx context.Context, period calendar.Period) (closing.Generated, error)
	Settle(ctx context.Context, period calendar.Period, gen closing.Generated) (closing.CloseResult, error)
	CheckClosed(period calendar.Period) error
}

// ReportHandler serves the monthly spreadsheet. Settling (archive and
// purge) starts only after the body was written, on a context that
// outlives the request.
type ReportHandler struct {
	Closer        PeriodCloser
	Clock         calendar.Clock
	Location      *time.Location
	SettleTimeout time.Duration
	// Background runs settling; nil means a new goroutine.
	Background func(func())
	Reporter   interface{ CloseFinished(err error) }
	Logger     *slog.Logger
}

func (h ReportHandler) Monthly(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	period, err := h.period(c.Query("period"))
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Closer.CheckClosed(period); err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}
	gen, err := h.Closer.Generate(c.Request.Context(), period)
	if err != nil {
		h.logger().ErrorContext(c.Request.Context(), "monthly report failed", "period", period.String(), "error", err)
		if h.Reporter != nil {
			h.Reporter.CloseFinished(err)
		}
		c.String(http.StatusInternalServerError, "Error al generar el reporte")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gen.Artifact.Filename))
	c.Data(http.StatusOK, gen.Artifact.ContentType, gen.Artifact.Body)

	ctx := context.WithoutCancel(c.Request.Context())
	h.background(func() {
		if h.SettleTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, h.SettleTimeout)
			defer cancel()
		}
		res, err := h.Closer.Settle(ctx, period, gen)
		if h.Reporter != nil {
			h.Reporter.CloseFinished(err)
		}
		if err != nil {
			h.logger().ErrorContext(ctx, "monthly settle failed", "period", period.String(), "purged", res.Purged, "error", err)
			return
		}
		h.logger().InfoContext(ctx, "monthly settle finished", "period", res.Period, "purged", res.Purged, "archive_key", res.ArchiveKey)
	})
}

// Preflight answers CORS preflight for browsers calling the report directly.
func (h ReportHandler) Preflight(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Max-Age", "3600")
	c.Status(http.StatusNoContent)
}

// period defaults to the month before today in the report timezone.
func (h ReportHandler) period(raw string) (calendar.Period, error) {
	if raw != "" {
		return calendar.ParsePeriod(raw)
	}
	clock := h.Clock
	if clock == nil {
		clock = calendar.SystemClock{Location: h.Location}
	}
	now := clock.Now()
	if h.Location != nil {
		now = now.In(h.Location)
	}
	return calendar.PreviousPeriod(now), nil
}

func (h ReportHandler) background(fn func()) {
	if h.Background != nil {
		h.Background(fn)
		return
	}
	go fn()
}

func (h ReportHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ ReportHTTP = ReportHandler{}
