package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/app/closing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

var ErrCloserNotConfigured = errors.New("schedule: closer missing dependencies")

// Closer is the monthly close operation; *closing.Service implements it.
type Closer interface {
	Close(ctx context.Context, period calendar.Period) (closing.CloseResult, error)
}

// Reporter observes finished runs.
type Reporter interface {
	CloseFinished(err error)
}

// MonthlyCloser closes the previous month on every tick. A month that
// already closed successfully in this process is not closed again, so the
// interval only bounds how late after the month boundary the close runs.
type MonthlyCloser struct {
	Closer   Closer
	Clock    calendar.Clock
	Location *time.Location
	Interval time.Duration
	Timeout  time.Duration
	Reporter Reporter
	Logger   *slog.Logger

	mu   sync.Mutex
	last calendar.Period
}

// Run blocks until ctx is done. It does nothing when Interval is not positive.
func (m *MonthlyCloser) Run(ctx context.Context) error {
	if m.Closer == nil {
		return ErrCloserNotConfigured
	}
	if m.Interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, _, _ = m.Tick(ctx)
		}
	}
}

// Tick closes the month before now when it was not closed yet. ran reports
// whether a close was attempted.
func (m *MonthlyCloser) Tick(ctx context.Context) (res closing.CloseResult, ran bool, err error) {
	period := calendar.PreviousPeriod(m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == period {
		return closing.CloseResult{}, false, nil
	}

	runCtx := ctx
	if m.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}
	started := time.Now()
	res, err = m.Closer.Close(runCtx, period)
	if m.Reporter != nil {
		m.Reporter.CloseFinished(err)
	}
	if err != nil {
		m.logger().ErrorContext(ctx, "monthly close failed", "period", period.String(), "error", err)
		return res, true, err
	}
	m.last = period
	m.logger().InfoContext(ctx, "monthly close finished",
		"period", res.Period,
		"sections", res.Sections,
		"grand_total", res.GrandTotal,
		"purged", res.Purged,
		"archive_key", res.ArchiveKey,
		"took", time.Since(started),
	)
	return res, true, nil
}

func (m *MonthlyCloser) now() time.Time {
	var now time.Time
	if m.Clock != nil {
		now = m.Clock.Now()
	} else {
		now = time.Now()
	}
	if m.Location != nil {
		now = now.In(m.Location)
	}
	return now
}

func (m *MonthlyCloser) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}
