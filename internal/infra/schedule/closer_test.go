package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielNoblero/consultorios-app/internal/app/closing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

type fakeCloser struct {
	mu      sync.Mutex
	periods []calendar.Period
	err     error
}

func (f *fakeCloser) Close(_ context.Context, p calendar.Period) (closing.CloseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods = append(f.periods, p)
	return closing.CloseResult{Period: p.String()}, f.err
}

func (f *fakeCloser) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.periods)
}

type countingReporter struct {
	ok, failed int
}

func (r *countingReporter) CloseFinished(err error) {
	if err != nil {
		r.failed++
		return
	}
	r.ok++
}

func TestTickClosesPreviousMonthOnce(t *testing.T) {
	closer := &fakeCloser{}
	rep := &countingReporter{}
	m := &MonthlyCloser{
		Closer:   closer,
		Clock:    calendar.FixedClock(time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC)),
		Reporter: rep,
	}

	res, ran, err := m.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, "2024-03", res.Period)

	_, ran, err = m.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Equal(t, 1, closer.calls())
	assert.Equal(t, 1, rep.ok)
}

func TestTickUsesLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Montevideo")
	require.NoError(t, err)
	closer := &fakeCloser{}
	// 02:00 UTC on April 1st is still March 31st in Montevideo.
	m := &MonthlyCloser{
		Closer:   closer,
		Clock:    calendar.FixedClock(time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC)),
		Location: loc,
	}
	_, _, err = m.Tick(context.Background())
	require.NoError(t, err)
	require.Len(t, closer.periods, 1)
	assert.Equal(t, "2024-02", closer.periods[0].String())
}

func TestTickRetriesAfterFailure(t *testing.T) {
	closer := &fakeCloser{err: errors.New("render failed")}
	rep := &countingReporter{}
	m := &MonthlyCloser{
		Closer:   closer,
		Clock:    calendar.FixedClock(time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC)),
		Reporter: rep,
	}

	_, ran, err := m.Tick(context.Background())
	assert.True(t, ran)
	assert.Error(t, err)

	closer.err = nil
	_, ran, err = m.Tick(context.Background())
	assert.True(t, ran)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.failed)
	assert.Equal(t, 1, rep.ok)
}

func TestRunDisabledWithoutInterval(t *testing.T) {
	m := &MonthlyCloser{Closer: &fakeCloser{}}
	assert.NoError(t, m.Run(context.Background()))
}

func TestRunTicksUntilCancelled(t *testing.T) {
	closer := &fakeCloser{}
	m := &MonthlyCloser{
		Closer:   closer,
		Clock:    calendar.FixedClock(time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC)),
		Interval: 5 * time.Millisecond,
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return closer.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, closer.calls())
}

func TestRunRequiresCloser(t *testing.T) {
	assert.ErrorIs(t, (&MonthlyCloser{Interval: time.Second}).Run(context.Background()), ErrCloserNotConfigured)
}
