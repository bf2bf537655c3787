package calendar

import (
	"errors"
	"fmt"
	"time"
)

const periodLayout = "2006-01"

var ErrInvalidPeriod = errors.New("calendar: invalid period, expected YYYY-MM")

// MonthRange returns the first and last day of the month offset months away
// from the month containing ref.
func MonthRange(ref time.Time, offset int) (Day, Day) {
	return PeriodOf(ref, offset).Range()
}

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the month offset months away from the month of ref.
func PeriodOf(ref time.Time, offset int) Period {
	first := time.Date(ref.Year(), ref.Month()+time.Month(offset), 1, 0, 0, 0, 0, time.UTC)
	return Period{Year: first.Year(), Month: first.Month()}
}

// PreviousPeriod is the month before the one containing ref.
func PreviousPeriod(ref time.Time) Period {
	return PeriodOf(ref, -1)
}

func ParsePeriod(raw string) (Period, error) {
	t, err := time.Parse(periodLayout, raw)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, raw)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

func (p Period) IsZero() bool {
	return p == Period{}
}

func (p Period) Range() (Day, Day) {
	first := NewDay(p.Year, p.Month, 1)
	last := NewDay(p.Year, p.Month+1, 0)
	return first, last
}

func (p Period) Contains(d Day) bool {
	first, last := p.Range()
	return d.Within(first, last)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Before reports whether p ends before o starts.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}
