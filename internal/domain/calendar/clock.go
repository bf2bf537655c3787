package calendar

import "time"

// Clock is the time source used by handlers; tests pin it.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time in Location (UTC when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	now := time.Now()
	if c.Location != nil {
		return now.In(c.Location)
	}
	return now.UTC()
}

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

// Today is the current date according to c.
func Today(c Clock) Day {
	return DayOf(c.Now())
}
