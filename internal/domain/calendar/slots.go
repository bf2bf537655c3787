package calendar

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidTime  = errors.New("calendar: invalid time, expected HH:MM")
	ErrOutsideHours = errors.New("calendar: slot outside opening hours")
	ErrNotOnGrid    = errors.New("calendar: slot must start on the hour or half hour")
)

const (
	openingMinute = 8 * 60
	closingMinute = 22 * 60
	slotStep      = 30
	slotLength    = 60
)

// Slot is a one hour booking window.
type Slot struct {
	Start string
	End   string
}

// Slots lists the bookable windows of a day: one hour each, starting every
// half hour from opening, the last one ending at closing.
func Slots() []Slot {
	out := make([]Slot, 0, (closingMinute-openingMinute-slotLength)/slotStep+1)
	for start := openingMinute; start+slotLength <= closingMinute; start += slotStep {
		out = append(out, Slot{Start: clock(start), End: clock(start + slotLength)})
	}
	return out
}

// EndFor validates start against the slot grid and returns the matching end time.
func EndFor(start string) (string, error) {
	minutes, err := parseClock(start)
	if err != nil {
		return "", err
	}
	if minutes%slotStep != 0 {
		return "", fmt.Errorf("%w: %s", ErrNotOnGrid, start)
	}
	if minutes < openingMinute || minutes+slotLength > closingMinute {
		return "", fmt.Errorf("%w: %s", ErrOutsideHours, start)
	}
	return clock(minutes + slotLength), nil
}

// ValidSlot reports whether start/end form one of the windows returned by Slots.
func ValidSlot(start, end string) error {
	want, err := EndFor(start)
	if err != nil {
		return err
	}
	if end != want {
		return fmt.Errorf("%w: %s-%s", ErrOutsideHours, start, end)
	}
	return nil
}

// StartOf combines d and an HH:MM start into an instant in loc.
func StartOf(d Day, start string, loc *time.Location) (time.Time, error) {
	minutes, err := parseClock(start)
	if err != nil {
		return time.Time{}, err
	}
	return d.In(loc).Add(time.Duration(minutes) * time.Minute), nil
}

func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil || len(raw) != 5 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
