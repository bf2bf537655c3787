package booking

import (
	"errors"
	"fmt"

	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

var (
	ErrInvalidRecurrence  = errors.New("booking: unknown recurrence kind")
	ErrInvalidCount       = errors.New("booking: recurrence count must be positive")
	ErrTooManyOccurrences = errors.New("booking: recurrence expands past the allowed horizon")
)

type RecurrenceKind string

const (
	RecurrenceNone    RecurrenceKind = "one-off"
	RecurrenceWeekly  RecurrenceKind = "weekly"
	RecurrenceMonthly RecurrenceKind = "monthly"
	RecurrenceYearly  RecurrenceKind = "yearly"
)

// MaxOccurrences bounds a single series to one year of weekly sessions:
// weekly count up to 52, monthly up to 13, yearly exactly 1.
const MaxOccurrences = 52

type Recurrence struct {
	Kind  RecurrenceKind
	Count int
}

func ParseRecurrenceKind(raw string) (RecurrenceKind, error) {
	switch RecurrenceKind(raw) {
	case "", RecurrenceNone:
		return RecurrenceNone, nil
	case RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return RecurrenceKind(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRecurrence, raw)
	}
}

func (r Recurrence) Recurring() bool {
	return r.Kind != RecurrenceNone && r.Kind != ""
}

// Expander turns a start date and recurrence into concrete occurrence dates.
type Expander func(start calendar.Day, r Recurrence) ([]calendar.Day, error)

// WeeklyApproximation treats a month as four weeks and a year as 52 weeks and
// steps every seven days from start. Month lengths are deliberately ignored.
func WeeklyApproximation(start calendar.Day, r Recurrence) ([]calendar.Day, error) {
	total, err := r.occurrences()
	if err != nil {
		return nil, err
	}
	out := make([]calendar.Day, 0, total)
	for i := 0; i < total; i++ {
		out = append(out, start.AddDays(7*i))
	}
	return out, nil
}

func (r Recurrence) occurrences() (int, error) {
	if !r.Recurring() {
		return 1, nil
	}
	if r.Count <= 0 {
		return 0, ErrInvalidCount
	}
	var total int
	switch r.Kind {
	case RecurrenceWeekly:
		total = r.Count
	case RecurrenceMonthly:
		total = r.Count * 4
	case RecurrenceYearly:
		total = r.Count * 52
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRecurrence, r.Kind)
	}
	if total > MaxOccurrences {
		return 0, fmt.Errorf("%w: %d occurrences", ErrTooManyOccurrences, total)
	}
	return total, nil
}
