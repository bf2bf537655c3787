package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
)

func TestWeeklyApproximation(t *testing.T) {
	start := calendar.MustParseDay("2024-03-04")

	cases := []struct {
		name string
		rec  Recurrence
		want int
	}{
		{name: "one-off", rec: Recurrence{Kind: RecurrenceNone}, want: 1},
		{name: "weekly", rec: Recurrence{Kind: RecurrenceWeekly, Count: 3}, want: 3},
		{name: "monthly", rec: Recurrence{Kind: RecurrenceMonthly, Count: 2}, want: 8},
		{name: "yearly", rec: Recurrence{Kind: RecurrenceYearly, Count: 1}, want: 52},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			days, err := WeeklyApproximation(start, tc.rec)
			require.NoError(t, err)
			require.Len(t, days, tc.want)
			assert.Equal(t, start, days[0])
			for i := 1; i < len(days); i++ {
				assert.Equal(t, days[i-1].AddDays(7), days[i])
			}
		})
	}
}

func TestWeeklyApproximationHorizon(t *testing.T) {
	start := calendar.MustParseDay("2024-03-04")
	cases := []struct {
		rec Recurrence
		ok  bool
	}{
		{Recurrence{Kind: RecurrenceWeekly, Count: 52}, true},
		{Recurrence{Kind: RecurrenceWeekly, Count: 53}, false},
		{Recurrence{Kind: RecurrenceMonthly, Count: 13}, true},
		{Recurrence{Kind: RecurrenceMonthly, Count: 14}, false},
		{Recurrence{Kind: RecurrenceYearly, Count: 1}, true},
	}
	for _, tc := range cases {
		_, err := WeeklyApproximation(start, tc.rec)
		if tc.ok {
			assert.NoError(t, err, "%s x%d", tc.rec.Kind, tc.rec.Count)
		} else {
			assert.ErrorIs(t, err, ErrTooManyOccurrences, "%s x%d", tc.rec.Kind, tc.rec.Count)
		}
	}
}

func TestWeeklyApproximationRejectsBadInput(t *testing.T) {
	start := calendar.MustParseDay("2024-03-04")

	_, err := WeeklyApproximation(start, Recurrence{Kind: RecurrenceWeekly})
	assert.ErrorIs(t, err, ErrInvalidCount)

	_, err = WeeklyApproximation(start, Recurrence{Kind: RecurrenceYearly, Count: 2})
	assert.ErrorIs(t, err, ErrTooManyOccurrences)

	_, err = ParseRecurrenceKind("fortnightly")
	assert.ErrorIs(t, err, ErrInvalidRecurrence)
}

func TestBookingValidate(t *testing.T) {
	b := &Booking{OwnerID: "u1", Date: calendar.MustParseDay("2024-03-04"), StartTime: "09:00", EndTime: "10:00", Room: 3}
	require.NoError(t, b.Validate())

	b.Room = 6
	assert.ErrorIs(t, b.Validate(), ErrInvalidRoom)

	b.Room = 1
	b.EndTime = "09:30"
	assert.Error(t, b.Validate())
}
