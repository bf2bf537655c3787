package calendar

import "time"

// MondayOf returns the Monday of the Monday-to-Sunday week containing d.
func MondayOf(d Day) Day {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDays(-offset)
}

// SundayOf returns the Sunday closing the week containing d.
func SundayOf(d Day) Day {
	return MondayOf(d).AddDays(6)
}

// WeekBounds returns Monday 00:00:00.000 and Sunday 23:59:59.999 of the week
// containing t, in t's location.
func WeekBounds(t time.Time) (time.Time, time.Time) {
	monday := MondayOf(DayOf(t))
	start := monday.In(t.Location())
	end := start.AddDate(0, 0, 7).Add(-time.Millisecond)
	return start, end
}

// Week identifies a Monday-to-Sunday week by its Monday.
type Week struct {
	Monday Day
}

func WeekOf(d Day) Week {
	return Week{Monday: MondayOf(d)}
}

func (w Week) Sunday() Day {
	return w.Monday.AddDays(6)
}

func (w Week) Contains(d Day) bool {
	return d.Within(w.Monday, w.Sunday())
}

func (w Week) String() string {
	return w.Monday.String()
}
