package closing

import (
	"context"
	"fmt"
	"sort"
	"time"

	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
)

const (
	// NoPaidBookings replaces the owner sections of an empty report.
	NoPaidBookings = "No hay reservas pagas en este período."
	// UnnamedOwner is shown when the owner's profile has no usable name.
	UnnamedOwner = "Profesional sin nombre"

	SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type Line struct {
	Room      int          `json:"room"`
	Date      calendar.Day `json:"date"`
	StartTime string       `json:"start_time"`
	EndTime   string       `json:"end_time"`
	Price     money.Amount `json:"price"`
}

type Section struct {
	OwnerID   string       `json:"owner_id"`
	OwnerName string       `json:"owner_name"`
	Lines     []Line       `json:"lines"`
	Subtotal  money.Amount `json:"subtotal"`
}

// Report is the settled income of one calendar month grouped by owner.
type Report struct {
	Period      calendar.Period `json:"period"`
	Sections    []Section       `json:"sections"`
	GrandTotal  money.Amount    `json:"grand_total"`
	GeneratedAt time.Time       `json:"generated_at"`
}

func (r Report) Empty() bool {
	return len(r.Sections) == 0
}

// Artifact is a rendered report ready to be sent or stored.
type Artifact struct {
	Body        []byte
	ContentType string
	Filename    string
}

// Filename is the attachment name used for a period's report.
func Filename(period calendar.Period) string {
	return fmt.Sprintf("reporte-%s.xlsx", period)
}

type Renderer interface {
	Render(ctx context.Context, report Report) (Artifact, error)
}

// Archiver keeps a copy of a rendered report and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, period calendar.Period, artifact Artifact) (string, error)
}

// BuildReport keeps paid bookings with a positive price and groups them by
// owner. names maps owner ids to display names; missing or empty names fall
// back to UnnamedOwner. Sections are ordered by name, lines by date, start
// and room.
func BuildReport(period calendar.Period, snapshot []*domainbooking.Booking, names map[string]string, at time.Time) Report {
	report := Report{Period: period, GeneratedAt: at}
	byOwner := make(map[string]*Section)
	for _, b := range snapshot {
		if !b.Paid || !b.Price.Positive() {
			continue
		}
		section, ok := byOwner[b.OwnerID]
		if !ok {
			name := names[b.OwnerID]
			if name == "" {
				name = UnnamedOwner
			}
			section = &Section{OwnerID: b.OwnerID, OwnerName: name}
			byOwner[b.OwnerID] = section
		}
		section.Lines = append(section.Lines, Line{
			Room:      b.Room,
			Date:      b.Date,
			StartTime: b.StartTime,
			EndTime:   b.EndTime,
			Price:     b.Price,
		})
		section.Subtotal += b.Price
		report.GrandTotal += b.Price
	}

	for _, s := range byOwner {
		sort.SliceStable(s.Lines, func(i, j int) bool {
			a, b := s.Lines[i], s.Lines[j]
			if c := a.Date.Compare(b.Date); c != 0 {
				return c < 0
			}
			if a.StartTime != b.StartTime {
				return a.StartTime < b.StartTime
			}
			return a.Room < b.Room
		})
		report.Sections = append(report.Sections, *s)
	}
	sort.Slice(report.Sections, func(i, j int) bool {
		a, b := report.Sections[i], report.Sections[j]
		if a.OwnerName != b.OwnerName {
			return a.OwnerName < b.OwnerName
		}
		return a.OwnerID < b.OwnerID
	})
	return report
}

// PurgeCandidates selects the bookings of a closed period that may go: the
// booking's day must have started before now (in loc), and it must be
// either free or paid. Unpaid bookings with a price are outstanding debt and
// stay.
func PurgeCandidates(snapshot []*domainbooking.Booking, now time.Time, loc *time.Location) []*domainbooking.Booking {
	if loc == nil {
		loc = time.UTC
	}
	var out []*domainbooking.Booking
	for _, b := range snapshot {
		if !b.Date.In(loc).Before(now) {
			continue
		}
		if b.Price <= 0 || b.Paid {
			out = append(out, b)
		}
	}
	return out
}
