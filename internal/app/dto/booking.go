package dto

import (
	"strings"
	"time"

	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

type Booking struct {
	ID         string `json:"id"`
	OwnerID    string `json:"owner_id"`
	OwnerName  string `json:"owner_name,omitempty"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Room       int    `json:"room"`
	Price      int64  `json:"price"`
	Paid       bool   `json:"paid"`
	SeriesID   string `json:"series_id,omitempty"`
	Recurrence string `json:"recurrence"`
	Restored   bool   `json:"restored,omitempty"`
}

func MapBooking(b *domainbooking.Booking) Booking {
	return Booking{
		ID:         string(b.ID),
		OwnerID:    b.OwnerID,
		OwnerName:  b.OwnerName,
		Date:       b.Date.String(),
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
		Room:       b.Room,
		Price:      b.Price.Int64(),
		Paid:       b.Paid,
		SeriesID:   b.SeriesID,
		Recurrence: string(b.Recurrence),
		Restored:   b.RestoredFromBackup,
	}
}

func MapBookings(in []*domainbooking.Booking) []Booking {
	out := make([]Booking, 0, len(in))
	for _, b := range in {
		out = append(out, MapBooking(b))
	}
	return out
}

// AgendaEntry is a calendar cell: who holds a room at a given hour.
type AgendaEntry struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	OwnerName string `json:"owner_name"`
	Initials  string `json:"initials"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Room      int    `json:"room"`
}

func MapAgendaEntry(b *domainbooking.Booking, owner *domainuser.Profile) AgendaEntry {
	entry := AgendaEntry{
		ID:        string(b.ID),
		OwnerID:   b.OwnerID,
		OwnerName: "Unknown",
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Room:      b.Room,
	}
	if owner != nil {
		if name := owner.DisplayName(); name != "" {
			entry.OwnerName = name
		}
		entry.Initials = Initials(owner.FirstName, owner.LastName)
	}
	return entry
}

// Initials takes the first letter of each name, upper cased.
func Initials(first, last string) string {
	var sb strings.Builder
	for _, part := range []string{first, last} {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(string([]rune(part)[:1])))
	}
	return sb.String()
}

type Backup struct {
	ID         string    `json:"id"`
	Booking    Booking   `json:"booking"`
	DeletedBy  string    `json:"deleted_by"`
	DeletedAt  time.Time `json:"deleted_at"`
	Reason     string    `json:"reason"`
	Restored   bool      `json:"restored"`
	RestoredAt time.Time `json:"restored_at,omitempty"`
}

func MapBackup(b *domainbackup.Backup) Backup {
	return Backup{
		ID:         string(b.ID),
		Booking:    MapBooking(&b.Snapshot),
		DeletedBy:  b.DeletedBy,
		DeletedAt:  b.DeletedAt,
		Reason:     string(b.Reason),
		Restored:   b.Restored,
		RestoredAt: b.RestoredAt,
	}
}

func MapBackups(in []*domainbackup.Backup) []Backup {
	out := make([]Backup, 0, len(in))
	for _, b := range in {
		out = append(out, MapBackup(b))
	}
	return out
}

// Debt is what a professional still owes, by window.
type Debt struct {
	CurrentWeek   int64 `json:"current_week"`
	CurrentMonth  int64 `json:"current_month"`
	PreviousMonth int64 `json:"previous_month"`
	UnpaidCount   int   `json:"unpaid_count"`
}

type PricingConfig struct {
	BaseRate      int64     `json:"base_rate"`
	DiscountRate  int64     `json:"discount_rate"`
	EffectiveDate string    `json:"effective_date,omitempty"`
	ChangedAt     time.Time `json:"changed_at,omitempty"`
}
