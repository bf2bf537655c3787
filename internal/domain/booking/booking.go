package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
)

var (
	ErrBookingNotFound = errors.New("booking: not found")
	ErrDuplicateSlot   = errors.New("booking: owner already holds this slot")
	ErrInvalidRoom     = errors.New("booking: room must be between 1 and 5")
	ErrOwnerRequired   = errors.New("booking: owner id required")
	ErrDateRequired    = errors.New("booking: date required")
)

const (
	MinRoom = 1
	MaxRoom = 5
)

type BookingID string

// Booking is one hour of one room held by one professional on one date.
type Booking struct {
	ID                 BookingID      `json:"id"`
	OwnerID            string         `json:"owner_id"`
	OwnerName          string         `json:"owner_name,omitempty"`
	OwnerEmail         string         `json:"owner_email,omitempty"`
	Date               calendar.Day   `json:"date"`
	StartTime          string         `json:"start_time"`
	EndTime            string         `json:"end_time"`
	Room               int            `json:"room"`
	Price              money.Amount   `json:"price"`
	Paid               bool           `json:"paid"`
	SeriesID           string         `json:"series_id,omitempty"`
	Recurrence         RecurrenceKind `json:"recurrence"`
	RestoredFromBackup bool           `json:"restored_from_backup,omitempty"`
	RestoredAt         time.Time      `json:"restored_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// SlotKey identifies the (owner, date, start, end, room) tuple used for deduplication.
type SlotKey struct {
	OwnerID   string
	Date      calendar.Day
	StartTime string
	EndTime   string
	Room      int
}

func (b *Booking) SlotKey() SlotKey {
	return SlotKey{OwnerID: b.OwnerID, Date: b.Date, StartTime: b.StartTime, EndTime: b.EndTime, Room: b.Room}
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%s|%s|%s|%s|%d", k.OwnerID, k.Date, k.StartTime, k.EndTime, k.Room)
}

// Week is the Monday-to-Sunday week the booking falls in.
func (b *Booking) Week() calendar.Week {
	return calendar.WeekOf(b.Date)
}

func (b *Booking) Recurring() bool {
	return b.SeriesID != ""
}

func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	return &out
}

func (b *Booking) Validate() error {
	if b.OwnerID == "" {
		return ErrOwnerRequired
	}
	if b.Date.IsZero() {
		return ErrDateRequired
	}
	if b.Room < MinRoom || b.Room > MaxRoom {
		return ErrInvalidRoom
	}
	return calendar.ValidSlot(b.StartTime, b.EndTime)
}

// Repository is the persistence port for bookings. Ranges are inclusive.
type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	ListByOwner(ctx context.Context, ownerID string, from, to calendar.Day) ([]*Booking, error)
	ListByRange(ctx context.Context, from, to calendar.Day) ([]*Booking, error)
	ListBySeries(ctx context.Context, seriesID string) ([]*Booking, error)
	ListUnpaidFrom(ctx context.Context, from calendar.Day) ([]*Booking, error)
	ListByDayRoom(ctx context.Context, day calendar.Day, room int) ([]*Booking, error)
	Create(ctx context.Context, booking *Booking) error
	// Reprice sets price on an unpaid booking and leaves paid ones untouched.
	// With settle it also marks the booking paid, whatever its state.
	Reprice(ctx context.Context, id BookingID, price money.Amount, settle bool) error
	SetPaid(ctx context.Context, id BookingID, paid bool) error
	Delete(ctx context.Context, id BookingID) error
}
