package booking

import "time"

const (
	EventCreated  = "booking.created"
	EventUpdated  = "booking.updated"
	EventDeleted  = "booking.deleted"
	EventRestored = "booking.restored"
)

type BookingCreated struct {
	Booking Booking   `json:"booking"`
	At      time.Time `json:"at"`
}

func (e BookingCreated) EventName() string     { return EventCreated }
func (e BookingCreated) AggregateID() string   { return string(e.Booking.ID) }
func (e BookingCreated) OccurredAt() time.Time { return e.At }

// BookingUpdated carries both revisions so consumers can find every week the
// change touches.
type BookingUpdated struct {
	Before Booking   `json:"before"`
	After  Booking   `json:"after"`
	At     time.Time `json:"at"`
}

func (e BookingUpdated) EventName() string     { return EventUpdated }
func (e BookingUpdated) AggregateID() string   { return string(e.After.ID) }
func (e BookingUpdated) OccurredAt() time.Time { return e.At }

type BookingDeleted struct {
	Booking   Booking   `json:"booking"`
	DeletedBy string    `json:"deleted_by"`
	BackupID  string    `json:"backup_id,omitempty"`
	At        time.Time `json:"at"`
}

func (e BookingDeleted) EventName() string     { return EventDeleted }
func (e BookingDeleted) AggregateID() string   { return string(e.Booking.ID) }
func (e BookingDeleted) OccurredAt() time.Time { return e.At }

type BookingRestored struct {
	Booking  Booking   `json:"booking"`
	BackupID string    `json:"backup_id"`
	At       time.Time `json:"at"`
}

func (e BookingRestored) EventName() string     { return EventRestored }
func (e BookingRestored) AggregateID() string   { return string(e.Booking.ID) }
func (e BookingRestored) OccurredAt() time.Time { return e.At }
