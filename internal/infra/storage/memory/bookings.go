package memory

import (
	"context"
	"sort"

	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
)

type bookingRepository struct {
	unit *Unit
}

func (r *bookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	s := r.unit.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	return &b, nil
}

func (r *bookingRepository) filter(keep func(b *domainbooking.Booking) bool) []*domainbooking.Booking {
	s := r.unit.store
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domainbooking.Booking
	for _, b := range s.bookings {
		b := b
		if keep(&b) {
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bookingLess(out[i], out[j]) })
	return out
}

func (r *bookingRepository) ListByOwner(ctx context.Context, ownerID string, from, to calendar.Day) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.OwnerID == ownerID && b.Date.Within(from, to)
	}), nil
}

func (r *bookingRepository) ListByRange(ctx context.Context, from, to calendar.Day) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.Date.Within(from, to)
	}), nil
}

func (r *bookingRepository) ListBySeries(ctx context.Context, seriesID string) ([]*domainbooking.Booking, error) {
	if seriesID == "" {
		return nil, nil
	}
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.SeriesID == seriesID
	}), nil
}

func (r *bookingRepository) ListUnpaidFrom(ctx context.Context, from calendar.Day) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return !b.Paid && !b.Date.Before(from)
	}), nil
}

func (r *bookingRepository) ListByDayRoom(ctx context.Context, day calendar.Day, room int) ([]*domainbooking.Booking, error) {
	return r.filter(func(b *domainbooking.Booking) bool {
		return b.Date == day && b.Room == room
	}), nil
}

func (r *bookingRepository) Create(ctx context.Context, b *domainbooking.Booking) error {
	snapshot := *b
	key := snapshot.SlotKey()
	return r.unit.stage(op{
		check: func(s *Store) error {
			if _, exists := s.bookings[snapshot.ID]; exists {
				return domainbooking.ErrDuplicateSlot
			}
			for _, existing := range s.bookings {
				existing := existing
				if existing.SlotKey() == key {
					return domainbooking.ErrDuplicateSlot
				}
			}
			return nil
		},
		apply: func(s *Store) {
			s.bookings[snapshot.ID] = snapshot
		},
	})
}

// Reprice skips bookings that disappeared or got paid since they were read.
func (r *bookingRepository) Reprice(ctx context.Context, id domainbooking.BookingID, price money.Amount, settle bool) error {
	return r.unit.stage(op{
		apply: func(s *Store) {
			b, ok := s.bookings[id]
			if !ok || (b.Paid && !settle) {
				return
			}
			b.Price = price
			if settle {
				b.Paid = true
			}
			b.UpdatedAt = utcNow()
			s.bookings[id] = b
		},
	})
}

func (r *bookingRepository) SetPaid(ctx context.Context, id domainbooking.BookingID, paid bool) error {
	return r.unit.stage(op{
		check: requireBooking(id),
		apply: func(s *Store) {
			b := s.bookings[id]
			b.Paid = paid
			b.UpdatedAt = utcNow()
			s.bookings[id] = b
		},
	})
}

// Delete is a no-op for ids that are already gone.
func (r *bookingRepository) Delete(ctx context.Context, id domainbooking.BookingID) error {
	return r.unit.stage(op{
		apply: func(s *Store) {
			delete(s.bookings, id)
		},
	})
}

func requireBooking(id domainbooking.BookingID) func(s *Store) error {
	return func(s *Store) error {
		if _, ok := s.bookings[id]; !ok {
			return domainbooking.ErrBookingNotFound
		}
		return nil
	}
}

var _ domainbooking.Repository = (*bookingRepository)(nil)
