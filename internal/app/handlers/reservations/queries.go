package reservations

import (
	"context"
	"errors"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/dto"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

const (
	dayAgendaKey     = "reservations.agenda"
	ownerBookingsKey = "reservations.by_owner"
	debtSummaryKey   = "reservations.debt"
)

// DayAgendaQuery lists who holds a room on a given day.
type DayAgendaQuery struct {
	Date calendar.Day
	Room int
}

func (q DayAgendaQuery) Key() string { return dayAgendaKey }

type DayAgendaHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *DayAgendaHandler) Handle(ctx context.Context, q DayAgendaQuery) ([]dto.AgendaEntry, error) {
	if q.Date.IsZero() {
		return nil, apperr.InvalidArgument("date required")
	}
	if q.Room < domainbooking.MinRoom || q.Room > domainbooking.MaxRoom {
		return nil, domainbooking.ErrInvalidRoom
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer closeUnit(cleanup)

	list, err := unit.Bookings().ListByDayRoom(execCtx, q.Date, q.Room)
	if err != nil {
		return nil, err
	}
	owners := make(map[string]*domainuser.Profile)
	out := make([]dto.AgendaEntry, 0, len(list))
	for _, b := range list {
		owner, seen := owners[b.OwnerID]
		if !seen {
			owner, err = unit.Profiles().ByID(execCtx, domainuser.ID(b.OwnerID))
			if err != nil {
				if !errors.Is(err, domainuser.ErrNotFound) {
					return nil, err
				}
				owner = nil
			}
			owners[b.OwnerID] = owner
		}
		out = append(out, dto.MapAgendaEntry(b, owner))
	}
	return out, nil
}

// OwnerBookingsQuery lists the actor's own bookings in [From, To]. Zero
// bounds default to the current month.
type OwnerBookingsQuery struct {
	ActorID string
	From    calendar.Day
	To      calendar.Day
}

func (q OwnerBookingsQuery) Key() string { return ownerBookingsKey }

type OwnerBookingsHandler struct {
	UoWFactory uow.UoWFactory
	Clock      calendar.Clock
}

func (h *OwnerBookingsHandler) Handle(ctx context.Context, q OwnerBookingsQuery) ([]dto.Booking, error) {
	if q.ActorID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	from, to := q.From, q.To
	if from.IsZero() || to.IsZero() {
		from, to = calendar.MonthRange(clockOrSystem(h.Clock).Now(), 0)
	}
	if to.Before(from) {
		return nil, apperr.InvalidArgument("range end before start")
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer closeUnit(cleanup)
	list, err := unit.Bookings().ListByOwner(execCtx, q.ActorID, from, to)
	if err != nil {
		return nil, err
	}
	return dto.MapBookings(list), nil
}

// DebtSummaryQuery totals what the actor still owes this week, this month
// and last month.
type DebtSummaryQuery struct {
	ActorID string
}

func (q DebtSummaryQuery) Key() string { return debtSummaryKey }

type DebtSummaryHandler struct {
	UoWFactory uow.UoWFactory
	Clock      calendar.Clock
}

func (h *DebtSummaryHandler) Handle(ctx context.Context, q DebtSummaryQuery) (dto.Debt, error) {
	if q.ActorID == "" {
		return dto.Debt{}, apperr.ErrUnauthenticated
	}
	now := clockOrSystem(h.Clock).Now()
	today := calendar.DayOf(now)
	week := calendar.WeekOf(today)
	prevFrom, prevTo := calendar.MonthRange(now, -1)
	curFrom, curTo := calendar.MonthRange(now, 0)

	from, to := prevFrom, curTo
	if week.Monday.Before(from) {
		from = week.Monday
	}
	if week.Sunday().After(to) {
		to = week.Sunday()
	}

	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.Debt{}, err
	}
	defer closeUnit(cleanup)
	list, err := unit.Bookings().ListByOwner(execCtx, q.ActorID, from, to)
	if err != nil {
		return dto.Debt{}, err
	}

	var debt dto.Debt
	for _, b := range list {
		if b.Paid {
			continue
		}
		amount := b.Price.Int64()
		if week.Contains(b.Date) {
			debt.CurrentWeek += amount
			debt.UnpaidCount++
		}
		if b.Date.Within(curFrom, curTo) {
			debt.CurrentMonth += amount
		}
		if b.Date.Within(prevFrom, prevTo) {
			debt.PreviousMonth += amount
		}
	}
	return debt, nil
}
