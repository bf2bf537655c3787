package reservations

import (
	"context"
	"log/slog"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
	"github.com/DanielNoblero/consultorios-app/internal/app/dto"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/events"
)

const (
	setPaidKey   = "reservations.set_paid"
	markMonthKey = "reservations.mark_month"

	opMarkMonth = "mark-month"
)

type SetPaidCommand struct {
	ActorID   string
	BookingID string
	Paid      bool
}

func (c SetPaidCommand) Key() string { return setPaidKey }

func (c SetPaidCommand) AdminActor() string { return c.ActorID }

type SetPaidResult struct {
	OK      bool        `json:"ok"`
	Changed bool        `json:"changed"`
	Booking dto.Booking `json:"booking"`
}

type SetPaidHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Clock      calendar.Clock
}

func (h *SetPaidHandler) Handle(ctx context.Context, cmd SetPaidCommand) (*SetPaidResult, error) {
	if cmd.BookingID == "" {
		return nil, apperr.InvalidArgument("booking id required")
	}
	var res *SetPaidResult
	err := support.WithinUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		before, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
		if err != nil {
			return err
		}
		if before.Paid == cmd.Paid {
			res = &SetPaidResult{OK: true, Booking: dto.MapBooking(before)}
			return nil
		}
		now := clockOrSystem(h.Clock).Now().UTC()
		after := before.Clone()
		after.Paid = cmd.Paid
		after.UpdatedAt = now
		if err := unit.Bookings().SetPaid(ctx, before.ID, cmd.Paid); err != nil {
			return err
		}
		ev := domainbooking.BookingUpdated{Before: *before, After: *after, At: now}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, []events.DomainEvent{ev}); err != nil {
			return err
		}
		res = &SetPaidResult{OK: true, Changed: true, Booking: dto.MapBooking(after)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// MarkMonthCommand settles (or reopens) every booking an owner holds in one
// calendar month.
type MarkMonthCommand struct {
	ActorID string
	OwnerID string
	Period  calendar.Period
	Paid    bool
}

func (c MarkMonthCommand) Key() string { return markMonthKey }

func (c MarkMonthCommand) AdminActor() string { return c.ActorID }

func (MarkMonthCommand) SelfCommitting() {}

type MarkMonthResult struct {
	OK    bool `json:"ok"`
	Count int  `json:"count"`
}

type MarkMonthHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Clock      calendar.Clock
	BatchSize  int
	Recorder   batch.Recorder
	Logger     *slog.Logger
}

func (h *MarkMonthHandler) Handle(ctx context.Context, cmd MarkMonthCommand) (*MarkMonthResult, error) {
	if cmd.OwnerID == "" {
		return nil, apperr.InvalidArgument("owner id required")
	}
	if cmd.Period.IsZero() {
		return nil, apperr.InvalidArgument("period required")
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	from, to := cmd.Period.Range()
	month, err := unit.Bookings().ListByOwner(execCtx, cmd.OwnerID, from, to)
	closeUnit(cleanup)
	if err != nil {
		return nil, err
	}

	var pending []*domainbooking.Booking
	for _, b := range month {
		if b.Paid != cmd.Paid {
			pending = append(pending, b)
		}
	}
	commit := func(ctx context.Context, chunk []*domainbooking.Booking) error {
		return support.InNewUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
			now := clockOrSystem(h.Clock).Now().UTC()
			evs := make([]events.DomainEvent, 0, len(chunk))
			for _, b := range chunk {
				if err := unit.Bookings().SetPaid(ctx, b.ID, cmd.Paid); err != nil {
					return err
				}
				after := b.Clone()
				after.Paid = cmd.Paid
				after.UpdatedAt = now
				evs = append(evs, domainbooking.BookingUpdated{Before: *b, After: *after, At: now})
			}
			return outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, evs)
		})
	}
	count, err := batch.Run(ctx, pending, h.BatchSize, 2, batch.Observed(opMarkMonth, 2, h.Recorder, commit))
	if err != nil {
		logger := h.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(ctx, "month payment update incomplete",
			"owner_id", cmd.OwnerID, "period", cmd.Period.String(), "updated", count, "error", err)
		return nil, err
	}
	return &MarkMonthResult{OK: true, Count: count}, nil
}
