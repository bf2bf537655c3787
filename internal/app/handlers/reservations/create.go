package reservations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/middleware"
	"github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/events"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

const (
	createKey = "reservations.create"

	opCreate        = "create"
	opCreateReprice = "create-reprice"
)

type CreateReservationCommand struct {
	ActorID         string
	Date            calendar.Day
	StartTime       string
	EndTime         string
	Room            int
	Recurrence      domainbooking.Recurrence
	IdempotencyKeyV string
}

func (c CreateReservationCommand) Key() string { return createKey }

func (c CreateReservationCommand) IdempotencyKey() string { return c.IdempotencyKeyV }

func (c CreateReservationCommand) ResultPrototype() any { return &CreateReservationResult{} }

func (CreateReservationCommand) SelfCommitting() {}

// CreateReservationResult reports what was stored. NothingToCreate is set
// when every requested slot already existed; that is not an error.
type CreateReservationResult struct {
	Created         int      `json:"created"`
	IDs             []string `json:"ids"`
	SeriesID        string   `json:"series_id,omitempty"`
	Skipped         int      `json:"skipped"`
	Repriced        int      `json:"repriced"`
	NothingToCreate bool     `json:"nothing_to_create"`
}

type CreateReservationHandler struct {
	UoWFactory  uow.UoWFactory
	Pricing     *pricing.Engine
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Expand      domainbooking.Expander
	Clock       calendar.Clock
	IDGenerator func() string
	BatchSize   int
	Recorder    batch.Recorder
	Logger      *slog.Logger
}

func (h *CreateReservationHandler) Handle(ctx context.Context, cmd CreateReservationCommand) (CreateReservationResult, error) {
	if cmd.ActorID == "" {
		return CreateReservationResult{}, apperr.ErrUnauthenticated
	}
	if h.Pricing == nil {
		return CreateReservationResult{}, errors.New("reservations: pricing engine required")
	}
	base, err := h.baseBooking(cmd)
	if err != nil {
		return CreateReservationResult{}, err
	}
	dates, err := h.expander()(base.Date, cmd.Recurrence)
	if err != nil {
		return CreateReservationResult{}, err
	}

	plan, err := h.plan(ctx, cmd, base, dates)
	if err != nil {
		return CreateReservationResult{}, err
	}
	if len(plan.created) == 0 {
		return CreateReservationResult{NothingToCreate: true, Skipped: plan.skipped, IDs: []string{}}, nil
	}

	created, err := batch.Run(ctx, plan.created, h.BatchSize, 2, batch.Observed(opCreate, 2, h.Recorder, h.persist))
	if err != nil {
		h.logger().ErrorContext(ctx, "reservation creation incomplete",
			"owner_id", cmd.ActorID, "created", created, "requested", len(plan.created), "error", err)
		var chunkErr *batch.ChunkError
		if errors.As(err, &chunkErr) && errors.Is(chunkErr.Err, domainbooking.ErrDuplicateSlot) {
			return CreateReservationResult{}, apperr.Wrap(apperr.KindFailedPrecondition, "slot taken concurrently, retry the request", err)
		}
		return CreateReservationResult{}, err
	}

	repriced := 0
	if len(plan.repriced) > 0 {
		repriced, err = h.Pricing.Apply(ctx, opCreateReprice, plan.repriced)
		if err != nil {
			// The new bookings are stored; the change feed converges the rest.
			h.logger().WarnContext(ctx, "repricing existing bookings failed", "owner_id", cmd.ActorID, "error", err)
		}
	}

	ids := make([]string, 0, len(plan.created))
	for _, b := range plan.created {
		ids = append(ids, string(b.ID))
	}
	return CreateReservationResult{
		Created:  created,
		IDs:      ids,
		SeriesID: plan.seriesID,
		Skipped:  plan.skipped,
		Repriced: repriced,
	}, nil
}

func (h *CreateReservationHandler) baseBooking(cmd CreateReservationCommand) (domainbooking.Booking, error) {
	if cmd.Date.IsZero() {
		return domainbooking.Booking{}, domainbooking.ErrDateRequired
	}
	end := cmd.EndTime
	if end == "" {
		derived, err := calendar.EndFor(cmd.StartTime)
		if err != nil {
			return domainbooking.Booking{}, err
		}
		end = derived
	}
	base := domainbooking.Booking{
		OwnerID:   cmd.ActorID,
		Date:      cmd.Date,
		StartTime: cmd.StartTime,
		EndTime:   end,
		Room:      cmd.Room,
	}
	if err := base.Validate(); err != nil {
		return domainbooking.Booking{}, err
	}
	if base.Date.Before(calendar.Today(h.clock())) {
		return domainbooking.Booking{}, apperr.InvalidArgument("cannot book a date in the past")
	}
	return base, nil
}

type createPlan struct {
	created  []*domainbooking.Booking
	repriced []pricing.Change
	seriesID string
	skipped  int
}

func (h *CreateReservationHandler) plan(ctx context.Context, cmd CreateReservationCommand, base domainbooking.Booking, dates []calendar.Day) (createPlan, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return createPlan{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	profile, err := unit.Profiles().ByID(execCtx, domainuser.ID(cmd.ActorID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return createPlan{}, apperr.NotFound("profile not found for the acting professional")
		}
		return createPlan{}, err
	}
	cfg, err := unit.PricingConfig().Get(execCtx)
	if err != nil {
		return createPlan{}, err
	}
	first, last := calendar.MondayOf(dates[0]), calendar.SundayOf(dates[len(dates)-1])
	existing, err := unit.Bookings().ListByOwner(execCtx, cmd.ActorID, first, last)
	if err != nil {
		return createPlan{}, err
	}

	var plan createPlan
	if cmd.Recurrence.Recurring() && len(dates) > 1 {
		plan.seriesID = h.newID()
	}
	kind := cmd.Recurrence.Kind
	if kind == "" {
		kind = domainbooking.RecurrenceNone
	}

	taken := make(map[domainbooking.SlotKey]struct{}, len(existing)+len(dates))
	for _, b := range existing {
		taken[b.SlotKey()] = struct{}{}
	}
	now := h.clock().Now().UTC()
	admin := profile.IsAdmin()
	for _, day := range dates {
		b := base
		b.Date = day
		key := b.SlotKey()
		if _, dup := taken[key]; dup {
			plan.skipped++
			continue
		}
		taken[key] = struct{}{}
		b.ID = domainbooking.BookingID(h.newID())
		b.OwnerName = profile.DisplayName()
		b.OwnerEmail = profile.Email
		b.SeriesID = plan.seriesID
		b.Recurrence = kind
		b.CreatedAt = now
		b.UpdatedAt = now
		if admin {
			b.Price = money.Zero
			b.Paid = true
		}
		plan.created = append(plan.created, &b)
	}
	if admin || len(plan.created) == 0 {
		return plan, nil
	}

	rule := h.Pricing.Rule(cfg)
	fresh := make(map[domainbooking.BookingID]*domainbooking.Booking, len(plan.created))
	weeks := make(map[calendar.Week][]*domainbooking.Booking)
	var order []calendar.Week
	group := func(b *domainbooking.Booking) {
		w := b.Week()
		if _, ok := weeks[w]; !ok {
			order = append(order, w)
		}
		weeks[w] = append(weeks[w], b)
	}
	for _, b := range plan.created {
		fresh[b.ID] = b
		group(b)
	}
	for _, b := range existing {
		if _, touched := weeks[b.Week()]; touched {
			group(b)
		}
	}
	for _, w := range order {
		for _, change := range pricing.PlanCohort(weeks[w], rule, false) {
			if b, ok := fresh[change.ID]; ok {
				b.Price = change.Price
				continue
			}
			plan.repriced = append(plan.repriced, change)
		}
	}
	return plan, nil
}

// persist stores one chunk of new bookings together with their events.
func (h *CreateReservationHandler) persist(ctx context.Context, chunk []*domainbooking.Booking) error {
	return support.InNewUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		evs := make([]events.DomainEvent, 0, len(chunk))
		for _, b := range chunk {
			if err := unit.Bookings().Create(ctx, b); err != nil {
				return fmt.Errorf("create booking %s: %w", b.ID, err)
			}
			evs = append(evs, domainbooking.BookingCreated{Booking: *b, At: b.CreatedAt})
		}
		return outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, evs)
	})
}

func (h *CreateReservationHandler) expander() domainbooking.Expander {
	if h.Expand != nil {
		return h.Expand
	}
	return domainbooking.WeeklyApproximation
}

func (h *CreateReservationHandler) newID() string {
	if h.IDGenerator != nil {
		return h.IDGenerator()
	}
	return uuid.NewString()
}

func (h *CreateReservationHandler) clock() calendar.Clock {
	return clockOrSystem(h.Clock)
}

func clockOrSystem(c calendar.Clock) calendar.Clock {
	if c != nil {
		return c
	}
	return calendar.SystemClock{}
}

func (h *CreateReservationHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var (
	_ commands.Handler[CreateReservationCommand, CreateReservationResult] = (*CreateReservationHandler)(nil)
	_ middleware.IdempotentCommand                                        = CreateReservationCommand{}
	_ middleware.SelfCommitting                                           = CreateReservationCommand{}
)
