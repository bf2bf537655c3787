package reservations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/events"
)

const (
	cancelKey      = "reservations.cancel"
	adminDeleteKey = "reservations.admin_delete"

	opCancel = "cancel"

	KindSingle = "single"
	KindSeries = "series"
)

// CancelReservationCommand deletes one booking, or with Series the booking
// and every later occurrence of its series.
type CancelReservationCommand struct {
	ActorID   string
	BookingID string
	Series    bool
}

func (c CancelReservationCommand) Key() string { return cancelKey }

func (CancelReservationCommand) SelfCommitting() {}

// AdminDeleteReservationCommand removes a single booking on behalf of an
// administrator, whoever owns it.
type AdminDeleteReservationCommand struct {
	ActorID   string
	BookingID string
}

func (c AdminDeleteReservationCommand) Key() string { return adminDeleteKey }

func (c AdminDeleteReservationCommand) AdminActor() string { return c.ActorID }

func (AdminDeleteReservationCommand) SelfCommitting() {}

type CancelResult struct {
	OK              bool     `json:"ok"`
	Kind            string   `json:"tipo"`
	Count           int      `json:"cantidad"`
	BackupIDs       []string `json:"backup_ids,omitempty"`
	NothingToCancel bool     `json:"nothing_to_cancel,omitempty"`
}

type CancelReservationHandler struct {
	UoWFactory  uow.UoWFactory
	Outbox      outbox.Outbox
	Encoder     outbox.EventEncoder
	Clock       calendar.Clock
	IDGenerator func() string
	BatchSize   int
	Recorder    batch.Recorder
	Logger      *slog.Logger
}

func (h *CancelReservationHandler) Handle(ctx context.Context, cmd CancelReservationCommand) (*CancelResult, error) {
	if cmd.ActorID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if cmd.BookingID == "" {
		return nil, apperr.InvalidArgument("booking id required")
	}

	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	ref, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		closeUnit(cleanup)
		return nil, err
	}
	actorAdmin, err := pricing.OwnerIsAdmin(execCtx, unit, cmd.ActorID)
	if err != nil {
		closeUnit(cleanup)
		return nil, err
	}
	if ref.OwnerID != cmd.ActorID && !actorAdmin {
		closeUnit(cleanup)
		return nil, apperr.ErrNotOwner
	}

	kind, reason := KindSingle, domainbackup.ReasonSingleCancel
	targets := []*domainbooking.Booking{ref}
	if cmd.Series && ref.SeriesID != "" {
		kind, reason = KindSeries, domainbackup.ReasonSeriesCancel
		series, err := unit.Bookings().ListBySeries(execCtx, ref.SeriesID)
		if err != nil {
			closeUnit(cleanup)
			return nil, err
		}
		targets = futureOccurrences(series, ref.Date)
	}
	ownerAdmin, err := pricing.OwnerIsAdmin(execCtx, unit, ref.OwnerID)
	closeUnit(cleanup)
	if err != nil {
		return nil, err
	}

	if len(targets) == 0 {
		return &CancelResult{OK: true, Kind: kind, NothingToCancel: true}, nil
	}
	return h.deleter().run(ctx, deletion{
		actorID:  cmd.ActorID,
		kind:     kind,
		reason:   reason,
		targets:  targets,
		noBackup: ownerAdmin,
	})
}

// futureOccurrences keeps the occurrences dated on or after from.
func futureOccurrences(series []*domainbooking.Booking, from calendar.Day) []*domainbooking.Booking {
	out := make([]*domainbooking.Booking, 0, len(series))
	for _, b := range series {
		if !b.Date.Before(from) {
			out = append(out, b)
		}
	}
	return out
}

func (h *CancelReservationHandler) deleter() *deleter {
	return &deleter{
		factory:   h.UoWFactory,
		outbox:    h.Outbox,
		encoder:   h.Encoder,
		clock:     h.Clock,
		newID:     h.IDGenerator,
		batchSize: h.BatchSize,
		recorder:  h.Recorder,
		logger:    h.Logger,
	}
}

type AdminDeleteReservationHandler struct {
	Cancel *CancelReservationHandler
}

func (h *AdminDeleteReservationHandler) Handle(ctx context.Context, cmd AdminDeleteReservationCommand) (*CancelResult, error) {
	if cmd.BookingID == "" {
		return nil, apperr.InvalidArgument("booking id required")
	}
	c := h.Cancel
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, c.UoWFactory)
	if err != nil {
		return nil, err
	}
	ref, err := unit.Bookings().ByID(execCtx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		closeUnit(cleanup)
		return nil, err
	}
	ownerAdmin, err := pricing.OwnerIsAdmin(execCtx, unit, ref.OwnerID)
	closeUnit(cleanup)
	if err != nil {
		return nil, err
	}
	return c.deleter().run(ctx, deletion{
		actorID:  cmd.ActorID,
		kind:     KindSingle,
		reason:   domainbackup.ReasonAdminDelete,
		targets:  []*domainbooking.Booking{ref},
		noBackup: ownerAdmin,
	})
}

type deletion struct {
	actorID  string
	kind     string
	reason   domainbackup.Reason
	targets  []*domainbooking.Booking
	noBackup bool
}

// deleter removes bookings chunk by chunk. Within a chunk each backup is
// staged before its delete so both land in the same commit.
type deleter struct {
	factory   uow.UoWFactory
	outbox    outbox.Outbox
	encoder   outbox.EventEncoder
	clock     calendar.Clock
	newID     func() string
	batchSize int
	recorder  batch.Recorder
	logger    *slog.Logger
}

func (d *deleter) run(ctx context.Context, del deletion) (*CancelResult, error) {
	res := &CancelResult{OK: true, Kind: del.kind}
	commit := func(ctx context.Context, chunk []*domainbooking.Booking) error {
		var ids []string
		err := support.InNewUnit(ctx, d.factory, func(ctx context.Context, unit uow.UnitOfWork) error {
			ids = ids[:0]
			now := d.now()
			evs := make([]events.DomainEvent, 0, len(chunk))
			for _, b := range chunk {
				var backupID domainbackup.BackupID
				if !del.noBackup {
					backupID = domainbackup.BackupID(d.id())
					if err := unit.Backups().Create(ctx, domainbackup.New(backupID, *b, del.actorID, del.reason, now)); err != nil {
						return err
					}
					ids = append(ids, string(backupID))
				}
				if err := unit.Bookings().Delete(ctx, b.ID); err != nil {
					return err
				}
				evs = append(evs, domainbooking.BookingDeleted{Booking: *b, DeletedBy: del.actorID, BackupID: string(backupID), At: now})
			}
			return outbox.RecordDomainEvents(ctx, d.outbox, d.encoder, evs)
		})
		if err == nil {
			res.BackupIDs = append(res.BackupIDs, ids...)
		}
		return err
	}

	count, err := batch.Run(ctx, del.targets, d.batchSize, 3, batch.Observed(opCancel, 3, d.recorder, commit))
	res.Count = count
	if err != nil {
		d.log().ErrorContext(ctx, "cancellation incomplete",
			"actor_id", del.actorID, "kind", del.kind, "deleted", count, "requested", len(del.targets), "error", err)
		var chunkErr *batch.ChunkError
		if count > 0 && errors.As(err, &chunkErr) {
			return nil, apperr.Wrap(apperr.KindInternal, "cancellation partially applied, retry to finish", err)
		}
		return nil, err
	}
	return res, nil
}

func (d *deleter) now() time.Time {
	return clockOrSystem(d.clock).Now().UTC()
}

func (d *deleter) id() string {
	if d.newID != nil {
		return d.newID()
	}
	return uuid.NewString()
}

func (d *deleter) log() *slog.Logger {
	if d.logger != nil {
		return d.logger
	}
	return slog.Default()
}

func closeUnit(cleanup func()) {
	if cleanup != nil {
		cleanup()
	}
}
