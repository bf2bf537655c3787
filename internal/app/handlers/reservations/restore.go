package reservations

import (
	"context"
	"errors"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/dto"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/events"
)

const (
	restoreKey     = "reservations.restore"
	listBackupsKey = "reservations.backups"
)

type RestoreBackupCommand struct {
	ActorID  string
	BackupID string
}

func (c RestoreBackupCommand) Key() string { return restoreKey }

func (c RestoreBackupCommand) AdminActor() string { return c.ActorID }

type RestoreResult struct {
	OK        bool        `json:"ok"`
	BookingID string      `json:"booking_id"`
	Booking   dto.Booking `json:"booking"`
}

// RestoreBackupHandler recreates the booking under its original id. The
// backup flag and the booking are written in one unit, and the store
// refuses the flag flip when the backup is already restored, so a booking is
// recreated at most once.
type RestoreBackupHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Clock      calendar.Clock
}

func (h *RestoreBackupHandler) Handle(ctx context.Context, cmd RestoreBackupCommand) (*RestoreResult, error) {
	if cmd.BackupID == "" {
		return nil, apperr.InvalidArgument("backup id required")
	}
	var res *RestoreResult
	err := support.WithinUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		bk, err := unit.Backups().ByID(ctx, domainbackup.BackupID(cmd.BackupID))
		if err != nil {
			return err
		}
		now := h.now()
		restored, err := bk.Restore(now)
		if err != nil {
			return apperr.Wrap(apperr.KindFailedPrecondition, "backup already restored", err)
		}
		if _, err := unit.Bookings().ByID(ctx, restored.ID); err == nil {
			return apperr.Wrap(apperr.KindFailedPrecondition, "a booking with the original id already exists", domainbackup.ErrBookingExists)
		} else if !errors.Is(err, domainbooking.ErrBookingNotFound) {
			return err
		}
		if err := unit.Bookings().Create(ctx, restored); err != nil {
			return err
		}
		if err := unit.Backups().MarkRestored(ctx, bk.ID, now); err != nil {
			return err
		}
		ev := domainbooking.BookingRestored{Booking: *restored, BackupID: string(bk.ID), At: now}
		if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, []events.DomainEvent{ev}); err != nil {
			return err
		}
		res = &RestoreResult{OK: true, BookingID: string(restored.ID), Booking: dto.MapBooking(restored)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (h *RestoreBackupHandler) now() time.Time {
	return clockOrSystem(h.Clock).Now().UTC()
}

type ListBackupsQuery struct {
	ActorID         string
	OwnerID         string
	IncludeRestored bool
	Limit           int
}

func (q ListBackupsQuery) Key() string { return listBackupsKey }

func (q ListBackupsQuery) AdminActor() string { return q.ActorID }

type ListBackupsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListBackupsHandler) Handle(ctx context.Context, q ListBackupsQuery) ([]dto.Backup, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer closeUnit(cleanup)
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	list, err := unit.Backups().List(execCtx, domainbackup.ListFilter{
		OwnerID:         q.OwnerID,
		IncludeRestored: q.IncludeRestored,
		Limit:           limit,
	})
	if err != nil {
		return nil, err
	}
	return dto.MapBackups(list), nil
}
