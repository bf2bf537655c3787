package backup

import (
	"context"
	"errors"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/domain/booking"
)

var (
	ErrBackupNotFound  = errors.New("backup: not found")
	ErrAlreadyRestored = errors.New("backup: already restored")
	ErrBookingExists   = errors.New("backup: a booking with the original id already exists")
)

type BackupID string

type Reason string

const (
	ReasonSeriesCancel Reason = "series-cancel"
	ReasonSingleCancel Reason = "single-cancel"
	ReasonAdminDelete  Reason = "admin-delete"
)

// Backup holds the last snapshot of a deleted booking. The snapshot keeps the
// original booking id so restore can recreate it in place.
type Backup struct {
	ID         BackupID        `json:"id"`
	Snapshot   booking.Booking `json:"snapshot"`
	DeletedBy  string          `json:"deleted_by"`
	DeletedAt  time.Time       `json:"deleted_at"`
	Reason     Reason          `json:"reason"`
	Restored   bool            `json:"restored"`
	RestoredAt time.Time       `json:"restored_at,omitempty"`
}

func New(id BackupID, snapshot booking.Booking, deletedBy string, reason Reason, at time.Time) *Backup {
	return &Backup{
		ID:        id,
		Snapshot:  snapshot,
		DeletedBy: deletedBy,
		DeletedAt: at.UTC(),
		Reason:    reason,
	}
}

// Restore returns the booking to recreate and flips the backup to restored.
// The flag only moves from false to true.
func (b *Backup) Restore(at time.Time) (*booking.Booking, error) {
	if b.Restored {
		return nil, ErrAlreadyRestored
	}
	restored := b.Snapshot
	restored.RestoredFromBackup = true
	restored.RestoredAt = at.UTC()
	restored.UpdatedAt = at.UTC()
	b.Restored = true
	b.RestoredAt = at.UTC()
	return &restored, nil
}

type ListFilter struct {
	OwnerID         string
	IncludeRestored bool
	Limit           int
}

type Repository interface {
	ByID(ctx context.Context, id BackupID) (*Backup, error)
	Create(ctx context.Context, backup *Backup) error
	MarkRestored(ctx context.Context, id BackupID, at time.Time) error
	List(ctx context.Context, filter ListFilter) ([]*Backup, error)
}
