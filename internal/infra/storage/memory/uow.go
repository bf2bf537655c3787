package memory

import (
	"context"

	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

// Factory begins units over a Store.
type Factory struct {
	store *Store
}

func (f *Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	return &Unit{store: f.store, readOnly: opts.ReadOnly}, nil
}

// Unit stages writes and applies them on Commit. Reads within the unit see
// committed state only.
type Unit struct {
	store    *Store
	readOnly bool
	ops      []op
	closed   bool
}

func (u *Unit) stage(o op) error {
	if u.closed {
		return ErrUnitClosed
	}
	if u.readOnly {
		return ErrReadOnly
	}
	u.ops = append(u.ops, o)
	return nil
}

func (u *Unit) Bookings() domainbooking.Repository {
	return &bookingRepository{unit: u}
}

func (u *Unit) Backups() domainbackup.Repository {
	return &backupRepository{unit: u}
}

func (u *Unit) PricingConfig() domainpricing.ConfigRepository {
	return &configRepository{unit: u}
}

func (u *Unit) Profiles() domainuser.Repository {
	return &profileRepository{unit: u}
}

func (u *Unit) Commit(ctx context.Context) error {
	if u.closed {
		return ErrUnitClosed
	}
	u.closed = true
	if len(u.ops) == 0 {
		return nil
	}
	ops := u.ops
	u.ops = nil
	return u.store.commit(ops)
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.closed = true
	u.ops = nil
	return nil
}

var _ uow.UoWFactory = (*Factory)(nil)
