package uow

import (
	"context"

	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

// UnitOfWork coordinates repositories inside one atomic commit. Reads see
// committed state; writes become visible together on Commit or not at all.
type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Backups() domainbackup.Repository
	PricingConfig() domainpricing.ConfigRepository
	Profiles() domainuser.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UoWFactory starts unit of work instances.
type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
