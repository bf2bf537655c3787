package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"

	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
type Factory struct {
	DB *mongo.Database
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// Begin starts a session with a snapshot transaction. Repository calls made
// with the unit's exec context run inside it.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(readconcern.Snapshot()).SetWriteConcern(f.DB.WriteConcern())
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{
		session:  session,
		bookings: &BookingRepository{col: f.DB.Collection(bookingsCollection)},
		backups:  &BackupRepository{col: f.DB.Collection(backupsCollection)},
		config:   &ConfigRepository{col: f.DB.Collection(configCollection)},
		profiles: &ProfileRepository{col: f.DB.Collection(profilesCollection)},
	}, nil
}

type Unit struct {
	session mongo.Session

	bookings *BookingRepository
	backups  *BackupRepository
	config   *ConfigRepository
	profiles *ProfileRepository
}

func (u *Unit) Bookings() domainbooking.Repository {
	return u.bookings
}

func (u *Unit) Backups() domainbackup.Repository {
	return u.backups
}

func (u *Unit) PricingConfig() domainpricing.ConfigRepository {
	return u.config
}

func (u *Unit) Profiles() domainuser.Repository {
	return u.profiles
}

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}

var _ uow.UoWFactory = Factory{}
