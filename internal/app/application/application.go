// Package application assembles the command and query buses from their
// handlers and the infrastructure a deployment picked.
package application

import (
	"errors"
	"log/slog"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/rates"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/reservations"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/roles"
	"github.com/DanielNoblero/consultorios-app/internal/app/middleware"
	"github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/app/queries"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

var ErrMissingDependency = errors.New("application: missing dependency")

type Deps struct {
	UoWFactory  uow.UoWFactory
	Engine      *pricing.Engine
	Outbox      outbox.Outbox
	Idempotency middleware.IdempotencyStore
	Claims      domainuser.ClaimsSyncer
	Clock       calendar.Clock
	BatchSize   int
	Recorder    batch.Recorder
	// Timeout bounds each command and query; zero disables it.
	Timeout time.Duration
	Logger  *slog.Logger
}

type App struct {
	Commands commands.Bus
	Queries  queries.Bus
}

// New registers every handler and wraps the registries in the middleware
// chain. Outermost first: timeout, logging, authorization, idempotency,
// outbox flush, transaction.
func New(d Deps) (*App, error) {
	if d.UoWFactory == nil || d.Engine == nil || d.Outbox == nil || d.Idempotency == nil || d.Claims == nil {
		return nil, ErrMissingDependency
	}
	if d.Clock == nil {
		d.Clock = calendar.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	encoder := outbox.JSONEventEncoder{}
	f := d.UoWFactory

	cmdReg := commands.NewRegistry()
	cancel := &reservations.CancelReservationHandler{
		UoWFactory: f, Outbox: d.Outbox, Encoder: encoder, Clock: d.Clock,
		BatchSize: d.BatchSize, Recorder: d.Recorder, Logger: d.Logger,
	}
	commands.RegisterHandler(cmdReg, reservations.CreateReservationCommand{}.Key(), &reservations.CreateReservationHandler{
		UoWFactory: f, Pricing: d.Engine, Outbox: d.Outbox, Encoder: encoder, Clock: d.Clock,
		BatchSize: d.BatchSize, Recorder: d.Recorder, Logger: d.Logger,
	})
	commands.RegisterHandler(cmdReg, reservations.CancelReservationCommand{}.Key(), cancel)
	commands.RegisterHandler(cmdReg, reservations.AdminDeleteReservationCommand{}.Key(), &reservations.AdminDeleteReservationHandler{Cancel: cancel})
	commands.RegisterHandler(cmdReg, reservations.RestoreBackupCommand{}.Key(), &reservations.RestoreBackupHandler{
		UoWFactory: f, Outbox: d.Outbox, Encoder: encoder, Clock: d.Clock,
	})
	commands.RegisterHandler(cmdReg, reservations.SetPaidCommand{}.Key(), &reservations.SetPaidHandler{
		UoWFactory: f, Outbox: d.Outbox, Encoder: encoder, Clock: d.Clock,
	})
	commands.RegisterHandler(cmdReg, reservations.MarkMonthCommand{}.Key(), &reservations.MarkMonthHandler{
		UoWFactory: f, Outbox: d.Outbox, Encoder: encoder, Clock: d.Clock,
		BatchSize: d.BatchSize, Recorder: d.Recorder, Logger: d.Logger,
	})
	commands.RegisterHandler(cmdReg, rates.UpdatePricingConfigCommand{}.Key(), &rates.UpdatePricingConfigHandler{
		UoWFactory: f, Outbox: d.Outbox, Encoder: encoder, Clock: d.Clock, Logger: d.Logger,
	})
	commands.RegisterHandler(cmdReg, rates.AcknowledgePriceCommand{}.Key(), &rates.AcknowledgePriceHandler{UoWFactory: f, Clock: d.Clock})
	commands.RegisterHandler(cmdReg, roles.AssignRoleCommand{}.Key(), &roles.AssignRoleHandler{
		UoWFactory: f, Claims: d.Claims, Clock: d.Clock, Logger: d.Logger,
	})

	qReg := queries.NewRegistry()
	queries.RegisterHandler(qReg, reservations.ListBackupsQuery{}.Key(), &reservations.ListBackupsHandler{UoWFactory: f})
	queries.RegisterHandler(qReg, reservations.DayAgendaQuery{}.Key(), &reservations.DayAgendaHandler{UoWFactory: f})
	queries.RegisterHandler(qReg, reservations.OwnerBookingsQuery{}.Key(), &reservations.OwnerBookingsHandler{UoWFactory: f, Clock: d.Clock})
	queries.RegisterHandler(qReg, reservations.DebtSummaryQuery{}.Key(), &reservations.DebtSummaryHandler{UoWFactory: f, Clock: d.Clock})
	queries.RegisterHandler(qReg, rates.GetPricingQuery{}.Key(), &rates.GetPricingHandler{UoWFactory: f})
	queries.RegisterHandler(qReg, rates.PriceNoticeQuery{}.Key(), &rates.PriceNoticeHandler{UoWFactory: f})

	authz := middleware.StoredRoleAuthorizer{UoWFactory: f}
	return &App{
		Commands: middleware.ChainCommands(cmdReg,
			middleware.Timeout(d.Timeout),
			middleware.Logging(d.Logger),
			middleware.Authorization(authz),
			middleware.Idempotency(d.Idempotency, nil),
			middleware.OutboxFlush(d.Outbox),
			middleware.Transaction(f, nil),
		),
		Queries: middleware.ChainQueries(qReg,
			middleware.QueryTimeout(d.Timeout),
			middleware.QueryAuthorization(authz),
		),
	}, nil
}
