package reservations_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/commands"
	"github.com/DanielNoblero/consultorios-app/internal/app/dto"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/reservations"
	"github.com/DanielNoblero/consultorios-app/internal/app/middleware"
	"github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/app/queries"
	domainbackup "github.com/DanielNoblero/consultorios-app/internal/domain/backup"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
	"github.com/DanielNoblero/consultorios-app/internal/infra/storage/memory"
)

// Wednesday 2024-03-06.
var now = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	box      *memory.Outbox
	commands commands.Bus
	queries  queries.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	store.PutConfig(domainpricing.Config{BaseRate: 250, DiscountRate: 230})
	store.PutProfile(domainuser.Profile{ID: "ana", Email: "ana@example.com", FirstName: "Ana", LastName: "Paz", Role: domainuser.RoleProfessional})
	store.PutProfile(domainuser.Profile{ID: "bea", Email: "bea@example.com", FirstName: "Bea", Role: domainuser.RoleProfessional})
	store.PutProfile(domainuser.Profile{ID: "root", Email: "root@example.com", FirstName: "Root", Role: domainuser.RoleAdmin, Admin: true})

	factory := store.Factory()
	box := memory.NewOutbox(nil)
	clock := calendar.FixedClock(now)
	encoder := outbox.JSONEventEncoder{}
	engine := &pricing.Engine{UoWFactory: factory, Threshold: 10, BatchSize: 450, Clock: clock}

	cmdReg := commands.NewRegistry()
	cancel := &reservations.CancelReservationHandler{UoWFactory: factory, Outbox: box, Encoder: encoder, Clock: clock}
	commands.RegisterHandler(cmdReg, reservations.CreateReservationCommand{}.Key(), &reservations.CreateReservationHandler{
		UoWFactory: factory, Pricing: engine, Outbox: box, Encoder: encoder, Clock: clock,
	})
	commands.RegisterHandler(cmdReg, reservations.CancelReservationCommand{}.Key(), cancel)
	commands.RegisterHandler(cmdReg, reservations.AdminDeleteReservationCommand{}.Key(), &reservations.AdminDeleteReservationHandler{Cancel: cancel})
	commands.RegisterHandler(cmdReg, reservations.RestoreBackupCommand{}.Key(), &reservations.RestoreBackupHandler{
		UoWFactory: factory, Outbox: box, Encoder: encoder, Clock: clock,
	})
	commands.RegisterHandler(cmdReg, reservations.SetPaidCommand{}.Key(), &reservations.SetPaidHandler{
		UoWFactory: factory, Outbox: box, Encoder: encoder, Clock: clock,
	})
	commands.RegisterHandler(cmdReg, reservations.MarkMonthCommand{}.Key(), &reservations.MarkMonthHandler{
		UoWFactory: factory, Outbox: box, Encoder: encoder, Clock: clock,
	})

	qReg := queries.NewRegistry()
	queries.RegisterHandler(qReg, reservations.ListBackupsQuery{}.Key(), &reservations.ListBackupsHandler{UoWFactory: factory})
	queries.RegisterHandler(qReg, reservations.DayAgendaQuery{}.Key(), &reservations.DayAgendaHandler{UoWFactory: factory})
	queries.RegisterHandler(qReg, reservations.OwnerBookingsQuery{}.Key(), &reservations.OwnerBookingsHandler{UoWFactory: factory, Clock: clock})
	queries.RegisterHandler(qReg, reservations.DebtSummaryQuery{}.Key(), &reservations.DebtSummaryHandler{UoWFactory: factory, Clock: clock})

	authz := middleware.StoredRoleAuthorizer{UoWFactory: factory}
	return &fixture{
		store: store,
		box:   box,
		commands: middleware.ChainCommands(cmdReg,
			middleware.Authorization(authz),
			middleware.Idempotency(memory.NewIdempotencyStore(time.Hour), nil),
			middleware.OutboxFlush(box),
			middleware.Transaction(factory, nil),
		),
		queries: middleware.ChainQueries(qReg, middleware.QueryAuthorization(authz)),
	}
}

func (f *fixture) create(t *testing.T, cmd reservations.CreateReservationCommand) reservations.CreateReservationResult {
	t.Helper()
	res, err := commands.Dispatch[reservations.CreateReservationCommand, reservations.CreateReservationResult](context.Background(), f.commands, cmd)
	require.NoError(t, err)
	return res
}

func (f *fixture) cancel(cmd reservations.CancelReservationCommand) (*reservations.CancelResult, error) {
	return commands.Dispatch[reservations.CancelReservationCommand, *reservations.CancelResult](context.Background(), f.commands, cmd)
}

func (f *fixture) restore(actor, backupID string) (*reservations.RestoreResult, error) {
	return commands.Dispatch[reservations.RestoreBackupCommand, *reservations.RestoreResult](context.Background(), f.commands,
		reservations.RestoreBackupCommand{ActorID: actor, BackupID: backupID})
}

// seedWeek stores n unpaid bookings for owner spread over the week starting
// at monday, one per slot.
func seedWeek(store *memory.Store, owner, monday string, n int, price money.Amount) []domainbooking.BookingID {
	start := calendar.MustParseDay(monday)
	slots := calendar.Slots()
	ids := make([]domainbooking.BookingID, 0, n)
	for i := 0; i < n; i++ {
		slot := slots[(i/7)*2]
		id := domainbooking.BookingID(fmt.Sprintf("%s-%s-%d", owner, monday, i))
		store.PutBooking(domainbooking.Booking{
			ID: id, OwnerID: owner, Date: start.AddDays(i % 7),
			StartTime: slot.Start, EndTime: slot.End, Room: 1, Price: price,
		})
		ids = append(ids, id)
	}
	return ids
}

func oneOff(actor, day, start string, room int) reservations.CreateReservationCommand {
	return reservations.CreateReservationCommand{ActorID: actor, Date: calendar.MustParseDay(day), StartTime: start, Room: room}
}

func weekly(actor, day, start string, room, count int) reservations.CreateReservationCommand {
	cmd := oneOff(actor, day, start, room)
	cmd.Recurrence = domainbooking.Recurrence{Kind: domainbooking.RecurrenceWeekly, Count: count}
	return cmd
}

func TestCreateTenthBookingInWeekAppliesDiscount(t *testing.T) {
	f := newFixture(t)
	existing := seedWeek(f.store, "ana", "2024-03-11", 9, 250)

	res := f.create(t, oneOff("ana", "2024-03-15", "18:00", 2))
	require.Equal(t, 1, res.Created)
	assert.Equal(t, 9, res.Repriced)

	created, ok := f.store.Booking(domainbooking.BookingID(res.IDs[0]))
	require.True(t, ok)
	assert.EqualValues(t, 230, created.Price)
	assert.Equal(t, "Ana Paz", created.OwnerName)
	assert.Equal(t, "19:00", created.EndTime)
	for _, id := range existing {
		b, _ := f.store.Booking(id)
		assert.EqualValues(t, 230, b.Price, id)
	}
	assert.Equal(t, 1, f.box.Sent(), "one creation event, repricing writes emit none")
}

func TestCreateWeeklySeries(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, weekly("ana", "2024-03-11", "09:00", 1, 5))

	require.Equal(t, 5, res.Created)
	require.NotEmpty(t, res.SeriesID)
	all := f.store.AllBookings()
	require.Len(t, all, 5)
	for i, b := range all {
		assert.Equal(t, res.SeriesID, b.SeriesID)
		assert.Equal(t, domainbooking.RecurrenceWeekly, b.Recurrence)
		assert.Equal(t, calendar.MustParseDay("2024-03-11").AddDays(7*i), b.Date)
		assert.EqualValues(t, 250, b.Price)
	}
}

func TestCreateSingleOccurrenceHasNoSeries(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, weekly("ana", "2024-03-11", "09:00", 1, 1))
	assert.Equal(t, 1, res.Created)
	assert.Empty(t, res.SeriesID)
}

func TestCreateDeduplicatesAgainstStoredBookings(t *testing.T) {
	f := newFixture(t)
	first := f.create(t, oneOff("ana", "2024-03-12", "10:00", 3))
	require.Equal(t, 1, first.Created)

	again := f.create(t, oneOff("ana", "2024-03-12", "10:00", 3))
	assert.True(t, again.NothingToCreate)
	assert.Zero(t, again.Created)
	assert.Equal(t, 1, again.Skipped)
	assert.Len(t, f.store.AllBookings(), 1)

	// A series overlapping the stored one-off only creates the missing dates.
	series := f.create(t, weekly("ana", "2024-03-12", "10:00", 3, 3))
	assert.Equal(t, 2, series.Created)
	assert.Equal(t, 1, series.Skipped)
}

func TestCreateReplaysIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	cmd := oneOff("ana", "2024-03-12", "10:00", 3)
	cmd.IdempotencyKeyV = "req-1"

	first := f.create(t, cmd)
	second := f.create(t, cmd)
	assert.Equal(t, first, second)
	assert.Len(t, f.store.AllBookings(), 1)
}

func TestCreateByAdministratorIsFreeAndPaid(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, weekly("root", "2024-03-11", "12:00", 5, 2))
	require.Equal(t, 2, res.Created)
	for _, b := range f.store.AllBookings() {
		assert.True(t, b.Price.IsZero())
		assert.True(t, b.Paid)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		cmd  reservations.CreateReservationCommand
		kind apperr.Kind
	}{
		{"past date", oneOff("ana", "2024-03-05", "10:00", 1), apperr.KindInvalidArgument},
		{"room out of range", oneOff("ana", "2024-03-12", "10:00", 6), apperr.KindInvalidArgument},
		{"off grid", oneOff("ana", "2024-03-12", "10:15", 1), apperr.KindInvalidArgument},
		{"after closing", oneOff("ana", "2024-03-12", "21:30", 1), apperr.KindInvalidArgument},
		{"unknown professional", oneOff("ghost", "2024-03-12", "10:00", 1), apperr.KindNotFound},
		{"anonymous", oneOff("", "2024-03-12", "10:00", 1), apperr.KindUnauthenticated},
		{"zero count", weekly("ana", "2024-03-12", "10:00", 1, 0), apperr.KindInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := commands.Dispatch[reservations.CreateReservationCommand, reservations.CreateReservationResult](context.Background(), f.commands, tc.cmd)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}
	assert.Empty(t, f.store.AllBookings())
}

func TestCancelSeriesFromThirdOccurrence(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, weekly("ana", "2024-03-11", "09:00", 1, 5))
	require.Len(t, created.IDs, 5)

	res, err := f.cancel(reservations.CancelReservationCommand{ActorID: "ana", BookingID: created.IDs[2], Series: true})
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, reservations.KindSeries, res.Kind)
	assert.Equal(t, 3, res.Count)
	assert.Len(t, res.BackupIDs, 3)

	left := f.store.AllBookings()
	require.Len(t, left, 2)
	assert.Equal(t, created.IDs[0], string(left[0].ID))
	assert.Equal(t, created.IDs[1], string(left[1].ID))

	backups := f.store.AllBackups()
	require.Len(t, backups, 3)
	deleted := map[string]bool{}
	for _, bk := range backups {
		assert.False(t, bk.Restored)
		assert.Equal(t, domainbackup.ReasonSeriesCancel, bk.Reason)
		assert.Equal(t, "ana", bk.DeletedBy)
		deleted[string(bk.Snapshot.ID)] = true
	}
	assert.Equal(t, map[string]bool{created.IDs[2]: true, created.IDs[3]: true, created.IDs[4]: true}, deleted)
}

func TestCancelSingleIgnoresSeries(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, weekly("ana", "2024-03-11", "09:00", 1, 3))

	res, err := f.cancel(reservations.CancelReservationCommand{ActorID: "ana", BookingID: created.IDs[0]})
	require.NoError(t, err)
	assert.Equal(t, reservations.KindSingle, res.Kind)
	assert.Equal(t, 1, res.Count)
	assert.Len(t, f.store.AllBookings(), 2)
}

func TestCancelPermissions(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, oneOff("ana", "2024-03-12", "10:00", 1))

	_, err := f.cancel(reservations.CancelReservationCommand{ActorID: "bea", BookingID: created.IDs[0]})
	assert.Equal(t, apperr.KindPermissionDenied, apperr.KindOf(err))

	_, err = f.cancel(reservations.CancelReservationCommand{ActorID: "ana", BookingID: "missing"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	res, err := f.cancel(reservations.CancelReservationCommand{ActorID: "root", BookingID: created.IDs[0]})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.Len(t, f.store.AllBackups(), 1, "non-admin owner gets a backup even when an admin cancels")
}

func TestBackupAndDeleteCommitTogether(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, oneOff("ana", "2024-03-12", "10:00", 1))

	f.store.SetCommitHook(func(int, int) error { return errors.New("store unavailable") })
	_, err := f.cancel(reservations.CancelReservationCommand{ActorID: "ana", BookingID: created.IDs[0]})
	require.Error(t, err)
	f.store.SetCommitHook(nil)

	_, stillThere := f.store.Booking(domainbooking.BookingID(created.IDs[0]))
	assert.True(t, stillThere)
	assert.Empty(t, f.store.AllBackups())
}

func TestAdminDelete(t *testing.T) {
	f := newFixture(t)
	prof := f.create(t, oneOff("ana", "2024-03-12", "10:00", 1))
	admin := f.create(t, oneOff("root", "2024-03-12", "10:00", 2))

	del := func(actor, id string) (*reservations.CancelResult, error) {
		return commands.Dispatch[reservations.AdminDeleteReservationCommand, *reservations.CancelResult](context.Background(), f.commands,
			reservations.AdminDeleteReservationCommand{ActorID: actor, BookingID: id})
	}

	_, err := del("ana", prof.IDs[0])
	assert.ErrorIs(t, err, apperr.ErrAdminRequired)

	res, err := del("root", prof.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	require.Len(t, f.store.AllBackups(), 1)
	assert.Equal(t, domainbackup.ReasonAdminDelete, f.store.AllBackups()[0].Reason)

	res, err = del("root", admin.IDs[0])
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.Empty(t, res.BackupIDs, "admin-owned bookings are deleted without backup")
	assert.Len(t, f.store.AllBackups(), 1)
}

func TestRestoreIsMonotonic(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, oneOff("ana", "2024-03-12", "10:00", 1))
	cancelled, err := f.cancel(reservations.CancelReservationCommand{ActorID: "ana", BookingID: created.IDs[0]})
	require.NoError(t, err)
	require.Len(t, cancelled.BackupIDs, 1)
	backupID := cancelled.BackupIDs[0]

	_, err = f.restore("ana", backupID)
	assert.ErrorIs(t, err, apperr.ErrAdminRequired)

	res, err := f.restore("root", backupID)
	require.NoError(t, err)
	assert.Equal(t, created.IDs[0], res.BookingID)
	restored, ok := f.store.Booking(domainbooking.BookingID(created.IDs[0]))
	require.True(t, ok)
	assert.True(t, restored.RestoredFromBackup)
	assert.EqualValues(t, 250, restored.Price)

	_, err = f.restore("root", backupID)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))
	assert.Len(t, f.store.AllBookings(), 1)

	list, err := queries.Ask[reservations.ListBackupsQuery, []dto.Backup](context.Background(), f.queries,
		reservations.ListBackupsQuery{ActorID: "root", IncludeRestored: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Restored)
}

func TestRestoreRefusesWhenBookingExists(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, oneOff("ana", "2024-03-12", "10:00", 1))
	b, _ := f.store.Booking(domainbooking.BookingID(created.IDs[0]))
	f.store.PutBackup(*domainbackup.New("bk-1", b, "ana", domainbackup.ReasonSingleCancel, now))

	_, err := f.restore("root", "bk-1")
	assert.ErrorIs(t, err, domainbackup.ErrBookingExists)
	assert.Equal(t, apperr.KindFailedPrecondition, apperr.KindOf(err))

	_, err = f.restore("root", "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestSetPaidAndMarkMonth(t *testing.T) {
	f := newFixture(t)
	seedWeek(f.store, "ana", "2024-03-11", 3, 250)
	seedWeek(f.store, "ana", "2024-04-01", 2, 250)

	res, err := commands.Dispatch[reservations.MarkMonthCommand, *reservations.MarkMonthResult](context.Background(), f.commands,
		reservations.MarkMonthCommand{ActorID: "root", OwnerID: "ana", Period: calendar.Period{Year: 2024, Month: time.March}, Paid: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Count)
	assert.Equal(t, 3, f.box.Sent())

	paid, err := commands.Dispatch[reservations.SetPaidCommand, *reservations.SetPaidResult](context.Background(), f.commands,
		reservations.SetPaidCommand{ActorID: "root", BookingID: "ana-2024-03-11-0", Paid: false})
	require.NoError(t, err)
	assert.True(t, paid.Changed)
	b, _ := f.store.Booking("ana-2024-03-11-0")
	assert.False(t, b.Paid)

	_, err = commands.Dispatch[reservations.SetPaidCommand, *reservations.SetPaidResult](context.Background(), f.commands,
		reservations.SetPaidCommand{ActorID: "bea", BookingID: "ana-2024-03-11-0", Paid: true})
	assert.ErrorIs(t, err, apperr.ErrAdminRequired)
}

func TestDayAgendaShowsOwnerInitials(t *testing.T) {
	f := newFixture(t)
	f.create(t, oneOff("ana", "2024-03-12", "10:00", 2))
	f.store.PutBooking(domainbooking.Booking{ID: "orphan", OwnerID: "gone", Date: calendar.MustParseDay("2024-03-12"), StartTime: "12:00", EndTime: "13:00", Room: 2})

	entries, err := queries.Ask[reservations.DayAgendaQuery, []dto.AgendaEntry](context.Background(), f.queries,
		reservations.DayAgendaQuery{Date: calendar.MustParseDay("2024-03-12"), Room: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AP", entries[0].Initials)
	assert.Equal(t, "Ana Paz", entries[0].OwnerName)
	assert.Equal(t, "Unknown", entries[1].OwnerName)
}

func TestDebtSummary(t *testing.T) {
	f := newFixture(t)
	// current week, current month
	f.store.PutBooking(domainbooking.Booking{ID: "w", OwnerID: "ana", Date: calendar.MustParseDay("2024-03-07"), StartTime: "09:00", EndTime: "10:00", Room: 1, Price: 250})
	// current month, later week
	f.store.PutBooking(domainbooking.Booking{ID: "m", OwnerID: "ana", Date: calendar.MustParseDay("2024-03-20"), StartTime: "09:00", EndTime: "10:00", Room: 1, Price: 230})
	// previous month, one paid
	f.store.PutBooking(domainbooking.Booking{ID: "p", OwnerID: "ana", Date: calendar.MustParseDay("2024-02-20"), StartTime: "09:00", EndTime: "10:00", Room: 1, Price: 250})
	f.store.PutBooking(domainbooking.Booking{ID: "pp", OwnerID: "ana", Date: calendar.MustParseDay("2024-02-21"), StartTime: "09:00", EndTime: "10:00", Room: 1, Price: 250, Paid: true})
	// somebody else
	f.store.PutBooking(domainbooking.Booking{ID: "x", OwnerID: "bea", Date: calendar.MustParseDay("2024-03-07"), StartTime: "09:00", EndTime: "10:00", Room: 2, Price: 250})

	debt, err := queries.Ask[reservations.DebtSummaryQuery, dto.Debt](context.Background(), f.queries, reservations.DebtSummaryQuery{ActorID: "ana"})
	require.NoError(t, err)
	assert.Equal(t, dto.Debt{CurrentWeek: 250, CurrentMonth: 480, PreviousMonth: 250, UnpaidCount: 1}, debt)

	mine, err := queries.Ask[reservations.OwnerBookingsQuery, []dto.Booking](context.Background(), f.queries, reservations.OwnerBookingsQuery{ActorID: "ana"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}
