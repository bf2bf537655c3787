package closing_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielNoblero/consultorios-app/internal/app/closing"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
	"github.com/DanielNoblero/consultorios-app/internal/infra/storage/memory"
)

var (
	now      = time.Date(2024, 4, 1, 6, 0, 0, 0, time.UTC)
	february = calendar.Period{Year: 2024, Month: time.February}
	march    = calendar.Period{Year: 2024, Month: time.March}
)

type stubRenderer struct {
	reports []closing.Report
	err     error
}

func (r *stubRenderer) Render(ctx context.Context, report closing.Report) (closing.Artifact, error) {
	if r.err != nil {
		return closing.Artifact{}, r.err
	}
	r.reports = append(r.reports, report)
	return closing.Artifact{Body: []byte(fmt.Sprintf("total=%d", report.GrandTotal))}, nil
}

type stubArchiver struct {
	keys []string
	err  error
}

func (a *stubArchiver) Archive(ctx context.Context, period calendar.Period, artifact closing.Artifact) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := "reports/" + artifact.Filename
	a.keys = append(a.keys, key)
	return key, nil
}

func booking(id, owner, day string, price int64, paid bool) domainbooking.Booking {
	return domainbooking.Booking{
		ID:        domainbooking.BookingID(id),
		OwnerID:   owner,
		Date:      calendar.MustParseDay(day),
		StartTime: "10:00",
		EndTime:   "11:00",
		Room:      1,
		Price:     money.Amount(price),
		Paid:      paid,
	}
}

func newService(store *memory.Store, renderer closing.Renderer) *closing.Service {
	return &closing.Service{
		UoWFactory: store.Factory(),
		Renderer:   renderer,
		Clock:      calendar.FixedClock(now),
		Location:   time.UTC,
	}
}

func remainingIDs(store *memory.Store) []domainbooking.BookingID {
	var ids []domainbooking.BookingID
	for _, b := range store.AllBookings() {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestCloseKeepsOnlyOutstandingDebt(t *testing.T) {
	store := memory.NewStore()
	store.PutProfile(domainuser.Profile{ID: "ana", FirstName: "Ana", LastName: "Paz"})
	store.PutProfile(domainuser.Profile{ID: "root", Role: domainuser.RoleAdmin, Admin: true})
	store.PutBooking(booking("paid", "ana", "2024-03-10", 100, true))
	store.PutBooking(booking("unpaid", "ana", "2024-03-12", 100, false))
	store.PutBooking(booking("free", "root", "2024-03-15", 0, true))
	store.PutBooking(booking("april", "ana", "2024-04-02", 250, false))

	renderer := &stubRenderer{}
	svc := newService(store, renderer)

	res, err := svc.Close(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, "2024-03", res.Period)
	assert.EqualValues(t, 100, res.GrandTotal)
	assert.Equal(t, 1, res.Sections)
	assert.Equal(t, 2, res.Purged)

	require.Len(t, renderer.reports, 1)
	report := renderer.reports[0]
	require.Len(t, report.Sections, 1)
	assert.Equal(t, "Ana Paz", report.Sections[0].OwnerName)
	assert.EqualValues(t, 100, report.Sections[0].Subtotal)

	assert.ElementsMatch(t, []domainbooking.BookingID{"unpaid", "april"}, remainingIDs(store))
}

func TestGenerateNamesTheArtifact(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, &stubRenderer{})

	gen, err := svc.Generate(context.Background(), february)
	require.NoError(t, err)
	assert.True(t, gen.Report.Empty())
	assert.Equal(t, "reporte-2024-02.xlsx", gen.Artifact.Filename)
	assert.Equal(t, closing.SpreadsheetContentType, gen.Artifact.ContentType)
}

func TestCloseSkipsPurgeWhenReportFails(t *testing.T) {
	store := memory.NewStore()
	store.PutBooking(booking("paid", "ana", "2024-03-10", 100, true))

	svc := newService(store, &stubRenderer{err: errors.New("disk full")})
	_, err := svc.Close(context.Background(), march)
	require.Error(t, err)
	assert.Len(t, store.AllBookings(), 1)
}

func TestCloseSkipsPurgeWhenArchiveFails(t *testing.T) {
	store := memory.NewStore()
	store.PutBooking(booking("paid", "ana", "2024-03-10", 100, true))

	svc := newService(store, &stubRenderer{})
	svc.Archiver = &stubArchiver{err: errors.New("bucket gone")}
	_, err := svc.Close(context.Background(), march)
	require.Error(t, err)
	assert.Len(t, store.AllBookings(), 1)
}

func TestCloseArchivesBeforePurging(t *testing.T) {
	store := memory.NewStore()
	store.PutBooking(booking("paid", "ana", "2024-03-10", 100, true))
	archiver := &stubArchiver{}

	svc := newService(store, &stubRenderer{})
	svc.Archiver = archiver
	res, err := svc.Close(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, "reports/reporte-2024-03.xlsx", res.ArchiveKey)
	assert.Equal(t, []string{"reports/reporte-2024-03.xlsx"}, archiver.keys)
	assert.Empty(t, store.AllBookings())
}

func TestCloseRefusesOpenPeriod(t *testing.T) {
	store := memory.NewStore()
	store.PutBooking(booking("paid", "ana", "2024-04-01", 100, true))
	renderer := &stubRenderer{}
	svc := newService(store, renderer)

	april := calendar.Period{Year: 2024, Month: time.April}
	_, err := svc.Close(context.Background(), april)
	require.ErrorIs(t, err, closing.ErrPeriodOpen)
	assert.Empty(t, renderer.reports)
	assert.Len(t, store.AllBookings(), 1)
}

func TestSettleRefusesOpenPeriod(t *testing.T) {
	store := memory.NewStore()
	store.PutBooking(booking("paid", "ana", "2024-04-01", 100, true))
	svc := newService(store, &stubRenderer{})
	archiver := &stubArchiver{}
	svc.Archiver = archiver

	april := calendar.Period{Year: 2024, Month: time.April}
	gen, err := svc.Generate(context.Background(), april)
	require.NoError(t, err)

	_, err = svc.Settle(context.Background(), april, gen)
	require.ErrorIs(t, err, closing.ErrPeriodOpen)
	_, err = svc.Purge(context.Background(), april, gen.Snapshot)
	require.ErrorIs(t, err, closing.ErrPeriodOpen)
	assert.Empty(t, archiver.keys)
	assert.Len(t, store.AllBookings(), 1)
}

func TestCheckClosedUsesServiceLocation(t *testing.T) {
	montevideo, err := time.LoadLocation("America/Montevideo")
	require.NoError(t, err)
	svc := newService(memory.NewStore(), &stubRenderer{})
	svc.Location = montevideo

	// 2024-04-01 06:00 UTC is still March 31 in Montevideo.
	assert.ErrorIs(t, svc.CheckClosed(march), closing.ErrPeriodOpen)
	assert.NoError(t, svc.CheckClosed(february))
}

func TestPurgeRunsInChunks(t *testing.T) {
	store := memory.NewStore()
	for i := 1; i <= 7; i++ {
		store.PutBooking(booking(fmt.Sprintf("b%d", i), "ana", fmt.Sprintf("2024-03-%02d", i), 0, false))
	}
	svc := newService(store, &stubRenderer{})
	svc.BatchSize = 3

	before := store.Commits()
	res, err := svc.Close(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Purged)
	assert.Equal(t, 3, store.Commits()-before)
}

func TestPurgeStopsAtFailedChunk(t *testing.T) {
	store := memory.NewStore()
	for i := 1; i <= 4; i++ {
		store.PutBooking(booking(fmt.Sprintf("b%d", i), "ana", fmt.Sprintf("2024-03-%02d", i), 0, false))
	}
	svc := newService(store, &stubRenderer{})
	svc.BatchSize = 2
	store.SetCommitHook(func(seq, writes int) error {
		if seq == 2 {
			return errors.New("quota exceeded")
		}
		return nil
	})

	res, err := svc.Close(context.Background(), march)
	require.Error(t, err)
	assert.Equal(t, 2, res.Purged)
	assert.Len(t, store.AllBookings(), 2)
}

func TestBuildReport(t *testing.T) {
	snapshot := []*domainbooking.Booking{
		ptr(booking("z1", "zoe", "2024-03-20", 250, true)),
		ptr(booking("a2", "ana", "2024-03-11", 230, true)),
		ptr(booking("a1", "ana", "2024-03-04", 230, true)),
		ptr(booking("a3", "ana", "2024-03-05", 230, false)),
		ptr(booking("n1", "nameless", "2024-03-06", 250, true)),
		ptr(booking("r1", "root", "2024-03-06", 0, true)),
	}
	names := map[string]string{"ana": "Ana Paz", "zoe": "Zoe Ruiz"}

	report := closing.BuildReport(march, snapshot, names, now)
	require.Len(t, report.Sections, 3)
	assert.Equal(t, []string{"Ana Paz", closing.UnnamedOwner, "Zoe Ruiz"},
		[]string{report.Sections[0].OwnerName, report.Sections[1].OwnerName, report.Sections[2].OwnerName})

	ana := report.Sections[0]
	require.Len(t, ana.Lines, 2)
	assert.Equal(t, "2024-03-04", ana.Lines[0].Date.String())
	assert.EqualValues(t, 460, ana.Subtotal)
	assert.EqualValues(t, 960, report.GrandTotal)
	assert.Equal(t, now, report.GeneratedAt)
}

func TestPurgeCandidates(t *testing.T) {
	snapshot := []*domainbooking.Booking{
		ptr(booking("free", "ana", "2024-03-31", 0, false)),
		ptr(booking("paid", "ana", "2024-03-01", 250, true)),
		ptr(booking("debt", "ana", "2024-03-02", 250, false)),
		ptr(booking("today", "ana", "2024-04-01", 0, true)),
	}
	cut := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	got := closing.PurgeCandidates(snapshot, cut, time.UTC)
	var ids []domainbooking.BookingID
	for _, b := range got {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []domainbooking.BookingID{"free", "paid"}, ids)
}

func ptr(b domainbooking.Booking) *domainbooking.Booking { return &b }
