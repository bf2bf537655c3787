package changes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/pricing"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/events"
)

type weekCall struct {
	owner string
	ref   string
}

type engineStub struct {
	weeks   []weekCall
	configs []domainpricing.Config
}

func (e *engineStub) RecalculateWeek(_ context.Context, ownerID string, ref calendar.Day) (pricing.Result, error) {
	e.weeks = append(e.weeks, weekCall{owner: ownerID, ref: ref.String()})
	return pricing.Result{}, nil
}

func (e *engineStub) RecalculateAllForConfigChange(_ context.Context, cfg domainpricing.Config) (pricing.Result, error) {
	e.configs = append(e.configs, cfg)
	return pricing.Result{}, nil
}

type inboxStub map[string]bool

func (s inboxStub) Seen(_ context.Context, id string) (bool, error) {
	return s[id], nil
}

func (s inboxStub) Remember(_ context.Context, id, _ string) error {
	s[id] = true
	return nil
}

func record(t *testing.T, id string, ev events.DomainEvent) appoutbox.EventRecord {
	t.Helper()
	rec, err := appoutbox.JSONEventEncoder{IDGenerator: func() string { return id }}.Encode(ev)
	require.NoError(t, err)
	return rec
}

func booking(owner, day string) domainbooking.Booking {
	return domainbooking.Booking{ID: "b1", OwnerID: owner, Date: calendar.MustParseDay(day), StartTime: "09:00", EndTime: "10:00", Room: 1}
}

func TestBookingMoveRecalculatesBothWeeks(t *testing.T) {
	engine := &engineStub{}
	d := &Dispatcher{Handlers: Handlers{Engine: engine}}

	ev := domainbooking.BookingUpdated{Before: booking("ana", "2024-03-06"), After: booking("ana", "2024-03-13"), At: time.Now()}
	require.NoError(t, d.Deliver(context.Background(), record(t, "e1", ev)))

	assert.Equal(t, []weekCall{{owner: "ana", ref: "2024-03-04"}, {owner: "ana", ref: "2024-03-11"}}, engine.weeks)
}

func TestSameWeekUpdateRecalculatesOnce(t *testing.T) {
	engine := &engineStub{}
	h := Handlers{Engine: engine}
	before, after := booking("ana", "2024-03-04"), booking("ana", "2024-03-10")
	require.NoError(t, h.BookingWritten(context.Background(), &before, &after))
	assert.Len(t, engine.weeks, 1)
}

func TestDeleteAndCreateRouteToOwnerWeek(t *testing.T) {
	engine := &engineStub{}
	d := &Dispatcher{Handlers: Handlers{Engine: engine}}

	require.NoError(t, d.Deliver(context.Background(), record(t, "e1", domainbooking.BookingDeleted{Booking: booking("bea", "2024-03-09")})))
	require.NoError(t, d.Deliver(context.Background(), record(t, "e2", domainbooking.BookingCreated{Booking: booking("ana", "2024-03-12")})))
	require.NoError(t, d.Deliver(context.Background(), record(t, "e3", domainbooking.BookingRestored{Booking: booking("carl", "2024-03-17"), BackupID: "bk"})))

	assert.Equal(t, []weekCall{
		{owner: "bea", ref: "2024-03-04"},
		{owner: "ana", ref: "2024-03-11"},
		{owner: "carl", ref: "2024-03-11"},
	}, engine.weeks)
}

func TestConfigChangeIgnoresMarkerOnlyWrites(t *testing.T) {
	engine := &engineStub{}
	d := &Dispatcher{Handlers: Handlers{Engine: engine}}
	prev := domainpricing.Config{BaseRate: 250, DiscountRate: 230}

	touched := prev
	touched.ChangedAt = time.Now()
	require.NoError(t, d.Deliver(context.Background(), record(t, "c1", domainpricing.ConfigChanged{Previous: prev, Current: touched})))
	assert.Empty(t, engine.configs)

	raised := domainpricing.Config{BaseRate: 300, DiscountRate: 230}
	require.NoError(t, d.Deliver(context.Background(), record(t, "c2", domainpricing.ConfigChanged{Previous: prev, Current: raised})))
	require.Len(t, engine.configs, 1)
	assert.EqualValues(t, 300, engine.configs[0].BaseRate)
}

func TestDispatcherSkipsRedeliveries(t *testing.T) {
	engine := &engineStub{}
	d := &Dispatcher{Handlers: Handlers{Engine: engine}, Inbox: inboxStub{}}
	rec := record(t, "dup", domainbooking.BookingCreated{Booking: booking("ana", "2024-03-12")})

	require.NoError(t, d.Deliver(context.Background(), rec))
	require.NoError(t, d.Deliver(context.Background(), rec))
	assert.Len(t, engine.weeks, 1)
}

func TestDispatcherRejectsGarbage(t *testing.T) {
	d := &Dispatcher{Handlers: Handlers{Engine: &engineStub{}}}
	err := d.Deliver(context.Background(), appoutbox.EventRecord{Name: domainbooking.EventCreated, Payload: []byte("{")})
	assert.Error(t, err)
	assert.NoError(t, d.Deliver(context.Background(), appoutbox.EventRecord{Name: "listing.created", Payload: []byte("{}")}))
}

func TestDispatcherForgetsFailedDeliveries(t *testing.T) {
	box := inboxStub{}
	d := &Dispatcher{Handlers: Handlers{Engine: &engineStub{}}, Inbox: box}
	rec := appoutbox.EventRecord{ID: "bad", Name: domainbooking.EventCreated, Payload: []byte("{")}

	require.Error(t, d.Deliver(context.Background(), rec))
	assert.False(t, box["bad"])
}
