package changes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	appoutbox "github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/pricing"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
)

var ErrEngineMissing = errors.New("changes: recalculation engine missing")

// Recalculator is the part of the pricing engine the handlers drive.
type Recalculator interface {
	RecalculateWeek(ctx context.Context, ownerID string, ref calendar.Day) (pricing.Result, error)
	RecalculateAllForConfigChange(ctx context.Context, cfg domainpricing.Config) (pricing.Result, error)
}

// Handlers hold the reactions to store changes. They know nothing about
// how the change was observed (outbox relay, broker, change stream).
type Handlers struct {
	Engine Recalculator
	Logger *slog.Logger
}

// BookingWritten recalculates every (owner, week) the write touched. Before
// is nil for creations, after is nil for deletions.
func (h Handlers) BookingWritten(ctx context.Context, before, after *domainbooking.Booking) error {
	if h.Engine == nil {
		return ErrEngineMissing
	}
	var errs []error
	for _, c := range touchedCohorts(before, after) {
		if _, err := h.Engine.RecalculateWeek(ctx, c.owner, c.monday); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ConfigChanged fans out to every open week. Writes that leave both rates
// as they were only moved the change marker and are ignored.
func (h Handlers) ConfigChanged(ctx context.Context, previous, current domainpricing.Config) error {
	if h.Engine == nil {
		return ErrEngineMissing
	}
	if previous.SameRates(current) {
		h.logger().DebugContext(ctx, "pricing config touched without rate change", "changed_at", current.ChangedAt)
		return nil
	}
	_, err := h.Engine.RecalculateAllForConfigChange(ctx, current)
	return err
}

type cohort struct {
	owner  string
	monday calendar.Day
}

func touchedCohorts(before, after *domainbooking.Booking) []cohort {
	var out []cohort
	add := func(b *domainbooking.Booking) {
		if b == nil || b.OwnerID == "" || b.Date.IsZero() {
			return
		}
		c := cohort{owner: b.OwnerID, monday: calendar.MondayOf(b.Date)}
		for _, existing := range out {
			if existing == c {
				return
			}
		}
		out = append(out, c)
	}
	add(before)
	add(after)
	return out
}

func (h Handlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Deduper remembers delivered event ids. An id is remembered only after its
// handler succeeded, so a failed delivery is retried on redelivery.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID, name string) error
}

// Dispatcher decodes outbox records and routes them to Handlers. Unknown
// event names are acknowledged and dropped.
type Dispatcher struct {
	Handlers Handlers
	Inbox    Deduper
	Logger   *slog.Logger
}

func (d *Dispatcher) Deliver(ctx context.Context, rec appoutbox.EventRecord) error {
	if d.Inbox != nil && rec.ID != "" {
		seen, err := d.Inbox.Seen(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("changes: inbox: %w", err)
		}
		if seen {
			return nil
		}
	}
	if err := d.route(ctx, rec); err != nil {
		d.logger().ErrorContext(ctx, "change handler failed", "event", rec.Name, "event_id", rec.ID, "aggregate", rec.Aggregate, "error", err)
		return err
	}
	if d.Inbox != nil && rec.ID != "" {
		if err := d.Inbox.Remember(ctx, rec.ID, rec.Name); err != nil {
			return fmt.Errorf("changes: inbox: %w", err)
		}
	}
	return nil
}

// Relay adapts Deliver to fire-and-forget callers such as the in-memory
// outbox. Failures are only logged; recalculation is safe to rerun.
func (d *Dispatcher) Relay(ctx context.Context, rec appoutbox.EventRecord) {
	_ = d.Deliver(ctx, rec)
}

func (d *Dispatcher) route(ctx context.Context, rec appoutbox.EventRecord) error {
	switch rec.Name {
	case domainbooking.EventCreated:
		var ev domainbooking.BookingCreated
		if err := decode(rec, &ev); err != nil {
			return err
		}
		return d.Handlers.BookingWritten(ctx, nil, &ev.Booking)
	case domainbooking.EventUpdated:
		var ev domainbooking.BookingUpdated
		if err := decode(rec, &ev); err != nil {
			return err
		}
		return d.Handlers.BookingWritten(ctx, &ev.Before, &ev.After)
	case domainbooking.EventDeleted:
		var ev domainbooking.BookingDeleted
		if err := decode(rec, &ev); err != nil {
			return err
		}
		return d.Handlers.BookingWritten(ctx, &ev.Booking, nil)
	case domainbooking.EventRestored:
		var ev domainbooking.BookingRestored
		if err := decode(rec, &ev); err != nil {
			return err
		}
		return d.Handlers.BookingWritten(ctx, nil, &ev.Booking)
	case domainpricing.EventConfigChanged:
		var ev domainpricing.ConfigChanged
		if err := decode(rec, &ev); err != nil {
			return err
		}
		return d.Handlers.ConfigChanged(ctx, ev.Previous, ev.Current)
	default:
		d.logger().DebugContext(ctx, "ignoring event", "event", rec.Name)
		return nil
	}
}

func decode(rec appoutbox.EventRecord, out any) error {
	if err := json.Unmarshal(rec.Payload, out); err != nil {
		return fmt.Errorf("changes: decode %s: %w", rec.Name, err)
	}
	return nil
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
