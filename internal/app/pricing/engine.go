package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/DanielNoblero/consultorios-app/internal/app/batch"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	domainbooking "github.com/DanielNoblero/consultorios-app/internal/domain/booking"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

var tracer = otel.Tracer("consultorios/pricing")

var (
	ErrOwnerRequired     = errors.New("pricing: owner id required")
	ErrReferenceRequired = errors.New("pricing: reference date required")
)

// OpRecalculate labels recalculation chunks for the batch recorder.
const OpRecalculate = "recalculate"

// Engine keeps stored prices in line with the price table and the weekly
// volume rule. Every call re-reads what it needs; nothing is cached.
type Engine struct {
	UoWFactory uow.UoWFactory
	Threshold  int
	BatchSize  int
	Clock      calendar.Clock
	Recorder   batch.Recorder
	Logger     *slog.Logger
}

// Result summarizes one recalculation call.
type Result struct {
	Cohorts int `json:"cohorts"`
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
}

func (r *Result) add(other Result) {
	r.Cohorts += other.Cohorts
	r.Scanned += other.Scanned
	r.Updated += other.Updated
}

// Change is one price write. Settle also marks the booking paid.
type Change struct {
	ID     domainbooking.BookingID
	Date   calendar.Day
	Price  money.Amount
	Settle bool
}

// PlanCohort returns the writes that bring one owner's week in line.
// Admin cohorts are forced to zero and settled. Otherwise every unpaid
// booking gets the rate for the unpaid count; paid bookings are left alone.
func PlanCohort(cohort []*domainbooking.Booking, rule domainpricing.Rule, admin bool) []Change {
	var out []Change
	if admin {
		for _, b := range cohort {
			if b.Price != money.Zero || !b.Paid {
				out = append(out, Change{ID: b.ID, Date: b.Date, Price: money.Zero, Settle: true})
			}
		}
		return out
	}
	unpaid := 0
	for _, b := range cohort {
		if !b.Paid {
			unpaid++
		}
	}
	target := rule.RateFor(unpaid)
	for _, b := range cohort {
		if b.Paid || b.Price == target {
			continue
		}
		out = append(out, Change{ID: b.ID, Date: b.Date, Price: target})
	}
	return out
}

// RecalculateWeek reprices ownerID's Monday-to-Sunday week containing ref.
func (e *Engine) RecalculateWeek(ctx context.Context, ownerID string, ref calendar.Day) (Result, error) {
	return e.recalculate(ctx, ownerID, calendar.WeekOf(ref), calendar.Day{})
}

// RecalculateAllForConfigChange reprices every week that still holds unpaid
// bookings dated today or later. Bookings dated before today are never
// written, even when they share a week with future ones. The price table is
// read from the store, so replays of an older change converge on the latest
// one. A failing cohort does not stop the others; all failures are joined.
func (e *Engine) RecalculateAllForConfigChange(ctx context.Context, cfg domainpricing.Config) (Result, error) {
	ctx, span := tracer.Start(ctx, "pricing.recalculate_all")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("pricing.base_rate", cfg.BaseRate.Int64()),
		attribute.Int64("pricing.discount_rate", cfg.DiscountRate.Int64()),
	)

	today := calendar.Today(e.clock())
	pending, err := e.unpaidFrom(ctx, today)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load unpaid bookings")
		return Result{}, err
	}

	var (
		total Result
		errs  []error
	)
	for _, key := range cohortsOf(pending) {
		res, err := e.recalculate(ctx, key.owner, key.week, today)
		total.add(res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	span.SetAttributes(attribute.Int("pricing.cohorts", total.Cohorts), attribute.Int("pricing.updated", total.Updated))
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cohort failures")
		return total, err
	}
	e.logger().InfoContext(ctx, "prices recalculated after config change",
		"cohorts", total.Cohorts, "scanned", total.Scanned, "updated", total.Updated)
	return total, nil
}

func (e *Engine) recalculate(ctx context.Context, ownerID string, week calendar.Week, notBefore calendar.Day) (Result, error) {
	if ownerID == "" {
		return Result{}, ErrOwnerRequired
	}
	if week.Monday.IsZero() {
		return Result{}, ErrReferenceRequired
	}
	ctx, span := tracer.Start(ctx, "pricing.recalculate_week")
	defer span.End()
	span.SetAttributes(attribute.String("owner_id", ownerID), attribute.String("week", week.String()))

	cohort, rule, admin, err := e.loadCohort(ctx, ownerID, week)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load cohort")
		return Result{}, err
	}
	if len(cohort) == 0 {
		return Result{}, nil
	}

	changes := PlanCohort(cohort, rule, admin)
	if !notBefore.IsZero() {
		changes = changesFrom(changes, notBefore)
	}
	res := Result{Cohorts: 1, Scanned: len(cohort)}
	if len(changes) == 0 {
		return res, nil
	}

	done, err := e.Apply(ctx, OpRecalculate, changes)
	res.Updated = done
	span.SetAttributes(attribute.Int("pricing.updated", done))
	if err != nil {
		var chunkErr *batch.ChunkError
		chunk := -1
		if errors.As(err, &chunkErr) {
			chunk = chunkErr.Index
		}
		e.logger().ErrorContext(ctx, "week recalculation failed",
			"owner_id", ownerID, "week", week.String(), "chunk", chunk, "committed", done, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit chunk")
		return res, fmt.Errorf("pricing: owner %s week %s: %w", ownerID, week, err)
	}
	e.logger().DebugContext(ctx, "week recalculated",
		"owner_id", ownerID, "week", week.String(), "admin", admin, "updated", done)
	return res, nil
}

// Apply commits changes in independent chunks and returns how many landed.
func (e *Engine) Apply(ctx context.Context, op string, changes []Change) (int, error) {
	commit := func(ctx context.Context, chunk []Change) error {
		return support.InNewUnit(ctx, e.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
			repo := unit.Bookings()
			for _, c := range chunk {
				if err := repo.Reprice(ctx, c.ID, c.Price, c.Settle); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return batch.Run(ctx, changes, e.BatchSize, 1, batch.Observed(op, 1, e.Recorder, commit))
}

// Rule returns the volume rule for cfg with the engine's threshold.
func (e *Engine) Rule(cfg domainpricing.Config) domainpricing.Rule {
	return domainpricing.NewRule(cfg, e.Threshold)
}

func (e *Engine) loadCohort(ctx context.Context, ownerID string, week calendar.Week) ([]*domainbooking.Booking, domainpricing.Rule, bool, error) {
	unit, execCtx, cleanup, err := e.readUnit(ctx)
	if err != nil {
		return nil, domainpricing.Rule{}, false, err
	}
	defer cleanup()

	cfg, err := unit.PricingConfig().Get(execCtx)
	if err != nil {
		return nil, domainpricing.Rule{}, false, fmt.Errorf("pricing: load config: %w", err)
	}
	cohort, err := unit.Bookings().ListByOwner(execCtx, ownerID, week.Monday, week.Sunday())
	if err != nil {
		return nil, domainpricing.Rule{}, false, fmt.Errorf("pricing: load week: %w", err)
	}
	if len(cohort) == 0 {
		return nil, domainpricing.Rule{}, false, nil
	}
	admin, err := OwnerIsAdmin(execCtx, unit, ownerID)
	if err != nil {
		return nil, domainpricing.Rule{}, false, err
	}
	return cohort, e.Rule(cfg), admin, nil
}

func (e *Engine) unpaidFrom(ctx context.Context, from calendar.Day) ([]*domainbooking.Booking, error) {
	unit, execCtx, cleanup, err := e.readUnit(ctx)
	if err != nil {
		return nil, err
	}
	defer cleanup()
	return unit.Bookings().ListUnpaidFrom(execCtx, from)
}

// readUnit always opens a fresh read-only unit so reads never see writes
// staged by an enclosing command.
func (e *Engine) readUnit(ctx context.Context) (uow.UnitOfWork, context.Context, func(), error) {
	if e.UoWFactory == nil {
		return nil, ctx, nil, uow.ErrUnitOfWorkMissing
	}
	unit, err := e.UoWFactory.Begin(ctx, uow.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, ctx, nil, err
	}
	execCtx := uow.ExecContext(ctx, unit)
	return unit, execCtx, func() { _ = unit.Rollback(execCtx) }, nil
}

func (e *Engine) clock() calendar.Clock {
	if e.Clock != nil {
		return e.Clock
	}
	return calendar.SystemClock{}
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// OwnerIsAdmin reads the stored role. Owners without a profile are treated
// as professionals.
func OwnerIsAdmin(ctx context.Context, unit uow.UnitOfWork, ownerID string) (bool, error) {
	profile, err := unit.Profiles().ByID(ctx, domainuser.ID(ownerID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("pricing: load owner profile: %w", err)
	}
	return profile.IsAdmin(), nil
}

type cohortKey struct {
	owner string
	week  calendar.Week
}

func cohortsOf(bookings []*domainbooking.Booking) []cohortKey {
	seen := make(map[cohortKey]struct{})
	var out []cohortKey
	for _, b := range bookings {
		key := cohortKey{owner: b.OwnerID, week: b.Week()}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].owner != out[j].owner {
			return out[i].owner < out[j].owner
		}
		return out[i].week.Monday.Before(out[j].week.Monday)
	})
	return out
}

func changesFrom(changes []Change, from calendar.Day) []Change {
	out := changes[:0]
	for _, c := range changes {
		if !c.Date.Before(from) {
			out = append(out, c)
		}
	}
	return out
}
