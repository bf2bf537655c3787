package rates

import (
	"context"
	"errors"
	"log/slog"

	"github.com/DanielNoblero/consultorios-app/internal/app/apperr"
	"github.com/DanielNoblero/consultorios-app/internal/app/dto"
	"github.com/DanielNoblero/consultorios-app/internal/app/handlers/support"
	"github.com/DanielNoblero/consultorios-app/internal/app/outbox"
	"github.com/DanielNoblero/consultorios-app/internal/app/uow"
	"github.com/DanielNoblero/consultorios-app/internal/domain/calendar"
	domainpricing "github.com/DanielNoblero/consultorios-app/internal/domain/pricing"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/events"
	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
	domainuser "github.com/DanielNoblero/consultorios-app/internal/domain/user"
)

const (
	updateConfigKey = "pricing.update_config"
	getPricingKey   = "pricing.get"
	priceNoticeKey  = "pricing.notice"
	acknowledgeKey  = "pricing.acknowledge"
)

// UpdatePricingConfigCommand replaces the price table. A zero EffectiveDate
// means today.
type UpdatePricingConfigCommand struct {
	ActorID       string
	BaseRate      money.Amount
	DiscountRate  money.Amount
	EffectiveDate calendar.Day
}

func (c UpdatePricingConfigCommand) Key() string { return updateConfigKey }

func (c UpdatePricingConfigCommand) AdminActor() string { return c.ActorID }

type UpdatePricingConfigResult struct {
	Config  dto.PricingConfig `json:"config"`
	Changed bool              `json:"changed"`
}

type UpdatePricingConfigHandler struct {
	UoWFactory uow.UoWFactory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Clock      calendar.Clock
	Logger     *slog.Logger
}

// Handle always stores the table and moves ChangedAt. The change event,
// which drives repricing, is only recorded when a rate actually moved.
func (h *UpdatePricingConfigHandler) Handle(ctx context.Context, cmd UpdatePricingConfigCommand) (*UpdatePricingConfigResult, error) {
	next := domainpricing.Config{BaseRate: cmd.BaseRate, DiscountRate: cmd.DiscountRate}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	if next.DiscountAboveBase() {
		h.logger().WarnContext(ctx, "discount rate above base rate", "base_rate", next.BaseRate.Int64(), "discount_rate", next.DiscountRate.Int64(), "actor", cmd.ActorID)
	}
	var res *UpdatePricingConfigResult
	err := support.WithinUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		prev, err := unit.PricingConfig().Get(ctx)
		if err != nil {
			return err
		}
		now := clockOf(h.Clock).Now()
		changed := !prev.SameRates(next)
		next.ChangedAt = now.UTC()
		next.RatesChangedAt = prev.RatesChangedAt
		if changed {
			next.RatesChangedAt = next.ChangedAt
		}
		switch {
		case !cmd.EffectiveDate.IsZero():
			next.EffectiveDate = cmd.EffectiveDate.String()
		case changed:
			next.EffectiveDate = calendar.DayOf(now).String()
		default:
			next.EffectiveDate = prev.EffectiveDate
		}
		if err := unit.PricingConfig().Save(ctx, next); err != nil {
			return err
		}
		if changed {
			ev := domainpricing.ConfigChanged{Previous: prev, Current: next, At: next.ChangedAt}
			if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, []events.DomainEvent{ev}); err != nil {
				return err
			}
		}
		res = &UpdatePricingConfigResult{Config: mapConfig(next), Changed: changed}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

type GetPricingQuery struct{}

func (GetPricingQuery) Key() string { return getPricingKey }

type GetPricingHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetPricingHandler) Handle(ctx context.Context, _ GetPricingQuery) (dto.PricingConfig, error) {
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.PricingConfig{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	cfg, err := unit.PricingConfig().Get(execCtx)
	if err != nil {
		return dto.PricingConfig{}, err
	}
	return mapConfig(cfg), nil
}

// PriceNoticeQuery asks whether the actor still has to acknowledge the
// current price table.
type PriceNoticeQuery struct {
	ActorID string
}

func (q PriceNoticeQuery) Key() string { return priceNoticeKey }

type PriceNotice struct {
	Show   bool              `json:"show"`
	Config dto.PricingConfig `json:"config"`
}

type PriceNoticeHandler struct {
	UoWFactory uow.UoWFactory
}

// Handle shows the notice to professionals who have not acknowledged the
// latest rate change. Administrators never see it.
func (h *PriceNoticeHandler) Handle(ctx context.Context, q PriceNoticeQuery) (PriceNotice, error) {
	if q.ActorID == "" {
		return PriceNotice{}, apperr.ErrUnauthenticated
	}
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return PriceNotice{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}
	profile, err := unit.Profiles().ByID(execCtx, domainuser.ID(q.ActorID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return PriceNotice{}, nil
		}
		return PriceNotice{}, err
	}
	cfg, err := unit.PricingConfig().Get(execCtx)
	if err != nil {
		return PriceNotice{}, err
	}
	marker := cfg.NoticeMarker()
	show := !profile.IsAdmin() && marker != "" && profile.PriceSeen != marker
	return PriceNotice{Show: show, Config: mapConfig(cfg)}, nil
}

// AcknowledgePriceCommand records that the actor saw the current table.
type AcknowledgePriceCommand struct {
	ActorID string
}

func (c AcknowledgePriceCommand) Key() string { return acknowledgeKey }

type AcknowledgePriceResult struct {
	OK        bool   `json:"ok"`
	PriceSeen string `json:"price_seen"`
}

type AcknowledgePriceHandler struct {
	UoWFactory uow.UoWFactory
	Clock      calendar.Clock
}

func (h *AcknowledgePriceHandler) Handle(ctx context.Context, cmd AcknowledgePriceCommand) (*AcknowledgePriceResult, error) {
	if cmd.ActorID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	var res *AcknowledgePriceResult
	err := support.WithinUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		profile, err := unit.Profiles().ByID(ctx, domainuser.ID(cmd.ActorID))
		if err != nil {
			return err
		}
		cfg, err := unit.PricingConfig().Get(ctx)
		if err != nil {
			return err
		}
		marker := cfg.NoticeMarker()
		res = &AcknowledgePriceResult{OK: true, PriceSeen: marker}
		if profile.PriceSeen == marker {
			return nil
		}
		profile.PriceSeen = marker
		profile.UpdatedAt = clockOf(h.Clock).Now().UTC()
		return unit.Profiles().Save(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func mapConfig(cfg domainpricing.Config) dto.PricingConfig {
	return dto.PricingConfig{
		BaseRate:      cfg.BaseRate.Int64(),
		DiscountRate:  cfg.DiscountRate.Int64(),
		EffectiveDate: cfg.EffectiveDate,
		ChangedAt:     cfg.ChangedAt,
	}
}

func (h *UpdatePricingConfigHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func clockOf(c calendar.Clock) calendar.Clock {
	if c != nil {
		return c
	}
	return calendar.SystemClock{}
}
