package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/DanielNoblero/consultorios-app/internal/domain/shared/money"
)

var ErrInvalidRate = errors.New("pricing: rates must be positive")

const (
	DefaultBaseRate     money.Amount = 250
	DefaultDiscountRate money.Amount = 230
	// DefaultThreshold is the unpaid weekly session count that unlocks the discount rate.
	DefaultThreshold = 10
)

// Config is the singleton price table. ChangedAt moves on every write,
// RatesChangedAt only when a rate moved.
type Config struct {
	BaseRate       money.Amount `json:"base_rate"`
	DiscountRate   money.Amount `json:"discount_rate"`
	EffectiveDate  string       `json:"effective_date,omitempty"`
	ChangedAt      time.Time    `json:"changed_at,omitempty"`
	RatesChangedAt time.Time    `json:"rates_changed_at,omitempty"`
}

// Defaults returns the table used when none has been stored yet.
func Defaults() Config {
	return Config{BaseRate: DefaultBaseRate, DiscountRate: DefaultDiscountRate}
}

func (c Config) Validate() error {
	if c.BaseRate <= 0 || c.DiscountRate <= 0 {
		return ErrInvalidRate
	}
	return nil
}

// DiscountAboveBase flags a table where the discount costs more than the
// base rate. Allowed, but worth a warning.
func (c Config) DiscountAboveBase() bool {
	return c.DiscountRate > c.BaseRate
}

// NoticeMarker identifies the rate change a professional acknowledges via
// Profile.PriceSeen. Tables stored before RatesChangedAt existed fall back
// to EffectiveDate.
func (c Config) NoticeMarker() string {
	if !c.RatesChangedAt.IsZero() {
		return c.RatesChangedAt.UTC().Format(time.RFC3339Nano)
	}
	return c.EffectiveDate
}

// SameRates reports whether both configs price sessions identically.
func (c Config) SameRates(other Config) bool {
	return c.BaseRate == other.BaseRate && c.DiscountRate == other.DiscountRate
}

// Rule maps a weekly unpaid session count to a price.
type Rule struct {
	Config    Config
	Threshold int
}

func NewRule(cfg Config, threshold int) Rule {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Rule{Config: cfg, Threshold: threshold}
}

// RateFor returns the discount rate once unpaid reaches the threshold.
func (r Rule) RateFor(unpaid int) money.Amount {
	if unpaid >= r.Threshold {
		return r.Config.DiscountRate
	}
	return r.Config.BaseRate
}

// ConfigRepository stores the singleton config. Get returns Defaults when
// nothing has been saved.
type ConfigRepository interface {
	Get(ctx context.Context) (Config, error)
	Save(ctx context.Context, cfg Config) error
}

const EventConfigChanged = "pricing.config_changed"

// ConfigAggregateID keys the singleton on the event stream.
const ConfigAggregateID = "pricing-config"

type ConfigChanged struct {
	Previous Config    `json:"previous"`
	Current  Config    `json:"current"`
	At       time.Time `json:"at"`
}

func (e ConfigChanged) EventName() string     { return EventConfigChanged }
func (e ConfigChanged) AggregateID() string   { return ConfigAggregateID }
func (e ConfigChanged) OccurredAt() time.Time { return e.At }
