package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRuleThreshold(t *testing.T) {
	rule := NewRule(Config{BaseRate: 250, DiscountRate: 230}, 10)

	assert.EqualValues(t, 250, rule.RateFor(0))
	assert.EqualValues(t, 250, rule.RateFor(9))
	assert.EqualValues(t, 230, rule.RateFor(10))
	assert.EqualValues(t, 230, rule.RateFor(25))
}

func TestRuleDefaultsThreshold(t *testing.T) {
	rule := NewRule(Defaults(), 0)
	assert.Equal(t, DefaultThreshold, rule.Threshold)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Defaults().Validate())
	assert.ErrorIs(t, Config{BaseRate: 0, DiscountRate: 10}.Validate(), ErrInvalidRate)
	assert.NoError(t, Config{BaseRate: 200, DiscountRate: 300}.Validate())
	assert.True(t, Config{BaseRate: 200, DiscountRate: 300}.DiscountAboveBase())
	assert.False(t, Defaults().DiscountAboveBase())
}

func TestNoticeMarker(t *testing.T) {
	cfg := Config{EffectiveDate: "2024-03-06"}
	assert.Equal(t, "2024-03-06", cfg.NoticeMarker())

	cfg.RatesChangedAt = time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)
	first := cfg.NoticeMarker()
	cfg.RatesChangedAt = cfg.RatesChangedAt.Add(2 * time.Hour)
	assert.NotEqual(t, first, cfg.NoticeMarker())
}

func TestSameRates(t *testing.T) {
	a := Config{BaseRate: 250, DiscountRate: 230, EffectiveDate: "2024-01-01"}
	b := Config{BaseRate: 250, DiscountRate: 230, EffectiveDate: "2024-06-01"}
	assert.True(t, a.SameRates(b))
	b.BaseRate = 300
	assert.False(t, a.SameRates(b))
}
