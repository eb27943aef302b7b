package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rindex/perpkernel/internal/model"
)

func TestTierOf(t *testing.T) {
	assert.Equal(t, TierConservative, TierOf(1))
	assert.Equal(t, TierConservative, TierOf(10))
	assert.Equal(t, TierModerate, TierOf(11))
	assert.Equal(t, TierModerate, TierOf(50))
	assert.Equal(t, TierAggressive, TierOf(51))
	assert.Equal(t, TierAggressive, TierOf(100))
	assert.Equal(t, TierDegen, TierOf(101))
}

func TestLiquidationPrice_AggressiveTierScenario(t *testing.T) {
	// spec.md §8 scenario 5: entry 100, leverage 100, aggressive tier
	// (maintMargin=0.02); distance = 100/100*0.98 = 0.98; liq = 99.02.
	s := DefaultMarginSchedule()
	liq := s.LiquidationPrice(decimal.NewFromInt(100), 100, true)
	assert.True(t, liq.Equal(decimal.NewFromFloat(99.02)), "got %s", liq)
}

func TestLiquidationPrice_LongBelowEntry_ShortAboveEntry(t *testing.T) {
	s := DefaultMarginSchedule()
	longLiq := s.LiquidationPrice(decimal.NewFromInt(100), 10, true)
	shortLiq := s.LiquidationPrice(decimal.NewFromInt(100), 10, false)
	assert.True(t, longLiq.LessThan(decimal.NewFromInt(100)))
	assert.True(t, shortLiq.GreaterThan(decimal.NewFromInt(100)))
}

func TestTriggered(t *testing.T) {
	s := DefaultMarginSchedule()
	long := &model.Position{
		Size:             decimal.NewFromInt(1),
		EntryPrice:       decimal.NewFromInt(100),
		Leverage:         100,
		LiquidationPrice: s.LiquidationPrice(decimal.NewFromInt(100), 100, true),
	}
	assert.False(t, Triggered(long, decimal.NewFromFloat(99.5)))
	assert.True(t, Triggered(long, decimal.NewFromFloat(99.0)))
	assert.True(t, Triggered(long, long.LiquidationPrice))
}

func TestTriggered_FlatNeverTriggers(t *testing.T) {
	flat := &model.Position{Size: decimal.Zero}
	assert.False(t, Triggered(flat, decimal.NewFromInt(1)))
}

func TestInitialMargin(t *testing.T) {
	margin := InitialMargin(decimal.NewFromInt(1), decimal.NewFromInt(100), 100)
	assert.True(t, margin.Equal(decimal.NewFromInt(1)), "got %s", margin)
}
