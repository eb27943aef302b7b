// Package risk computes liquidation prices and maintenance-margin tiers.
// Grounded on internal/trading/engine/fee_engine.go's tier-lookup style,
// generalized here from a fee schedule to a maintenance-margin schedule.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/rindex/perpkernel/internal/model"
)

// Tier is a leverage bracket determining maintenance margin.
type Tier string

const (
	TierConservative Tier = "conservative"
	TierModerate     Tier = "moderate"
	TierAggressive   Tier = "aggressive"
	TierDegen        Tier = "degen"
)

// MarginSchedule maps leverage tiers to maintenance-margin fractions. It is
// read from configuration (spec.md §6 "maintenance-margin by tier, four
// decimals").
type MarginSchedule struct {
	Conservative decimal.Decimal // leverage <= 10
	Moderate     decimal.Decimal // leverage <= 50
	Aggressive   decimal.Decimal // leverage <= 100
	Degen        decimal.Decimal // leverage > 100
}

// DefaultMarginSchedule returns the constants from spec.md §4.4.
func DefaultMarginSchedule() MarginSchedule {
	return MarginSchedule{
		Conservative: decimal.NewFromFloat(0.005),
		Moderate:     decimal.NewFromFloat(0.01),
		Aggressive:   decimal.NewFromFloat(0.02),
		Degen:        decimal.NewFromFloat(0.05),
	}
}

// TierOf maps a leverage value to its maintenance-margin tier. The mapping
// itself is fixed; only the per-tier fractions are configurable.
func TierOf(leverage int) Tier {
	switch {
	case leverage <= 10:
		return TierConservative
	case leverage <= 50:
		return TierModerate
	case leverage <= 100:
		return TierAggressive
	default:
		return TierDegen
	}
}

// MaintenanceMargin returns the maintenance-margin fraction for a leverage
// value under the given schedule.
func (s MarginSchedule) MaintenanceMargin(leverage int) decimal.Decimal {
	switch TierOf(leverage) {
	case TierConservative:
		return s.Conservative
	case TierModerate:
		return s.Moderate
	case TierAggressive:
		return s.Aggressive
	default:
		return s.Degen
	}
}

// LiquidationPrice computes the liquidation price for a position per
// spec.md §4.4:
//
//	maintMargin = schedule[tierOf(leverage)]
//	distance    = entryPrice / leverage * (1 - maintMargin)
//	liqPrice    = entryPrice - distance   (long)
//	              entryPrice + distance   (short)
//
// The caller supplies the position's sign via isLong; leverage must be >= 1.
func (s MarginSchedule) LiquidationPrice(entryPrice decimal.Decimal, leverage int, isLong bool) decimal.Decimal {
	maintMargin := s.MaintenanceMargin(leverage)
	distance := entryPrice.Div(decimal.NewFromInt(int64(leverage))).Mul(decimal.NewFromInt(1).Sub(maintMargin))
	if isLong {
		return entryPrice.Sub(distance)
	}
	return entryPrice.Add(distance)
}

// Triggered reports whether a position's liquidation price has been
// crossed by the mark price (spec.md §4.4 "Trigger").
func Triggered(p *model.Position, mark decimal.Decimal) bool {
	if p.IsFlat() {
		return false
	}
	if p.IsLong() {
		return mark.LessThanOrEqual(p.LiquidationPrice)
	}
	return mark.GreaterThanOrEqual(p.LiquidationPrice)
}

// InitialMargin returns the margin required to hold |size| at entryPrice
// with the given leverage: notional / leverage.
func InitialMargin(size, entryPrice decimal.Decimal, leverage int) decimal.Decimal {
	notional := size.Abs().Mul(entryPrice)
	return notional.Div(decimal.NewFromInt(int64(leverage)))
}
