// Package position implements the weighted-average position ledger:
// entry-price maintenance, realized P&L recognition, and liquidation-price
// recomputation on every mutation. Grounded on the position tracking in
// internal/trading/risk/position_tracker.go, but rewritten around the
// exact open/reduce/flip rule spec.md §4.2 specifies (that tracker
// computes aggregate exposure for risk limits, not weighted-average
// entry accounting, so only its shape — a stateless function set
// operating on a stored record — was kept).
package position

import (
	"github.com/shopspring/decimal"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/risk"
)

// Fill describes one side of a trade execution to be applied to a position.
type Fill struct {
	Price    decimal.Decimal
	Delta    decimal.Decimal // signed: positive = buy, negative = sell
	Leverage int             // leverage of the order that caused this delta
}

// Result is the outcome of applying a Fill to a position.
type Result struct {
	Position *model.Position // nil if the position closed out flat
	Effect   model.PositionEffect
	Realized decimal.Decimal // realized P&L recognised by this fill (delta, not cumulative)
}

// Apply applies a fill to an existing position (nil if the trader was
// flat) and returns the resulting position (nil if now flat) and the
// realized P&L delta recognised. Implements spec.md §4.2 rules 1–3.
func Apply(existing *model.Position, fill Fill, schedule risk.MarginSchedule) Result {
	var sOld decimal.Decimal
	var entry decimal.Decimal
	var realizedAccum decimal.Decimal
	leverage := fill.Leverage
	if existing != nil {
		sOld = existing.Size
		entry = existing.EntryPrice
		realizedAccum = existing.RealizedPnL
		leverage = existing.Leverage
	}

	effect := classify(sOld, fill.Delta)

	sNew := sOld.Add(fill.Delta)
	var newEntry decimal.Decimal
	var realizedDelta decimal.Decimal

	switch {
	case sOld.IsZero() || sameSign(sOld, fill.Delta):
		// Rule 1: opening / adding. Leverage policy (spec.md §4.2): a new
		// position from flat takes the opening order's leverage; adding to
		// an existing position keeps the existing leverage (spec.md §9
		// Open Question, resolved as "keep existing" for continuity).
		if sOld.IsZero() {
			newEntry = fill.Price
			leverage = fill.Leverage
		} else {
			// weighted average: (sOld*E + d*P) / (sOld+d)
			num := sOld.Mul(entry).Add(fill.Delta.Mul(fill.Price))
			newEntry = num.Div(sOld.Add(fill.Delta))
		}
	case sNew.IsZero() || sameSign(sOld, sNew):
		// Rule 2: reducing, not flipping. closed = min(|sOld|, |d|) = |d|
		// here since |d| <= |sOld| (sNew has the same sign as sOld, or is
		// zero).
		closed := fill.Delta.Abs()
		if sOld.IsPositive() {
			realizedDelta = fill.Price.Sub(entry).Mul(closed)
		} else {
			realizedDelta = entry.Sub(fill.Price).Mul(closed)
		}
		newEntry = entry
	default:
		// Rule 3: flipping. Realize P&L on the full |sOld|, then set the
		// residual's entry to the fill price.
		closed := sOld.Abs()
		if sOld.IsPositive() {
			realizedDelta = fill.Price.Sub(entry).Mul(closed)
		} else {
			realizedDelta = entry.Sub(fill.Price).Mul(closed)
		}
		newEntry = fill.Price
		leverage = fill.Leverage
	}

	if sNew.IsZero() {
		return Result{Position: nil, Effect: effect, Realized: realizedDelta}
	}

	pos := &model.Position{
		Size:        sNew,
		EntryPrice:  newEntry,
		Leverage:    leverage,
		RealizedPnL: realizedAccum.Add(realizedDelta),
	}
	pos.Margin = risk.InitialMargin(pos.Size, pos.EntryPrice, pos.Leverage)
	pos.LiquidationPrice = schedule.LiquidationPrice(pos.EntryPrice, pos.Leverage, pos.IsLong())
	return Result{Position: pos, Effect: effect, Realized: realizedDelta}
}

// classify determines the position effect of a fill per spec.md §4.2:
// open if flat or same sign as the delta, close otherwise. (The
// "liquidation" effect is never produced here — only the liquidation
// monitor tags fills that way.)
func classify(sOld, delta decimal.Decimal) model.PositionEffect {
	if sOld.IsZero() || sameSign(sOld, delta) {
		return model.EffectOpen
	}
	return model.EffectClose
}

func sameSign(a, b decimal.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return true
	}
	return a.IsPositive() == b.IsPositive()
}
