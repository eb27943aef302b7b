// Package insurancefund holds the single cross-instrument insurance fund
// balance that absorbs shortfalls the liquidation monitor cannot recover
// from a trader's own margin (spec.md §4.4 "Insurance fund").
//
// Grounded on internal/trading/balance/service.go's Credit/Debit-with-own-mutex
// shape, reduced to the single running balance this kernel actually needs —
// no double-entry ledger, no per-asset accounts.
package insurancefund

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rindex/perpkernel/internal/model"
)

// Fund is the insurance fund's running balance with monotonic
// contribution/payout accumulators.
type Fund struct {
	mu       sync.Mutex
	balance  decimal.Decimal
	totalIn  decimal.Decimal
	totalOut decimal.Decimal
}

// New creates a fund seeded with an initial balance (spec.md §6 config:
// "insurance fund starting balance").
func New(initial decimal.Decimal) *Fund {
	return &Fund{balance: initial}
}

// Credit adds to the fund balance, e.g. the surplus of a liquidated
// position's margin over its loss at the mark price.
func (f *Fund) Credit(amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance = f.balance.Add(amount)
	f.totalIn = f.totalIn.Add(amount)
}

// Debit draws the fund down by amount to cover a liquidation shortfall, up
// to the fund's current balance; any part of amount beyond that is
// forgiven rather than taking the balance negative (spec.md §4.4: "pay
// what remains and set the balance to zero"; P9 requires balance ≥ 0 at
// all times). Returns the amount actually paid.
func (f *Fund) Debit(amount decimal.Decimal) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	paid := decimal.Min(amount, f.balance)
	f.balance = f.balance.Sub(paid)
	f.totalOut = f.totalOut.Add(paid)
	return paid
}

// Snapshot returns the current fund state as a model.InsuranceFund.
func (f *Fund) Snapshot() model.InsuranceFund {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.InsuranceFund{
		Balance:  f.balance,
		TotalIn:  f.totalIn,
		TotalOut: f.totalOut,
	}
}

// Balance returns just the current balance, the figure embedded in
// model.MarketStats.InsuranceFund.
func (f *Fund) Balance() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance
}
