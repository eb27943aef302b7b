// Package walrecovery reconstructs position state from the append-only
// trade log when the positions table itself cannot be trusted (e.g. a
// crash between a trade commit and its position upsert). It replays every
// trade for an instrument through the same position ledger rules the
// matching engine uses, in timestamp order, and reports the resulting
// positions so the caller can reconcile them against the store.
//
// Grounded on persistence.ReconciliationService (persistence/persistence.go's
// Reconciler field, backed by the WAL in persistence/wal.go), which
// reconciles a write-ahead log against a batch-written DB table; this
// kernel has no separate WAL, so the same "replay the durable append-only
// record to rebuild derived state" idea is grounded directly on the trade
// table instead, which is itself already write-once and ordered.
package walrecovery

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/position"
	"github.com/rindex/perpkernel/internal/risk"
	"github.com/rindex/perpkernel/internal/store"
)

// Reconcile replays every trade recorded for instrument and returns the
// position each trader would hold afterward, keyed by trader ID. It does
// not write anything; the caller decides whether to overwrite the store's
// position rows with this result (spec.md §4.5 "reconciliation is an
// operator-invoked repair, not an automatic background process").
func Reconcile(ctx context.Context, s store.Store, instrument string, schedule risk.MarginSchedule) (map[uuid.UUID]*model.Position, error) {
	trades, err := s.ListRecentTrades(ctx, instrument, 0)
	if err != nil {
		return nil, fmt.Errorf("walrecovery: list trades: %w", err)
	}
	sort.Slice(trades, func(i, j int) bool { return trades[i].Timestamp.Before(trades[j].Timestamp) })

	positions := make(map[uuid.UUID]*model.Position)
	for _, t := range trades {
		applyTradeLeg(positions, t.BuyerID, t.Price, t.Size, t.BuyerLeverage, schedule)
		applyTradeLeg(positions, t.SellerID, t.Price, t.Size.Neg(), t.SellerLeverage, schedule)
	}
	return positions, nil
}

func applyTradeLeg(positions map[uuid.UUID]*model.Position, traderID uuid.UUID, price, delta decimal.Decimal, leverage int, schedule risk.MarginSchedule) {
	result := position.Apply(positions[traderID], position.Fill{Price: price, Delta: delta, Leverage: leverage}, schedule)
	if result.Position == nil {
		delete(positions, traderID)
		return
	}
	result.Position.TraderID = traderID
	positions[traderID] = result.Position
}
