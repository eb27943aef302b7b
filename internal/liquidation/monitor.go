// Package liquidation runs the periodic liquidation monitor: scan every
// open position against the current mark price, forcibly close any that
// have crossed their liquidation price, deterministically ordered so a
// scan's outcome does not depend on map iteration order.
//
// Grounded on internal/trading/orderbook/orderbook.go's
// StartSnapshotCacheRefresher, a `for { select { case <-ticker.C: ...
// case <-stopCh: return } }` loop, generalized from cache refresh to a
// liquidation sweep and switched from a stopCh to context.Context
// cancellation to match internal/trading/engine/engine.go's
// context-first style.
package liquidation

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rindex/perpkernel/internal/metrics"
	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/risk"
)

// Engine is the subset of matching.Engine the monitor depends on, kept as
// an interface so the monitor can be tested without a full matching
// engine.
type Engine interface {
	AllPositions() []model.Position
	MarkPrice() decimal.Decimal
	ForceClose(ctx context.Context, traderID uuid.UUID, markPrice decimal.Decimal) (*model.Liquidation, error)
}

// Monitor periodically scans for triggered positions and force-closes
// them one at a time.
type Monitor struct {
	engine   Engine
	schedule risk.MarginSchedule
	interval time.Duration
	logger   *zap.Logger

	onLiquidation func(*model.Liquidation)
}

// Config configures a Monitor. Interval defaults to 100ms if zero
// (spec.md §4.4 "every check_interval_ms (default 100 ms)").
type Config struct {
	Engine        Engine
	Schedule      risk.MarginSchedule
	Interval      time.Duration
	Logger        *zap.Logger
	OnLiquidation func(*model.Liquidation) // optional hook, primarily for tests
}

// New constructs a Monitor.
func New(cfg Config) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		engine:        cfg.Engine,
		schedule:      cfg.Schedule,
		interval:      interval,
		logger:        logger,
		onLiquidation: cfg.OnLiquidation,
	}
}

// Run blocks, scanning on every tick until ctx is cancelled. It is called
// by kernel.Kernel.Run, which cmd/kerneld calls.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Scan(ctx)
		}
	}
}

// Scan runs one liquidation sweep and returns the liquidations it
// produced, in the deterministic order they were processed.
func (m *Monitor) Scan(ctx context.Context) []model.Liquidation {
	start := time.Now()
	defer func() { metrics.LiquidationScanLatency.Observe(time.Since(start).Seconds()) }()

	mark := m.engine.MarkPrice()
	if mark.IsZero() {
		return nil
	}

	positions := m.engine.AllPositions()
	triggered := make([]model.Position, 0, len(positions))
	for _, p := range positions {
		if risk.Triggered(&p, mark) {
			triggered = append(triggered, p)
		}
	}
	if len(triggered) == 0 {
		return nil
	}

	// Deterministic processing order: by trader ID, so concurrent scans or
	// repeated test runs over the same position set always liquidate in
	// the same sequence (spec.md §8 invariant on liquidation ordering).
	sort.Slice(triggered, func(i, j int) bool {
		return triggered[i].TraderID.String() < triggered[j].TraderID.String()
	})

	var out []model.Liquidation
	for _, p := range triggered {
		liq, err := m.engine.ForceClose(ctx, p.TraderID, mark)
		if err != nil {
			m.logger.Warn("liquidation: force close failed",
				zap.String("trader_id", p.TraderID.String()), zap.Error(err))
			continue
		}
		if liq.InsuranceFundHit {
			// spec.md §7 InsuranceFundDepleted: logged warning, liquidation
			// still completes, residual loss is absorbed by the fund.
			m.logger.Warn("liquidation: insurance fund absorbed residual loss",
				zap.String("trader_id", p.TraderID.String()),
				zap.String("instrument", liq.Instrument),
				zap.String("loss", liq.Loss.String()))
		} else {
			m.logger.Info("liquidation: position force-closed",
				zap.String("trader_id", p.TraderID.String()),
				zap.String("instrument", liq.Instrument),
				zap.String("loss", liq.Loss.String()),
				zap.Bool("insurance_fund_hit", liq.InsuranceFundHit))
		}
		out = append(out, *liq)
		if m.onLiquidation != nil {
			m.onLiquidation(liq)
		}
	}
	return out
}
