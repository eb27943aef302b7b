// Package kernel composes the order book, matching engine, liquidation
// monitor, event hub, and market stats tracker into the single facade the
// (external) API/WS gateway calls. It owns no transport of its own —
// spec.md explicitly scopes the HTTP/WebSocket surface, auth, and web UI
// out of this kernel.
//
// Grounded on internal/contract/contract.go's sentinel-error idiom
// (ErrInvalidTicker/ErrInvalidType, wrapped with fmt.Errorf("%w: ..."))
// generalized into a small typed ErrKind so callers across a process
// boundary can distinguish "not found" from "invalid input" from
// "conflict" without string matching.
package kernel

import (
	"context"
	"errors"
	"fmt"

	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rindex/perpkernel/internal/eventhub"
	"github.com/rindex/perpkernel/internal/insurancefund"
	"github.com/rindex/perpkernel/internal/liquidation"
	"github.com/rindex/perpkernel/internal/marketstats"
	"github.com/rindex/perpkernel/internal/matching"
	"github.com/rindex/perpkernel/internal/metrics"
	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/risk"
	"github.com/rindex/perpkernel/internal/store"
)

// ErrUnknownInstrument is returned when a caller-supplied order names an
// instrument other than the one this kernel was configured for; this
// kernel serves exactly one instrument, so any other value is unknown.
var ErrUnknownInstrument = errors.New("kernel: unknown instrument")

// ErrKind classifies a KernelError so callers can branch on outcome
// without string-matching error messages. The seven values are spec.md
// §7's error kinds, verbatim.
type ErrKind string

const (
	ErrKindUnknownInstrument     ErrKind = "unknown_instrument"
	ErrKindUnknownTrader         ErrKind = "unknown_trader"
	ErrKindInvalidOrder          ErrKind = "invalid_order"
	ErrKindSelfTradeOnly         ErrKind = "self_trade_only"
	ErrKindNotFound              ErrKind = "not_found"
	ErrKindPersistenceFailure    ErrKind = "persistence_failure"
	ErrKindInsuranceFundDepleted ErrKind = "insurance_fund_depleted"

	// ErrKindInternal is not one of spec.md §7's seven kinds; it is the
	// fallback for an error classify() does not otherwise recognize, so a
	// bug in a new error path fails closed as "internal" rather than
	// silently mis-reporting one of the seven.
	ErrKindInternal ErrKind = "internal"
)

// KernelError is the error type returned by every Kernel method.
type KernelError struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *KernelError) Error() string {
	return fmt.Sprintf("kernel: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *KernelError) Unwrap() error { return e.Err }

func newErr(op string, kind ErrKind, err error) *KernelError {
	return &KernelError{Op: op, Kind: kind, Err: err}
}

// classify maps an error from the engine/store layer onto one of spec.md
// §7's seven kinds. SelfTradeOnly and InsuranceFundDepleted are defined
// above but never produced here: per spec.md §7's propagation policy, a
// self-trade-only market order is cancelled without an error (scenario 2
// in §8), and an insurance-fund shortfall is "logged warning" inside the
// liquidation monitor (liquidation.Monitor.Scan), never surfaced to a
// Kernel caller at all.
func classify(op string, err error) *KernelError {
	switch {
	case errors.Is(err, ErrUnknownInstrument):
		return newErr(op, ErrKindUnknownInstrument, err)
	case errors.Is(err, matching.ErrUnknownTrader):
		return newErr(op, ErrKindUnknownTrader, err)
	case errors.Is(err, matching.ErrInvalidOrder):
		return newErr(op, ErrKindInvalidOrder, err)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, matching.ErrOrderNotFound), errors.Is(err, matching.ErrNotOwner):
		return newErr(op, ErrKindNotFound, err)
	case errors.Is(err, store.ErrConflict):
		return newErr(op, ErrKindPersistenceFailure, err)
	default:
		return newErr(op, ErrKindInternal, err)
	}
}

// Kernel is the facade exposing spec.md §6's external operations.
type Kernel struct {
	instrument string
	engine     *matching.Engine
	monitor    *liquidation.Monitor
	stats      *marketstats.Tracker
	fund       *insurancefund.Fund
	hub        *eventhub.Hub
	store      store.Store
	logger     *zap.Logger
}

// Config bundles a Kernel's collaborators.
type Config struct {
	Instrument              string
	Schedule                risk.MarginSchedule
	Store                   store.Store
	InsuranceFundSeed       decimal.Decimal
	LiquidationScanInterval time.Duration
	Logger                  *zap.Logger

	// StartingMarkPrice seeds the market-stats tracker's mark price until
	// the first trade occurs (spec.md §4.3.5, §6).
	StartingMarkPrice decimal.Decimal
	// TickSize and MinOrderSize are carried through from the config
	// document (spec.md §6) for callers that need to display or validate
	// against them; the kernel itself does not gate submit on either,
	// since spec.md §4.3.1's closed validation list has no tick/min-size
	// check.
	TickSize     decimal.Decimal
	MinOrderSize decimal.Decimal
	// MaxLeverage is the configured leverage ceiling (spec.md §6); zero
	// falls back to the matching package's default.
	MaxLeverage int
}

// New constructs a fully wired Kernel. Call Recover before serving
// traffic and Run to start the liquidation monitor's background loop.
func New(cfg Config) *Kernel {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	hub := eventhub.New(logger)
	stats := marketstats.New(cfg.Instrument, cfg.StartingMarkPrice)
	fund := insurancefund.New(cfg.InsuranceFundSeed)

	engine := matching.New(matching.Config{
		Instrument:  cfg.Instrument,
		Schedule:    cfg.Schedule,
		Store:       cfg.Store,
		Hub:         hub,
		Stats:       stats,
		Fund:        fund,
		Logger:      logger,
		MaxLeverage: cfg.MaxLeverage,
	})

	monitor := liquidation.New(liquidation.Config{
		Engine:   engine,
		Schedule: cfg.Schedule,
		Interval: cfg.LiquidationScanInterval,
		Logger:   logger,
	})

	return &Kernel{
		instrument: cfg.Instrument,
		engine:     engine,
		monitor:    monitor,
		stats:      stats,
		fund:       fund,
		hub:        hub,
		store:      cfg.Store,
		logger:     logger,
	}
}

// Recover rebuilds in-memory state from the store on startup.
func (k *Kernel) Recover(ctx context.Context) error {
	if err := k.engine.Recover(ctx); err != nil {
		return classify("recover", err)
	}
	return nil
}

// Run starts the liquidation monitor's background scan loop and a gauge
// sampler for the event hub's drop counter and open position count.
// Blocks until ctx is cancelled; intended to be launched in its own
// goroutine.
func (k *Kernel) Run(ctx context.Context) {
	go k.sampleGauges(ctx)
	k.monitor.Run(ctx)
}

// sampleGauges periodically exports the event hub's cumulative drop count
// and the current open position count as Prometheus gauges, since both
// are cheap to compute but not worth recomputing on every mutation.
func (k *Kernel) sampleGauges(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.EventHubDropped.WithLabelValues(k.instrument).Set(float64(k.hub.Dropped()))
			metrics.OpenPositions.WithLabelValues(k.instrument).Set(float64(len(k.engine.AllPositions())))
		}
	}
}

// RegisterTrader registers a new trader (spec.md §6 register_trader).
func (k *Kernel) RegisterTrader(ctx context.Context, username string, traderType model.TraderType, initialBalance decimal.Decimal) (*model.Trader, error) {
	if username == "" {
		return nil, classify("register_trader", matching.ErrInvalidOrder)
	}
	t := &model.Trader{ID: uuid.New(), Username: username, Type: traderType, Balance: initialBalance}
	if err := k.engine.RegisterTrader(ctx, t); err != nil {
		return nil, classify("register_trader", err)
	}
	return t, nil
}

// Submit submits a new order (spec.md §6 submit_order). A caller-supplied
// Instrument other than this kernel's own is rejected as unknown; a blank
// Instrument defaults to it, for callers that rely on the kernel being
// single-instrument.
func (k *Kernel) Submit(ctx context.Context, o *model.Order) (*model.Order, []model.Trade, error) {
	if o.Instrument != "" && o.Instrument != k.instrument {
		return nil, nil, classify("submit_order", ErrUnknownInstrument)
	}
	o.Instrument = k.instrument
	order, trades, err := k.engine.Submit(ctx, o)
	if err != nil {
		return nil, nil, classify("submit_order", err)
	}
	return order, trades, nil
}

// Cancel cancels a resting order (spec.md §6 cancel_order).
func (k *Kernel) Cancel(ctx context.Context, orderID, traderID uuid.UUID) error {
	if err := k.engine.Cancel(ctx, orderID, traderID); err != nil {
		return classify("cancel_order", err)
	}
	return nil
}

// GetOrderBook returns the top maxLevels of each side (spec.md §6
// get_order_book).
func (k *Kernel) GetOrderBook(maxLevels int) model.OrderBookSnapshot {
	return k.engine.Snapshot(maxLevels)
}

// GetPosition returns a trader's position, if any (spec.md §6
// get_position).
func (k *Kernel) GetPosition(traderID uuid.UUID) (*model.Position, bool) {
	return k.engine.Position(traderID)
}

// GetAllPositions returns every open position (spec.md §6
// get_all_positions).
func (k *Kernel) GetAllPositions() []model.Position {
	return k.engine.AllPositions()
}

// GetTrader returns a trader by ID (spec.md §6 get_trader).
func (k *Kernel) GetTrader(traderID uuid.UUID) (*model.Trader, bool) {
	return k.engine.Trader(traderID)
}

// GetAllTraders returns every registered trader (spec.md §6
// get_all_traders).
func (k *Kernel) GetAllTraders() []model.Trader {
	return k.engine.AllTraders()
}

// GetRecentTrades returns up to limit of the most recent trades, newest
// first (spec.md §6 get_recent_trades).
func (k *Kernel) GetRecentTrades(limit int) []model.Trade {
	return k.engine.RecentTrades(limit)
}

// GetTraderTrades returns a trader's trades from the store, newest first
// (spec.md §6 get_trader_trades).
func (k *Kernel) GetTraderTrades(ctx context.Context, traderID uuid.UUID, limit int) ([]model.Trade, error) {
	trades, err := k.store.ListTraderTrades(ctx, traderID, k.instrument, limit)
	if err != nil {
		return nil, classify("get_trader_trades", err)
	}
	return trades, nil
}

// GetRecentLiquidations returns recent liquidations from the store
// (spec.md §6 get_recent_liquidations).
func (k *Kernel) GetRecentLiquidations(ctx context.Context, limit int) ([]model.Liquidation, error) {
	liqs, err := k.store.ListRecentLiquidations(ctx, k.instrument, limit)
	if err != nil {
		return nil, classify("get_recent_liquidations", err)
	}
	return liqs, nil
}

// GetOpenInterest summarizes current open interest (spec.md §6
// get_open_interest).
func (k *Kernel) GetOpenInterest() model.OpenInterestSummary {
	positions := k.engine.AllPositions()
	var summary model.OpenInterestSummary
	summary.TotalOI = decimal.Zero
	for _, p := range positions {
		summary.TotalOI = summary.TotalOI.Add(p.Size.Abs())
		if p.IsLong() {
			summary.LongPositions++
		} else {
			summary.ShortPositions++
		}
	}
	return summary
}

// GetMarketStats returns the current market stats snapshot (spec.md §6
// get_market_stats).
func (k *Kernel) GetMarketStats() model.MarketStats {
	oi := k.GetOpenInterest()
	return k.stats.Snapshot(oi.TotalOI, k.fund.Balance())
}

// GetCandles returns the current in-progress candle for an interval, if
// any (spec.md §6 get_candles).
func (k *Kernel) GetCandles(interval model.CandleInterval) (model.Candle, bool) {
	return k.stats.CurrentCandle(interval)
}

// GetHistoricalCandles returns up to limit closed candles for an
// interval, oldest first (spec.md §6 get_historical_candles).
func (k *Kernel) GetHistoricalCandles(interval model.CandleInterval, limit int) []model.Candle {
	return k.stats.HistoricalCandles(interval, limit)
}

// GetMarkPrice returns the current mark price (spec.md §6
// get_mark_price).
func (k *Kernel) GetMarkPrice() decimal.Decimal {
	return k.engine.MarkPrice()
}

// Subscribe registers an event subscriber on the kernel's hub (spec.md
// §4.6; consumed by the external WS gateway, not by this kernel itself).
func (k *Kernel) Subscribe(channel string) *eventhub.Subscription {
	return k.hub.Subscribe(channel)
}

// Hub returns the kernel's event hub, for wiring optional mirrors (e.g.
// kafkasink.Sink) that need to call Hub.Subscribe themselves.
func (k *Kernel) Hub() *eventhub.Hub {
	return k.hub
}

// InsuranceFund returns the current insurance fund state.
func (k *Kernel) InsuranceFund() model.InsuranceFund {
	return k.fund.Snapshot()
}

// Close shuts down the kernel's event hub, unblocking any subscribers.
func (k *Kernel) Close() {
	k.hub.Close()
}
