// Package matching implements the single-instrument matching engine: order
// submission, cancellation, price-time-priority execution against the
// order book, position ledger updates, and trade/liquidation event
// publication.
//
// Grounded on internal/trading/engine/engine.go for overall composition
// (zap logger + store + order book(s), Start/Stop lifecycle) and
// internal/trading/orderbook/orderbook.go's AddOrder for the match loop
// itself (walk the opposite book's price levels in crossable order, skip
// self-trades, trade at the resting order's price, remove filled makers,
// rest any remainder). Generalized from a worker-pool dispatch (one
// goroutine + channel per CPU, round-robined across symbols) to a single
// exclusive mutex, because this kernel serves exactly one instrument and
// submit/cancel/execute_fill must serialize through one lock rather than
// shard by symbol.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rindex/perpkernel/internal/eventhub"
	"github.com/rindex/perpkernel/internal/insurancefund"
	"github.com/rindex/perpkernel/internal/marketstats"
	"github.com/rindex/perpkernel/internal/metrics"
	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/orderbook"
	"github.com/rindex/perpkernel/internal/position"
	"github.com/rindex/perpkernel/internal/risk"
	"github.com/rindex/perpkernel/internal/store"
	"github.com/rindex/perpkernel/internal/tracing"
)

// recentTradesCap bounds the in-memory recent-trades ring buffer (spec.md
// §4.3: "at least 1000, newest first").
const recentTradesCap = 1000

var (
	// ErrUnknownTrader is returned when an order references a trader that
	// has not been registered.
	ErrUnknownTrader = errors.New("matching: unknown trader")
	// ErrInvalidOrder is returned when an order fails basic validation
	// (non-positive size/price, invalid side/type, leverage out of range).
	ErrInvalidOrder = errors.New("matching: invalid order")
	// ErrOrderNotFound is returned by Cancel when the order is not resting.
	ErrOrderNotFound = errors.New("matching: order not found")
	// ErrNotOwner is returned by Cancel when the caller is not the order's
	// trader.
	ErrNotOwner = errors.New("matching: order not owned by caller")
)

// minLeverage is the floor of the leverage range; the ceiling is
// configured per-instrument (spec.md §6 "maximum leverage (integer)").
const minLeverage = 1

// defaultMaxLeverage is used when Config.MaxLeverage is left unset (zero),
// so existing callers/tests that do not thread the new config field
// through still get a sane ceiling.
const defaultMaxLeverage = 125

// Engine is the single-instrument matching engine.
type Engine struct {
	logger     *zap.Logger
	instrument string
	schedule   risk.MarginSchedule
	book       *orderbook.OrderBook
	store      store.Store
	hub        *eventhub.Hub
	stats      *marketstats.Tracker
	fund       *insurancefund.Fund

	mu           sync.Mutex // serializes submit/cancel/execute_fill (spec.md §4.1)
	positions    map[uuid.UUID]*model.Position
	traders      map[uuid.UUID]*model.Trader
	recentTrades []model.Trade // newest first, capped at recentTradesCap
	maxLeverage  int
}

// Config bundles an Engine's collaborators.
type Config struct {
	Instrument string
	Schedule   risk.MarginSchedule
	Store      store.Store
	Hub        *eventhub.Hub
	Stats      *marketstats.Tracker
	Fund       *insurancefund.Fund
	Logger     *zap.Logger
	// MaxLeverage is the configured leverage ceiling (spec.md §6). Zero
	// falls back to defaultMaxLeverage.
	MaxLeverage int
}

// New constructs an Engine with an empty book and in-memory caches. Call
// Recover to repopulate state from the store before serving traffic.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxLev := cfg.MaxLeverage
	if maxLev <= 0 {
		maxLev = defaultMaxLeverage
	}
	return &Engine{
		logger:      logger,
		instrument:  cfg.Instrument,
		schedule:    cfg.Schedule,
		book:        orderbook.New(cfg.Instrument),
		store:       cfg.Store,
		hub:         cfg.Hub,
		stats:       cfg.Stats,
		fund:        cfg.Fund,
		positions:   make(map[uuid.UUID]*model.Position),
		traders:     make(map[uuid.UUID]*model.Trader),
		maxLeverage: maxLev,
	}
}

// Recover rebuilds in-memory order book, position, and trader state from
// the store on startup (spec.md §4.5 "recovery at startup"). It rests
// every still-open order from the store, in (price, created_at) order per
// side, so price-time priority is preserved across a restart.
func (e *Engine) Recover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	traders, err := e.store.ListTraders(ctx)
	if err != nil {
		return fmt.Errorf("matching: recover traders: %w", err)
	}
	for i := range traders {
		t := traders[i]
		e.traders[t.ID] = &t
	}

	positions, err := e.store.ListPositionsByInstrument(ctx, e.instrument)
	if err != nil {
		return fmt.Errorf("matching: recover positions: %w", err)
	}
	for i := range positions {
		p := positions[i]
		e.positions[p.TraderID] = &p
	}

	orders, err := e.store.ListOpenOrders(ctx, e.instrument)
	if err != nil {
		return fmt.Errorf("matching: recover open orders: %w", err)
	}
	sortForRecovery(orders)
	for i := range orders {
		o := orders[i]
		e.book.Rest(&o)
	}

	trades, err := e.store.ListRecentTrades(ctx, e.instrument, recentTradesCap)
	if err != nil {
		return fmt.Errorf("matching: recover trades: %w", err)
	}
	e.recentTrades = trades
	if len(trades) > 0 {
		e.stats.RecordTrade(trades[0].Price, trades[0].Size, trades[0].Timestamp)
	}

	e.logger.Info("matching: recovered state",
		zap.String("instrument", e.instrument),
		zap.Int("traders", len(e.traders)),
		zap.Int("positions", len(e.positions)),
		zap.Int("resting_orders", len(orders)),
		zap.Int("recent_trades", len(trades)))
	return nil
}

// sortForRecovery orders resting orders by (price priority, created_at)
// within each side so Rest-ing them in this order reproduces FIFO queues
// identical to the ones that existed before restart.
func sortForRecovery(orders []model.Order) {
	less := func(i, j int) bool {
		if orders[i].Side != orders[j].Side {
			return orders[i].Side == model.SideBuy
		}
		if !orders[i].Price.Equal(orders[j].Price) {
			if orders[i].Side == model.SideBuy {
				return orders[i].Price.GreaterThan(orders[j].Price)
			}
			return orders[i].Price.LessThan(orders[j].Price)
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	}
	// insertion sort: recovery happens once at startup, N is small enough
	// that O(n^2) is not worth pulling in sort.Slice's interface overhead.
	for i := 1; i < len(orders); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			orders[j], orders[j-1] = orders[j-1], orders[j]
		}
	}
}

// RegisterTrader adds or updates a trader in the engine's cache and store.
func (e *Engine) RegisterTrader(ctx context.Context, t *model.Trader) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.UpsertTrader(ctx, t); err != nil {
		return fmt.Errorf("matching: register trader: %w", err)
	}
	e.traders[t.ID] = t
	return nil
}

// Submit validates and matches a new order against the book, synthesizing
// trades and updating positions as it goes. It returns the (possibly
// partially filled) order and the trades it generated.
func (e *Engine) Submit(ctx context.Context, o *model.Order) (*model.Order, []model.Trade, error) {
	start := time.Now()
	ctx, span := tracing.Tracer().Start(ctx, "matching.Submit")
	defer span.End()
	defer func() { metrics.SubmitLatency.Observe(time.Since(start).Seconds()) }()

	if err := e.validate(o); err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.traders[o.TraderID]; !ok {
		return nil, nil, ErrUnknownTrader
	}

	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	o.Status = model.OrderStatusPending

	trades := e.match(ctx, o)

	if o.RemainingSize().IsPositive() {
		if o.Type == model.OrderTypeMarket {
			// Market orders never rest; any unfilled remainder is simply
			// dropped (spec.md §4.1 "market orders are IOC") and the order
			// ends cancelled, whether or not part of it filled.
			o.Status = model.OrderStatusCancelled
		} else {
			if o.FilledSize.IsPositive() {
				o.Status = model.OrderStatusPartial
			}
			e.book.Rest(o)
			if err := e.store.InsertOrder(ctx, o); err != nil {
				e.logger.Error("matching: persist resting order failed", zap.Error(err))
			}
		}
	} else {
		o.Status = model.OrderStatusFilled
	}

	metrics.OrdersSubmitted.WithLabelValues(e.instrument, string(o.Side), string(o.Type)).Inc()
	// spec.md §4.3.3 step 7: the aggressor's own order-update event is
	// emitted once here, after the submit loop has finished, rather than
	// per fill like the resting makers' events.
	e.publishOrderUpdate(o)
	e.publishOrderBook(ctx)
	return o, trades, nil
}

func (e *Engine) validate(o *model.Order) error {
	if o == nil || !o.Side.Valid() {
		return ErrInvalidOrder
	}
	if o.Type != model.OrderTypeLimit && o.Type != model.OrderTypeMarket {
		return ErrInvalidOrder
	}
	if o.Size.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidOrder
	}
	if o.Type == model.OrderTypeLimit && o.Price.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidOrder
	}
	if o.Leverage < minLeverage || o.Leverage > e.maxLeverage {
		return ErrInvalidOrder
	}
	return nil
}

// match walks the opposite side of the book from best price outward,
// crossing while the incoming order's limit allows it (always crosses for
// market orders). Within each level it walks the FIFO queue head to tail,
// skipping same-trader makers in place (self-trade prevention: the skipped
// order keeps its queue position, the aggressor continues to the next
// node), and trading at the resting order's price. Grounded on AddOrder:
// oppBook.Scan/Reverse over levels, then a plain loop over level.Orders()
// that does `if maker.UserID == order.UserID { continue }`.
func (e *Engine) match(ctx context.Context, incoming *model.Order) []model.Trade {
	var trades []model.Trade
	opposite := incoming.Side.Opposite()

	for _, level := range e.book.Levels(opposite) {
		if incoming.RemainingSize().IsZero() {
			break
		}
		if incoming.Type == model.OrderTypeLimit && !crossable(incoming, level.Price) {
			break
		}

		for _, maker := range level.Orders() {
			if incoming.RemainingSize().IsZero() {
				break
			}
			if maker.RemainingSize().IsZero() {
				continue
			}
			if maker.TraderID == incoming.TraderID {
				continue
			}

			matchSize := decimal.Min(incoming.RemainingSize(), maker.RemainingSize())
			trade := e.executeFill(ctx, incoming, maker, level.Price, matchSize)
			trades = append(trades, trade)

			if maker.RemainingSize().IsZero() {
				e.book.Remove(maker.ID)
				maker.Status = model.OrderStatusFilled
				if err := e.store.DeleteOrder(ctx, maker.ID); err != nil {
					e.logger.Error("matching: delete filled maker order failed", zap.Error(err))
				}
			} else {
				maker.Status = model.OrderStatusPartial
				if err := e.store.UpdateOrderFill(ctx, maker); err != nil {
					e.logger.Error("matching: persist maker fill failed", zap.Error(err))
				}
			}
			// spec.md §4.3.3 step 7: the resting order's update event is
			// emitted per fill, after its trade event and that fill's
			// market-stats and candle events (P11); the
			// aggressor's update is emitted once after the submit loop
			// completes (see Submit).
			e.publishOrderUpdate(maker)
		}
	}
	return trades
}

func crossable(incoming *model.Order, restingPrice decimal.Decimal) bool {
	if incoming.Side == model.SideBuy {
		return incoming.Price.GreaterThanOrEqual(restingPrice)
	}
	return incoming.Price.LessThanOrEqual(restingPrice)
}

// executeFill applies one match between incoming and maker at price for
// size, updating both traders' positions and the engine's caches, and
// returns the synthesized Trade. The caller holds e.mu.
func (e *Engine) executeFill(ctx context.Context, incoming, maker *model.Order, price, size decimal.Decimal) model.Trade {
	incoming.FilledSize = incoming.FilledSize.Add(size)
	maker.FilledSize = maker.FilledSize.Add(size)
	incoming.UpdatedAt = time.Now().UTC()
	maker.UpdatedAt = incoming.UpdatedAt

	var buyOrder, sellOrder *model.Order
	if incoming.Side == model.SideBuy {
		buyOrder, sellOrder = incoming, maker
	} else {
		buyOrder, sellOrder = maker, incoming
	}

	buyResult := e.applyFill(buyOrder.TraderID, position.Fill{Price: price, Delta: size, Leverage: buyOrder.Leverage})
	sellResult := e.applyFill(sellOrder.TraderID, position.Fill{Price: price, Delta: size.Neg(), Leverage: sellOrder.Leverage})

	trade := model.Trade{
		ID:                uuid.New(),
		Instrument:        e.instrument,
		Price:             price,
		Size:              size,
		Timestamp:         incoming.UpdatedAt,
		BuyerID:           buyOrder.TraderID,
		SellerID:          sellOrder.TraderID,
		BuyerOrderID:      buyOrder.ID,
		SellerOrderID:     sellOrder.ID,
		BuyerLeverage:     buyOrder.Leverage,
		SellerLeverage:    sellOrder.Leverage,
		BuyerEffect:       buyResult.Effect,
		SellerEffect:      sellResult.Effect,
		AggressorSide:     incoming.Side,
	}
	if buyResult.Position != nil {
		trade.BuyerNewPosition = buyResult.Position.Size
	}
	if sellResult.Position != nil {
		trade.SellerNewPosition = sellResult.Position.Size
	}

	e.pushRecentTrade(trade)
	e.stats.RecordTrade(price, size, trade.Timestamp)
	metrics.TradesExecuted.WithLabelValues(e.instrument).Inc()

	if err := e.store.InsertTrade(ctx, &trade); err != nil {
		e.logger.Error("matching: persist trade failed", zap.Error(err))
	}
	e.hub.Broadcast(eventhub.Envelope{
		Type:    eventhub.EventTrade,
		Channel: "trades:" + e.instrument,
		Data:    trade,
	})
	e.publishMarketStatsLocked()
	return trade
}

// publishMarketStatsLocked broadcasts the current market-stats snapshot
// and the in-progress 1-minute candle. The caller holds e.mu.
func (e *Engine) publishMarketStatsLocked() {
	oi := decimal.Zero
	for _, p := range e.positions {
		oi = oi.Add(p.Size.Abs())
	}
	e.hub.Broadcast(eventhub.Envelope{
		Type:    eventhub.EventMarketStats,
		Channel: "stats:" + e.instrument,
		Data:    e.stats.Snapshot(oi, e.fund.Balance()),
	})
	if candle, ok := e.stats.CurrentCandle(model.Interval1m); ok {
		e.hub.Broadcast(eventhub.Envelope{
			Type:    eventhub.EventCandle,
			Channel: "candles:" + e.instrument + ":1m",
			Data:    candle,
		})
	}
}

// applyFill folds a fill into traderID's cached position, persists the
// result, and returns the position ledger's Result.
func (e *Engine) applyFill(traderID uuid.UUID, fill position.Fill) position.Result {
	existing := e.positions[traderID]
	result := position.Apply(existing, fill, e.schedule)
	result.Position = finalizePosition(result.Position, traderID, e.instrument)

	ctx := context.Background()
	if result.Position == nil {
		delete(e.positions, traderID)
		if err := e.store.DeletePosition(ctx, traderID, e.instrument); err != nil {
			e.logger.Error("matching: delete flat position failed", zap.Error(err))
		}
		e.publishPosition(model.Position{TraderID: traderID, Instrument: e.instrument, Size: decimal.Zero, UpdatedAt: time.Now().UTC()})
	} else {
		e.positions[traderID] = result.Position
		if err := e.store.UpsertPosition(ctx, result.Position); err != nil {
			e.logger.Error("matching: persist position failed", zap.Error(err))
		}
		e.publishPosition(*result.Position)
	}

	if trader, ok := e.traders[traderID]; ok {
		trader.TradeCount++
		trader.TotalPnL = trader.TotalPnL.Add(result.Realized)
		trader.Balance = trader.Balance.Add(result.Realized)
		if fill.Leverage > trader.MaxLeverageUsed {
			trader.MaxLeverageUsed = fill.Leverage
		}
		if err := e.store.UpsertTrader(ctx, trader); err != nil {
			e.logger.Error("matching: persist trader after fill failed", zap.Error(err))
		}
	}
	return result
}

func finalizePosition(p *model.Position, traderID uuid.UUID, instrument string) *model.Position {
	if p == nil {
		return nil
	}
	p.TraderID = traderID
	p.Instrument = instrument
	p.UpdatedAt = time.Now().UTC()
	return p
}

func (e *Engine) pushRecentTrade(t model.Trade) {
	e.recentTrades = append([]model.Trade{t}, e.recentTrades...)
	if len(e.recentTrades) > recentTradesCap {
		e.recentTrades = e.recentTrades[:recentTradesCap]
	}
}

// Cancel removes a resting order from the book. callerID must match the
// order's trader.
func (e *Engine) Cancel(ctx context.Context, orderID, callerID uuid.UUID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, ok := e.book.Get(orderID)
	if !ok {
		return ErrOrderNotFound
	}
	if o.TraderID != callerID {
		return ErrNotOwner
	}
	e.book.Remove(orderID)
	o.Status = model.OrderStatusCancelled
	o.UpdatedAt = time.Now().UTC()
	if err := e.store.DeleteOrder(ctx, orderID); err != nil {
		return fmt.Errorf("matching: cancel order: %w", err)
	}
	metrics.OrdersCancelled.WithLabelValues(e.instrument).Inc()
	e.publishOrderUpdate(o)
	e.publishOrderBook(ctx)
	return nil
}

// publishOrderUpdate broadcasts an order's current state as an
// EventOrderUpdate envelope (spec.md §4.3.3 step 7, §4.3.4).
func (e *Engine) publishOrderUpdate(o *model.Order) {
	e.hub.Broadcast(eventhub.Envelope{
		Type:    eventhub.EventOrderUpdate,
		Channel: "orders:" + e.instrument,
		Data:    *o,
	})
}

// publishPosition broadcasts a trader's current position state (spec.md
// §4.6's "position" event kind). A flat position is published with a zero
// size rather than omitted, so subscribers see the close explicitly.
func (e *Engine) publishPosition(p model.Position) {
	e.hub.Broadcast(eventhub.Envelope{
		Type:    eventhub.EventPosition,
		Channel: "positions:" + e.instrument,
		Data:    p,
	})
}

func (e *Engine) publishOrderBook(_ context.Context) {
	e.hub.Broadcast(eventhub.Envelope{
		Type:    eventhub.EventOrderBook,
		Channel: "orderbook:" + e.instrument,
		Data:    e.book.Snapshot(50),
	})
}

// Snapshot returns the current order book's top levels.
func (e *Engine) Snapshot(depth int) model.OrderBookSnapshot {
	return e.book.Snapshot(depth)
}

// Position returns a trader's cached position, if any.
func (e *Engine) Position(traderID uuid.UUID) (*model.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.positions[traderID]
	return p, ok
}

// AllPositions returns a copy of every currently open position.
func (e *Engine) AllPositions() []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, *p)
	}
	return out
}

// Trader returns a trader by ID from the engine's cache.
func (e *Engine) Trader(traderID uuid.UUID) (*model.Trader, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.traders[traderID]
	return t, ok
}

// AllTraders returns a copy of every registered trader.
func (e *Engine) AllTraders() []model.Trader {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Trader, 0, len(e.traders))
	for _, t := range e.traders {
		out = append(out, *t)
	}
	return out
}

// RecentTrades returns up to limit of the most recent trades, newest
// first.
func (e *Engine) RecentTrades(limit int) []model.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	if limit <= 0 || limit > len(e.recentTrades) {
		limit = len(e.recentTrades)
	}
	out := make([]model.Trade, limit)
	copy(out, e.recentTrades[:limit])
	return out
}

// MarkPrice returns the current mark price (spec.md §9: last trade
// price).
func (e *Engine) MarkPrice() decimal.Decimal {
	return e.stats.MarkPrice()
}

// ForceClose is invoked by the liquidation monitor to close a position at
// the mark price, off-book against the insurance fund (spec.md §4.4: the
// close is recorded only as a Liquidation, never submitted as a crossing
// order, so it never touches the order book or produces a Trade).
func (e *Engine) ForceClose(ctx context.Context, traderID uuid.UUID, markPrice decimal.Decimal) (*model.Liquidation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[traderID]
	if !ok || p.IsFlat() {
		return nil, ErrOrderNotFound
	}

	side := model.SideBuy
	if !p.IsLong() {
		side = model.SideSell
	}

	margin := p.Margin
	closingDelta := p.Size.Neg()
	result := position.Apply(p, position.Fill{Price: markPrice, Delta: closingDelta, Leverage: p.Leverage}, e.schedule)

	// spec.md §4.4: loss is positive when the trader lost money; realized
	// PnL is its negation (a losing close recognises a negative realized
	// delta).
	loss := result.Realized.Neg()
	fundHit := loss.GreaterThan(margin)
	if fundHit {
		e.fund.Debit(loss.Sub(margin))
	} else {
		e.fund.Credit(margin.Sub(loss))
	}

	liq := &model.Liquidation{
		ID:               uuid.New(),
		TraderID:         traderID,
		Instrument:       e.instrument,
		Side:             side,
		Size:             p.Size.Abs(),
		EntryPrice:       p.EntryPrice,
		LiquidationPrice: p.LiquidationPrice,
		MarkPrice:        markPrice,
		Leverage:         p.Leverage,
		Loss:             loss,
		InsuranceFundHit: fundHit,
		Timestamp:        time.Now().UTC(),
	}

	delete(e.positions, traderID)
	if err := e.store.DeletePosition(ctx, traderID, e.instrument); err != nil {
		e.logger.Error("matching: delete liquidated position failed", zap.Error(err))
	}
	if trader, ok := e.traders[traderID]; ok {
		// balance += margin + pnl (spec.md §4.4): the margin held against
		// the closed position is released back to the trader alongside
		// the realized loss/gain.
		trader.Balance = decimal.Max(trader.Balance.Add(margin).Add(result.Realized), decimal.Zero)
		trader.TotalPnL = trader.TotalPnL.Add(result.Realized)
		if err := e.store.UpsertTrader(ctx, trader); err != nil {
			e.logger.Error("matching: persist trader after liquidation failed", zap.Error(err))
		}
	}
	if err := e.store.InsertLiquidation(ctx, liq); err != nil {
		e.logger.Error("matching: persist liquidation failed", zap.Error(err))
	}

	metrics.Liquidations.WithLabelValues(e.instrument, boolLabel(fundHit)).Inc()
	e.hub.Broadcast(eventhub.Envelope{
		Type:    eventhub.EventLiquidation,
		Channel: "liquidations:" + e.instrument,
		Data:    *liq,
	})
	e.publishPosition(model.Position{TraderID: traderID, Instrument: e.instrument, Size: decimal.Zero, UpdatedAt: liq.Timestamp})
	return liq, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
