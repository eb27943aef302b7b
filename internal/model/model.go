// Package model defines the domain types shared across the R.index kernel.
// All monetary and quantity values use shopspring/decimal — never float64.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of an order or the side of a position being closed.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid reports whether s is a recognised side.
func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType distinguishes resting limit orders from immediate-or-cancel
// market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus tracks an order's lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether the order can no longer be matched against.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCancelled
}

// TraderType classifies the kind of participant; it never affects matching.
type TraderType string

const (
	TraderTypeHuman       TraderType = "human"
	TraderTypeBot         TraderType = "bot"
	TraderTypeMarketMaker TraderType = "market_maker"
)

// PositionEffect classifies how a fill affected a trader's position.
type PositionEffect string

const (
	EffectOpen        PositionEffect = "open"
	EffectClose       PositionEffect = "close"
	EffectLiquidation PositionEffect = "liquidation"
)

// Trader is a participant in the market. Created by the (external)
// authentication collaborator; mutated only by the matching engine on
// trade and by the liquidation monitor on forced close.
type Trader struct {
	ID              uuid.UUID
	Username        string
	Type            TraderType
	Balance         decimal.Decimal
	TotalPnL        decimal.Decimal
	TradeCount      int64
	MaxLeverageUsed int
	CreatedAt       time.Time
}

// Order is a resting or already-processed order.
//
// ClientOrderID is an opaque, caller-supplied deduplication token. The
// kernel never interprets it; it is stored and echoed back unchanged for
// the external API layer's idempotency handling.
type Order struct {
	ID             uuid.UUID
	ClientOrderID  string
	TraderID       uuid.UUID
	Instrument     string
	Side           Side
	Type           OrderType
	Price          decimal.Decimal
	Size           decimal.Decimal
	FilledSize     decimal.Decimal
	Leverage       int
	Status         OrderStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// RemainingSize is the unfilled quantity still eligible to match or rest.
func (o *Order) RemainingSize() decimal.Decimal {
	return o.Size.Sub(o.FilledSize)
}

// IsResting reports whether the order currently occupies a place in the
// book (per spec.md's invariant: status in {pending, partial} and
// filled_size < size).
func (o *Order) IsResting() bool {
	return (o.Status == OrderStatusPending || o.Status == OrderStatusPartial) &&
		o.FilledSize.LessThan(o.Size)
}

// Position is keyed by (TraderID, Instrument). A flat (zero-size) position
// is never stored — callers observe its absence instead (invariant I1).
type Position struct {
	TraderID         uuid.UUID
	Instrument       string
	Size             decimal.Decimal // signed: positive long, negative short
	EntryPrice       decimal.Decimal
	Leverage         int
	Margin           decimal.Decimal
	RealizedPnL      decimal.Decimal
	LiquidationPrice decimal.Decimal
	UpdatedAt        time.Time
}

// IsLong reports whether the position is a long (positive size).
func (p *Position) IsLong() bool { return p.Size.IsPositive() }

// IsFlat reports whether the position has zero size.
func (p *Position) IsFlat() bool { return p.Size.IsZero() }

// UnrealizedPnL computes the position's unrealized P&L at the given mark
// price: (mark - entry) * size for longs, (entry - mark) * |size| for
// shorts — both reduce to (mark - entry) * size since size is signed.
func (p *Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	return mark.Sub(p.EntryPrice).Mul(p.Size)
}

// Trade is an immutable execution record.
type Trade struct {
	ID                uuid.UUID
	Instrument        string
	Price             decimal.Decimal
	Size              decimal.Decimal
	Timestamp         time.Time
	BuyerID           uuid.UUID
	SellerID          uuid.UUID
	BuyerOrderID      uuid.UUID
	SellerOrderID     uuid.UUID
	BuyerLeverage     int
	SellerLeverage    int
	BuyerEffect       PositionEffect
	SellerEffect      PositionEffect
	BuyerNewPosition  decimal.Decimal
	SellerNewPosition decimal.Decimal
	AggressorSide     Side
}

// Liquidation is an immutable forced-closure record.
type Liquidation struct {
	ID                uuid.UUID
	TraderID          uuid.UUID
	Instrument        string
	Side              Side // side of the closed position: buy = long, sell = short
	Size              decimal.Decimal
	EntryPrice        decimal.Decimal
	LiquidationPrice  decimal.Decimal
	MarkPrice         decimal.Decimal
	Leverage          int
	Loss              decimal.Decimal
	InsuranceFundHit  bool
	Timestamp         time.Time
}

// InsuranceFund is the singleton fund balance with monotonic accumulators.
type InsuranceFund struct {
	Balance  decimal.Decimal
	TotalIn  decimal.Decimal
	TotalOut decimal.Decimal
}

// MarketStats is the snapshot returned by get_market_stats.
type MarketStats struct {
	Instrument    string
	LastPrice     decimal.Decimal
	MarkPrice     decimal.Decimal
	High24h       decimal.Decimal
	Low24h        decimal.Decimal
	Volume24h     decimal.Decimal
	OpenInterest  decimal.Decimal
	InsuranceFund decimal.Decimal
}

// CandleInterval is a supported OHLCV bucket width.
type CandleInterval string

const (
	Interval1m  CandleInterval = "1m"
	Interval5m  CandleInterval = "5m"
	Interval15m CandleInterval = "15m"
	Interval1h  CandleInterval = "1h"
	Interval4h  CandleInterval = "4h"
	Interval1d  CandleInterval = "1d"
)

// Duration returns the wall-clock width of the interval.
func (i CandleInterval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Candle is one OHLCV bucket.
type Candle struct {
	Instrument  string
	Interval    CandleInterval
	OpenTime    time.Time
	CloseTime   time.Time
	Open        decimal.Decimal
	High        decimal.Decimal
	Low         decimal.Decimal
	Close       decimal.Decimal
	Volume      decimal.Decimal
	TradeCount  int64
}

// OrderBookLevel is one price level in a snapshot.
type OrderBookLevel struct {
	Price     decimal.Decimal
	TotalSize decimal.Decimal
	Count     int
}

// OrderBookSnapshot is the top-N levels of each side.
type OrderBookSnapshot struct {
	Instrument string
	Bids       []OrderBookLevel
	Asks       []OrderBookLevel
}

// OpenInterestSummary is returned by get_open_interest.
type OpenInterestSummary struct {
	TotalOI       decimal.Decimal
	LongPositions int
	ShortPositions int
}
