// Package store defines the persistence interface for the kernel: durable
// CRUD for traders, positions, orders, trades, liquidations, and market
// stats. Concrete backings live in the gormstore (PostgreSQL), memstore
// (in-memory), and rediscache (read-through cache wrapper) subpackages.
//
// Grounded on internal/store/store.go's single-interface, context-first
// shape from the AMOORCHING-ATMX example, chosen over an entangled
// gorm.DB-everywhere access pattern since this kernel needs a named,
// swappable persistence contract independent of any one driver.
package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rindex/perpkernel/internal/model"
)

// Store is the persistence interface required by spec.md §4.5 / §6.
type Store interface {
	// --- Traders ---
	UpsertTrader(ctx context.Context, t *model.Trader) error
	GetTraderByID(ctx context.Context, id uuid.UUID) (*model.Trader, error)
	GetTraderByUsername(ctx context.Context, username string) (*model.Trader, error)
	ListTraders(ctx context.Context) ([]model.Trader, error)

	// --- Positions ---
	UpsertPosition(ctx context.Context, p *model.Position) error
	DeletePosition(ctx context.Context, traderID uuid.UUID, instrument string) error
	GetPosition(ctx context.Context, traderID uuid.UUID, instrument string) (*model.Position, error)
	ListPositionsByInstrument(ctx context.Context, instrument string) ([]model.Position, error)
	ListPositionsByTrader(ctx context.Context, traderID uuid.UUID) ([]model.Position, error)

	// --- Orders ---
	InsertOrder(ctx context.Context, o *model.Order) error
	UpdateOrderFill(ctx context.Context, o *model.Order) error
	DeleteOrder(ctx context.Context, id uuid.UUID) error
	ListOpenOrders(ctx context.Context, instrument string) ([]model.Order, error)

	// --- Trades (append-only) ---
	InsertTrade(ctx context.Context, t *model.Trade) error
	ListRecentTrades(ctx context.Context, instrument string, limit int) ([]model.Trade, error)
	ListTraderTrades(ctx context.Context, traderID uuid.UUID, instrument string, limit int) ([]model.Trade, error)

	// --- Liquidations (append-only) ---
	InsertLiquidation(ctx context.Context, l *model.Liquidation) error
	ListRecentLiquidations(ctx context.Context, instrument string, limit int) ([]model.Liquidation, error)

	// --- Market stats ---
	UpsertMarketStats(ctx context.Context, s *model.MarketStats) error
	GetMarketStats(ctx context.Context, instrument string) (*model.MarketStats, error)
}

// ErrNotFound is returned by single-record getters when no record matches.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "store: not found" }

// ErrConflict is returned by UpsertTrader when a username is already taken
// by a different trader.
var ErrConflict = errConflict{}

type errConflict struct{}

func (errConflict) Error() string { return "store: conflict" }

// _ documents that decimal is used by implementations even though this
// file only declares the interface.
var _ = decimal.Zero
