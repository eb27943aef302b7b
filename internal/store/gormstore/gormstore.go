// Package gormstore is the durable, PostgreSQL-backed store.Store
// implementation. Grounded on internal/database/database.go and
// services/marketfeeds/.../models/user.go's gorm struct tags, rewritten
// around this kernel's own tables — traders/positions/orders/trades/
// liquidations/market_stats — rather than an accounts/balances schema.
//
// shopspring/decimal.Decimal implements sql.Scanner/driver.Valuer itself,
// so every monetary/quantity column below is stored as a native Postgres
// numeric without a manual string round-trip.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/store"
)

// Store is a gorm.DB-backed store.Store implementation.
type Store struct {
	db *gorm.DB
}

// New wraps an already-connected *gorm.DB. AutoMigrate is expected to have
// been run by the caller (cmd/kerneld, per spec.md's "migrations are an
// external collaborator" non-goal — this package only defines the schema
// via struct tags, it does not own running migrations in production).
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates/updates the kernel's tables. Exposed for tests and
// for local/dev bootstrapping; production deployments are expected to run
// migrations through the external migration tooling spec.md excludes
// from this kernel.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&traderRow{}, &positionRow{}, &orderRow{}, &tradeRow{}, &liquidationRow{}, &marketStatsRow{})
}

var _ store.Store = (*Store)(nil)

type traderRow struct {
	ID              uuid.UUID `gorm:"primaryKey;type:uuid"`
	Username        string    `gorm:"uniqueIndex;not null"`
	Type            string    `gorm:"not null"`
	Balance         decimal.Decimal
	TotalPnL        decimal.Decimal
	TradeCount      int64
	MaxLeverageUsed int
	CreatedAt       time.Time `gorm:"type:timestamptz"`
}

func (traderRow) TableName() string { return "traders" }

type positionRow struct {
	TraderID         uuid.UUID `gorm:"primaryKey;type:uuid"`
	Instrument       string    `gorm:"primaryKey"`
	Size             decimal.Decimal
	EntryPrice       decimal.Decimal
	Leverage         int
	Margin           decimal.Decimal
	RealizedPnL      decimal.Decimal
	LiquidationPrice decimal.Decimal
	UpdatedAt        time.Time `gorm:"type:timestamptz"`
}

func (positionRow) TableName() string { return "positions" }

type orderRow struct {
	ID            uuid.UUID `gorm:"primaryKey;type:uuid"`
	ClientOrderID string    `gorm:"index"`
	TraderID      uuid.UUID `gorm:"index;type:uuid"`
	Instrument    string    `gorm:"index"`
	Side          string
	Type          string
	Price         decimal.Decimal
	Size          decimal.Decimal
	FilledSize    decimal.Decimal
	Leverage      int
	Status        string    `gorm:"index"`
	CreatedAt     time.Time `gorm:"type:timestamptz"`
	UpdatedAt     time.Time `gorm:"type:timestamptz"`
}

func (orderRow) TableName() string { return "orders" }

type tradeRow struct {
	ID                uuid.UUID `gorm:"primaryKey;type:uuid"`
	Instrument        string    `gorm:"index"`
	Price             decimal.Decimal
	Size              decimal.Decimal
	Timestamp         time.Time `gorm:"index;type:timestamptz"`
	BuyerID           uuid.UUID `gorm:"index;type:uuid"`
	SellerID          uuid.UUID `gorm:"index;type:uuid"`
	BuyerOrderID      uuid.UUID `gorm:"type:uuid"`
	SellerOrderID     uuid.UUID `gorm:"type:uuid"`
	BuyerLeverage     int
	SellerLeverage    int
	BuyerEffect       string
	SellerEffect      string
	BuyerNewPosition  decimal.Decimal
	SellerNewPosition decimal.Decimal
	AggressorSide     string
}

func (tradeRow) TableName() string { return "trades" }

type liquidationRow struct {
	ID               uuid.UUID `gorm:"primaryKey;type:uuid"`
	TraderID         uuid.UUID `gorm:"index;type:uuid"`
	Instrument       string    `gorm:"index"`
	Side             string
	Size             decimal.Decimal
	EntryPrice       decimal.Decimal
	LiquidationPrice decimal.Decimal
	MarkPrice        decimal.Decimal
	Leverage         int
	Loss             decimal.Decimal
	InsuranceFundHit bool
	Timestamp        time.Time `gorm:"index;type:timestamptz"`
}

func (liquidationRow) TableName() string { return "liquidations" }

type marketStatsRow struct {
	Instrument    string `gorm:"primaryKey"`
	LastPrice     decimal.Decimal
	MarkPrice     decimal.Decimal
	High24h       decimal.Decimal
	Low24h        decimal.Decimal
	Volume24h     decimal.Decimal
	OpenInterest  decimal.Decimal
	InsuranceFund decimal.Decimal
}

func (marketStatsRow) TableName() string { return "market_stats" }

func (s *Store) UpsertTrader(ctx context.Context, t *model.Trader) error {
	row := traderFromModel(t)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "type", "balance", "total_pn_l", "trade_count", "max_leverage_used"}),
	}).Create(&row).Error
	if isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

func (s *Store) GetTraderByID(ctx context.Context, id uuid.UUID) (*model.Trader, error) {
	var row traderRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) GetTraderByUsername(ctx context.Context, username string) (*model.Trader, error) {
	var row traderRow
	err := s.db.WithContext(ctx).First(&row, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) ListTraders(ctx context.Context) ([]model.Trader, error) {
	var rows []traderRow
	if err := s.db.WithContext(ctx).Order("created_at asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Trader, len(rows))
	for i, r := range rows {
		out[i] = *r.toModel()
	}
	return out, nil
}

func (s *Store) UpsertPosition(ctx context.Context, p *model.Position) error {
	row := positionFromModel(p)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trader_id"}, {Name: "instrument"}},
		DoUpdates: clause.AssignmentColumns([]string{"size", "entry_price", "leverage", "margin", "realized_pn_l", "liquidation_price", "updated_at"}),
	}).Create(&row).Error
}

func (s *Store) DeletePosition(ctx context.Context, traderID uuid.UUID, instrument string) error {
	return s.db.WithContext(ctx).Delete(&positionRow{}, "trader_id = ? AND instrument = ?", traderID, instrument).Error
}

func (s *Store) GetPosition(ctx context.Context, traderID uuid.UUID, instrument string) (*model.Position, error) {
	var row positionRow
	err := s.db.WithContext(ctx).First(&row, "trader_id = ? AND instrument = ?", traderID, instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) ListPositionsByInstrument(ctx context.Context, instrument string) ([]model.Position, error) {
	var rows []positionRow
	if err := s.db.WithContext(ctx).Find(&rows, "instrument = ?", instrument).Error; err != nil {
		return nil, err
	}
	return positionsFromRows(rows), nil
}

func (s *Store) ListPositionsByTrader(ctx context.Context, traderID uuid.UUID) ([]model.Position, error) {
	var rows []positionRow
	if err := s.db.WithContext(ctx).Find(&rows, "trader_id = ?", traderID).Error; err != nil {
		return nil, err
	}
	return positionsFromRows(rows), nil
}

func (s *Store) InsertOrder(ctx context.Context, o *model.Order) error {
	row := orderFromModel(o)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) UpdateOrderFill(ctx context.Context, o *model.Order) error {
	row := orderFromModel(o)
	res := s.db.WithContext(ctx).Model(&orderRow{}).Where("id = ?", o.ID).Updates(map[string]interface{}{
		"filled_size": row.FilledSize, "status": row.Status, "updated_at": row.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&orderRow{}, "id = ?", id).Error
}

func (s *Store) ListOpenOrders(ctx context.Context, instrument string) ([]model.Order, error) {
	var rows []orderRow
	err := s.db.WithContext(ctx).
		Where("instrument = ? AND status IN ?", instrument, []string{string(model.OrderStatusPending), string(model.OrderStatusPartial)}).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]model.Order, len(rows))
	for i, r := range rows {
		out[i] = *r.toModel()
	}
	return out, nil
}

func (s *Store) InsertTrade(ctx context.Context, t *model.Trade) error {
	row := tradeFromModel(t)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListRecentTrades(ctx context.Context, instrument string, limit int) ([]model.Trade, error) {
	var rows []tradeRow
	q := s.db.WithContext(ctx).Where("instrument = ?", instrument).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Trade, len(rows))
	for i, r := range rows {
		out[i] = *r.toModel()
	}
	return out, nil
}

func (s *Store) ListTraderTrades(ctx context.Context, traderID uuid.UUID, instrument string, limit int) ([]model.Trade, error) {
	var rows []tradeRow
	q := s.db.WithContext(ctx).
		Where("instrument = ? AND (buyer_id = ? OR seller_id = ?)", instrument, traderID, traderID).
		Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Trade, len(rows))
	for i, r := range rows {
		out[i] = *r.toModel()
	}
	return out, nil
}

func (s *Store) InsertLiquidation(ctx context.Context, l *model.Liquidation) error {
	row := liquidationFromModel(l)
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *Store) ListRecentLiquidations(ctx context.Context, instrument string, limit int) ([]model.Liquidation, error) {
	var rows []liquidationRow
	q := s.db.WithContext(ctx).Where("instrument = ?", instrument).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Liquidation, len(rows))
	for i, r := range rows {
		out[i] = *r.toModel()
	}
	return out, nil
}

func (s *Store) UpsertMarketStats(ctx context.Context, stats *model.MarketStats) error {
	row := marketStatsFromModel(stats)
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_price", "mark_price", "high24h", "low24h", "volume24h", "open_interest", "insurance_fund"}),
	}).Create(&row).Error
}

func (s *Store) GetMarketStats(ctx context.Context, instrument string) (*model.MarketStats, error) {
	var row marketStatsRow
	err := s.db.WithContext(ctx).First(&row, "instrument = ?", instrument).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func positionsFromRows(rows []positionRow) []model.Position {
	out := make([]model.Position, len(rows))
	for i, r := range rows {
		out[i] = *r.toModel()
	}
	return out
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}
