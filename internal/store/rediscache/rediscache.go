// Package rediscache wraps a primary store.Store with a Redis read-through
// cache for the kernel's hottest read paths: get_position and
// get_market_stats. Writes go to the primary store and invalidate the
// cache; reads check Redis first, then fall back to the primary and
// repopulate the cache on a miss.
//
// Grounded on internal/store/redis.go's CachedStore from the
// AMOORCHING-ATMX example — same write-through-then-invalidate /
// read-through-then-populate shape, narrowed from every Store method to
// just the two spec.md §4.5 calls out as cache candidates ("position
// lookups and market stats are read far more often than they change").
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/store"
)

// Store wraps a primary store.Store with Redis caching for positions and
// market stats; every other method passes through unchanged.
type Store struct {
	primary store.Store
	rdb     *redis.Client
	ttl     time.Duration
}

// New wraps primary with a Redis cache. A zero ttl defaults to 5 seconds.
func New(primary store.Store, rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Store{primary: primary, rdb: rdb, ttl: ttl}
}

var _ store.Store = (*Store)(nil)

func positionKey(traderID uuid.UUID, instrument string) string {
	return fmt.Sprintf("position:%s:%s", instrument, traderID)
}

func statsKey(instrument string) string {
	return "market_stats:" + instrument
}

func (s *Store) UpsertPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.UpsertPosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(p.TraderID, p.Instrument))
	return nil
}

func (s *Store) DeletePosition(ctx context.Context, traderID uuid.UUID, instrument string) error {
	if err := s.primary.DeletePosition(ctx, traderID, instrument); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(traderID, instrument))
	return nil
}

func (s *Store) GetPosition(ctx context.Context, traderID uuid.UUID, instrument string) (*model.Position, error) {
	key := positionKey(traderID, instrument)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPosition(ctx, traderID, instrument)
	if err != nil {
		return nil, err
	}
	s.cachePosition(ctx, p)
	return p, nil
}

func (s *Store) cachePosition(ctx context.Context, p *model.Position) {
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(p.TraderID, p.Instrument), data, s.ttl)
	}
}

func (s *Store) UpsertMarketStats(ctx context.Context, stats *model.MarketStats) error {
	if err := s.primary.UpsertMarketStats(ctx, stats); err != nil {
		return err
	}
	s.rdb.Del(ctx, statsKey(stats.Instrument))
	return nil
}

func (s *Store) GetMarketStats(ctx context.Context, instrument string) (*model.MarketStats, error) {
	key := statsKey(instrument)
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var stats model.MarketStats
		if json.Unmarshal(data, &stats) == nil {
			return &stats, nil
		}
	}

	stats, err := s.primary.GetMarketStats(ctx, instrument)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(stats); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
	return stats, nil
}

// --- pure pass-through methods ---

func (s *Store) UpsertTrader(ctx context.Context, t *model.Trader) error { return s.primary.UpsertTrader(ctx, t) }
func (s *Store) GetTraderByID(ctx context.Context, id uuid.UUID) (*model.Trader, error) {
	return s.primary.GetTraderByID(ctx, id)
}
func (s *Store) GetTraderByUsername(ctx context.Context, username string) (*model.Trader, error) {
	return s.primary.GetTraderByUsername(ctx, username)
}
func (s *Store) ListTraders(ctx context.Context) ([]model.Trader, error) { return s.primary.ListTraders(ctx) }

func (s *Store) ListPositionsByInstrument(ctx context.Context, instrument string) ([]model.Position, error) {
	return s.primary.ListPositionsByInstrument(ctx, instrument)
}
func (s *Store) ListPositionsByTrader(ctx context.Context, traderID uuid.UUID) ([]model.Position, error) {
	return s.primary.ListPositionsByTrader(ctx, traderID)
}

func (s *Store) InsertOrder(ctx context.Context, o *model.Order) error { return s.primary.InsertOrder(ctx, o) }
func (s *Store) UpdateOrderFill(ctx context.Context, o *model.Order) error {
	return s.primary.UpdateOrderFill(ctx, o)
}
func (s *Store) DeleteOrder(ctx context.Context, id uuid.UUID) error { return s.primary.DeleteOrder(ctx, id) }
func (s *Store) ListOpenOrders(ctx context.Context, instrument string) ([]model.Order, error) {
	return s.primary.ListOpenOrders(ctx, instrument)
}

func (s *Store) InsertTrade(ctx context.Context, t *model.Trade) error { return s.primary.InsertTrade(ctx, t) }
func (s *Store) ListRecentTrades(ctx context.Context, instrument string, limit int) ([]model.Trade, error) {
	return s.primary.ListRecentTrades(ctx, instrument, limit)
}
func (s *Store) ListTraderTrades(ctx context.Context, traderID uuid.UUID, instrument string, limit int) ([]model.Trade, error) {
	return s.primary.ListTraderTrades(ctx, traderID, instrument, limit)
}

func (s *Store) InsertLiquidation(ctx context.Context, l *model.Liquidation) error {
	return s.primary.InsertLiquidation(ctx, l)
}
func (s *Store) ListRecentLiquidations(ctx context.Context, instrument string, limit int) ([]model.Liquidation, error) {
	return s.primary.ListRecentLiquidations(ctx, instrument, limit)
}
