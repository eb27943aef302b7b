// Package memstore is an in-memory store.Store implementation, used for
// tests and for running the kernel without a database.
//
// Grounded on internal/store/memory.go's MemoryStore from the
// AMOORCHING-ATMX example: mutex-guarded maps, returns defensive copies so
// callers can never mutate the store's internal state through a returned
// pointer.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/store"
)

type positionKey struct {
	traderID   uuid.UUID
	instrument string
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	traders      map[uuid.UUID]model.Trader
	usernames    map[string]uuid.UUID
	positions    map[positionKey]model.Position
	orders       map[uuid.UUID]model.Order
	trades       []model.Trade // append-only, insertion order
	liquidations []model.Liquidation
	marketStats  map[string]model.MarketStats
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		traders:     make(map[uuid.UUID]model.Trader),
		usernames:   make(map[string]uuid.UUID),
		positions:   make(map[positionKey]model.Position),
		orders:      make(map[uuid.UUID]model.Order),
		marketStats: make(map[string]model.MarketStats),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) UpsertTrader(_ context.Context, t *model.Trader) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.usernames[t.Username]; ok && existing != t.ID {
		return store.ErrConflict
	}
	s.traders[t.ID] = *t
	s.usernames[t.Username] = t.ID
	return nil
}

func (s *Store) GetTraderByID(_ context.Context, id uuid.UUID) (*model.Trader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := t
	return &cp, nil
}

func (s *Store) GetTraderByUsername(_ context.Context, username string) (*model.Trader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usernames[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	t := s.traders[id]
	return &t, nil
}

func (s *Store) ListTraders(_ context.Context) ([]model.Trader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Trader, 0, len(s.traders))
	for _, t := range s.traders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpsertPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[positionKey{p.TraderID, p.Instrument}] = *p
	return nil
}

func (s *Store) DeletePosition(_ context.Context, traderID uuid.UUID, instrument string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.positions, positionKey{traderID, instrument})
	return nil
}

func (s *Store) GetPosition(_ context.Context, traderID uuid.UUID, instrument string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey{traderID, instrument}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) ListPositionsByInstrument(_ context.Context, instrument string) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for k, p := range s.positions {
		if k.instrument == instrument {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ListPositionsByTrader(_ context.Context, traderID uuid.UUID) ([]model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Position
	for k, p := range s.positions {
		if k.traderID == traderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) InsertOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) UpdateOrderFill(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return store.ErrNotFound
	}
	s.orders[o.ID] = *o
	return nil
}

func (s *Store) DeleteOrder(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	return nil
}

func (s *Store) ListOpenOrders(_ context.Context, instrument string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Order
	for _, o := range s.orders {
		if o.Instrument == instrument && o.IsResting() {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *Store) InsertTrade(_ context.Context, t *model.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *t)
	return nil
}

func (s *Store) ListRecentTrades(_ context.Context, instrument string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Trade, 0, limit)
	for i := len(s.trades) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.trades[i].Instrument == instrument {
			out = append(out, s.trades[i])
		}
	}
	return out, nil
}

func (s *Store) ListTraderTrades(_ context.Context, traderID uuid.UUID, instrument string, limit int) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Trade, 0, limit)
	for i := len(s.trades) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		t := s.trades[i]
		if t.Instrument != instrument {
			continue
		}
		if t.BuyerID == traderID || t.SellerID == traderID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) InsertLiquidation(_ context.Context, l *model.Liquidation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liquidations = append(s.liquidations, *l)
	return nil
}

func (s *Store) ListRecentLiquidations(_ context.Context, instrument string, limit int) ([]model.Liquidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Liquidation, 0, limit)
	for i := len(s.liquidations) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.liquidations[i].Instrument == instrument {
			out = append(out, s.liquidations[i])
		}
	}
	return out, nil
}

func (s *Store) UpsertMarketStats(_ context.Context, stats *model.MarketStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketStats[stats.Instrument] = *stats
	return nil
}

func (s *Store) GetMarketStats(_ context.Context, instrument string) (*model.MarketStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats, ok := s.marketStats[instrument]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &stats, nil
}
