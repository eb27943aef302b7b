package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/store"
)

func TestUpsertTrader_RejectsDuplicateUsername(t *testing.T) {
	s := New()
	ctx := context.Background()

	a := &model.Trader{ID: uuid.New(), Username: "alice"}
	require.NoError(t, s.UpsertTrader(ctx, a))

	b := &model.Trader{ID: uuid.New(), Username: "alice"}
	assert.ErrorIs(t, s.UpsertTrader(ctx, b), store.ErrConflict)
}

func TestUpsertTrader_AllowsReUpsertOfSameID(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, s.UpsertTrader(ctx, &model.Trader{ID: id, Username: "alice", Balance: decimal.NewFromInt(100)}))
	require.NoError(t, s.UpsertTrader(ctx, &model.Trader{ID: id, Username: "alice", Balance: decimal.NewFromInt(200)}))

	got, err := s.GetTraderByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(200)))
}

func TestGetTraderByID_NotFound(t *testing.T) {
	s := New()
	_, err := s.GetTraderByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetTraderByID_ReturnsDefensiveCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, s.UpsertTrader(ctx, &model.Trader{ID: id, Username: "alice", Balance: decimal.NewFromInt(100)}))

	got, err := s.GetTraderByID(ctx, id)
	require.NoError(t, err)
	got.Balance = decimal.NewFromInt(999999)

	reread, err := s.GetTraderByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, reread.Balance.Equal(decimal.NewFromInt(100)), "mutating a returned trader must not affect the stored copy")
}

func TestListTraders_OrderedByCreatedAt(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now().UTC()

	second := &model.Trader{ID: uuid.New(), Username: "second", CreatedAt: now.Add(time.Minute)}
	first := &model.Trader{ID: uuid.New(), Username: "first", CreatedAt: now}
	require.NoError(t, s.UpsertTrader(ctx, second))
	require.NoError(t, s.UpsertTrader(ctx, first))

	list, err := s.ListTraders(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "first", list[0].Username)
	assert.Equal(t, "second", list[1].Username)
}

func TestPosition_UpsertGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	traderID := uuid.New()

	p := &model.Position{TraderID: traderID, Instrument: "RINDEX-PERP", Size: decimal.NewFromInt(1), EntryPrice: decimal.NewFromInt(100)}
	require.NoError(t, s.UpsertPosition(ctx, p))

	got, err := s.GetPosition(ctx, traderID, "RINDEX-PERP")
	require.NoError(t, err)
	assert.True(t, got.Size.Equal(decimal.NewFromInt(1)))

	require.NoError(t, s.DeletePosition(ctx, traderID, "RINDEX-PERP"))
	_, err = s.GetPosition(ctx, traderID, "RINDEX-PERP")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListPositionsByInstrument_FiltersCorrectly(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.UpsertPosition(ctx, &model.Position{TraderID: uuid.New(), Instrument: "A"}))
	require.NoError(t, s.UpsertPosition(ctx, &model.Position{TraderID: uuid.New(), Instrument: "B"}))

	list, err := s.ListPositionsByInstrument(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestOrder_InsertUpdateDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()

	o := &model.Order{ID: id, Instrument: "RINDEX-PERP", Status: model.OrderStatusPending, Size: decimal.NewFromInt(5)}
	require.NoError(t, s.InsertOrder(ctx, o))

	o.Status = model.OrderStatusPartial
	o.FilledSize = decimal.NewFromInt(2)
	require.NoError(t, s.UpdateOrderFill(ctx, o))

	open, err := s.ListOpenOrders(ctx, "RINDEX-PERP")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, model.OrderStatusPartial, open[0].Status)

	require.NoError(t, s.DeleteOrder(ctx, id))
	open, err = s.ListOpenOrders(ctx, "RINDEX-PERP")
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestUpdateOrderFill_UnknownOrder(t *testing.T) {
	s := New()
	err := s.UpdateOrderFill(context.Background(), &model.Order{ID: uuid.New()})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListRecentTrades_NewestFirstAndLimited(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertTrade(ctx, &model.Trade{ID: uuid.New(), Instrument: "RINDEX-PERP", Price: decimal.NewFromInt(int64(100 + i))}))
	}

	recent, err := s.ListRecentTrades(ctx, "RINDEX-PERP", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.True(t, recent[0].Price.Equal(decimal.NewFromInt(104)), "most recent trade first")
	assert.True(t, recent[1].Price.Equal(decimal.NewFromInt(103)))
}

func TestListTraderTrades_FiltersByBuyerOrSeller(t *testing.T) {
	s := New()
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()
	other := uuid.New()

	require.NoError(t, s.InsertTrade(ctx, &model.Trade{ID: uuid.New(), Instrument: "RINDEX-PERP", BuyerID: buyer, SellerID: seller}))
	require.NoError(t, s.InsertTrade(ctx, &model.Trade{ID: uuid.New(), Instrument: "RINDEX-PERP", BuyerID: other, SellerID: uuid.New()}))

	trades, err := s.ListTraderTrades(ctx, buyer, "RINDEX-PERP", 10)
	require.NoError(t, err)
	assert.Len(t, trades, 1)
}

func TestLiquidation_InsertAndListRecent(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.InsertLiquidation(ctx, &model.Liquidation{ID: uuid.New(), Instrument: "RINDEX-PERP"}))
	require.NoError(t, s.InsertLiquidation(ctx, &model.Liquidation{ID: uuid.New(), Instrument: "OTHER-PERP"}))

	list, err := s.ListRecentLiquidations(ctx, "RINDEX-PERP", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMarketStats_UpsertAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.UpsertMarketStats(ctx, &model.MarketStats{Instrument: "RINDEX-PERP", LastPrice: decimal.NewFromInt(100)}))
	got, err := s.GetMarketStats(ctx, "RINDEX-PERP")
	require.NoError(t, err)
	assert.True(t, got.LastPrice.Equal(decimal.NewFromInt(100)))

	_, err = s.GetMarketStats(ctx, "UNKNOWN")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
