package kernel

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/risk"
	"github.com/rindex/perpkernel/internal/store/memstore"
)

const instrument = "RINDEX-PERP"

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k := New(Config{
		Instrument:        instrument,
		Schedule:          risk.DefaultMarginSchedule(),
		Store:             memstore.New(),
		InsuranceFundSeed: decimal.NewFromInt(10000),
		Logger:            zap.NewNop(),
	})
	require.NoError(t, k.Recover(context.Background()))
	return k
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRegisterTrader_RejectsEmptyUsername(t *testing.T) {
	k := newTestKernel(t)
	_, err := k.RegisterTrader(context.Background(), "", model.TraderTypeHuman, dec("1000"))
	require.Error(t, err)
	var kerr *KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, ErrKindInvalidOrder, kerr.Kind)
}

func TestSubmitAndCancel_EndToEnd(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	trader, err := k.RegisterTrader(ctx, "alice", model.TraderTypeHuman, dec("1000"))
	require.NoError(t, err)

	order, _, err := k.Submit(ctx, &model.Order{TraderID: trader.ID, Side: model.SideBuy, Type: model.OrderTypeLimit, Price: dec("100"), Size: dec("1"), Leverage: 10})
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, order.Status)

	book := k.GetOrderBook(10)
	require.Len(t, book.Bids, 1)

	require.NoError(t, k.Cancel(ctx, order.ID, trader.ID))
	book = k.GetOrderBook(10)
	assert.Empty(t, book.Bids)
}

func TestCancel_UnknownOrderIsClassifiedNotFound(t *testing.T) {
	k := newTestKernel(t)
	err := k.Cancel(context.Background(), uuid.New(), uuid.New())
	require.Error(t, err)
	var kerr *KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, ErrKindNotFound, kerr.Kind)
}

func TestSubmit_RejectsMismatchedInstrument(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	trader, err := k.RegisterTrader(ctx, "alice", model.TraderTypeHuman, dec("1000"))
	require.NoError(t, err)

	_, _, err = k.Submit(ctx, &model.Order{
		Instrument: "BTC-PERP",
		TraderID:   trader.ID, Side: model.SideBuy, Type: model.OrderTypeLimit,
		Price: dec("100"), Size: dec("1"), Leverage: 10,
	})
	require.Error(t, err)
	var kerr *KernelError
	require.ErrorAs(t, err, &kerr)
	assert.Equal(t, ErrKindUnknownInstrument, kerr.Kind)
}

func TestSubmit_TradeUpdatesPositionsAndStats(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	a, err := k.RegisterTrader(ctx, "maker", model.TraderTypeHuman, dec("1000"))
	require.NoError(t, err)
	b, err := k.RegisterTrader(ctx, "taker", model.TraderTypeHuman, dec("1000"))
	require.NoError(t, err)

	_, _, err = k.Submit(ctx, &model.Order{TraderID: a.ID, Side: model.SideSell, Type: model.OrderTypeLimit, Price: dec("100"), Size: dec("1"), Leverage: 10})
	require.NoError(t, err)
	_, trades, err := k.Submit(ctx, &model.Order{TraderID: b.ID, Side: model.SideBuy, Type: model.OrderTypeMarket, Size: dec("1"), Leverage: 10})
	require.NoError(t, err)
	require.Len(t, trades, 1)

	posA, ok := k.GetPosition(a.ID)
	require.True(t, ok)
	assert.True(t, posA.Size.Equal(dec("-1")))

	posB, ok := k.GetPosition(b.ID)
	require.True(t, ok)
	assert.True(t, posB.Size.Equal(dec("1")))

	stats := k.GetMarketStats()
	assert.True(t, stats.LastPrice.Equal(dec("100")))
	assert.True(t, stats.OpenInterest.Equal(dec("1")))

	oi := k.GetOpenInterest()
	assert.Equal(t, 1, oi.LongPositions)
	assert.Equal(t, 1, oi.ShortPositions)

	recent := k.GetRecentTrades(10)
	require.Len(t, recent, 1)

	traderTrades, err := k.GetTraderTrades(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, traderTrades, 1)
}

func TestGetAllTradersAndPositions(t *testing.T) {
	k := newTestKernel(t)
	ctx := context.Background()

	_, err := k.RegisterTrader(ctx, "alice", model.TraderTypeHuman, dec("1000"))
	require.NoError(t, err)
	_, err = k.RegisterTrader(ctx, "bob", model.TraderTypeHuman, dec("1000"))
	require.NoError(t, err)

	assert.Len(t, k.GetAllTraders(), 2)
	assert.Empty(t, k.GetAllPositions())
}

func TestInsuranceFund_ReflectsSeed(t *testing.T) {
	k := newTestKernel(t)
	fund := k.InsuranceFund()
	assert.True(t, fund.Balance.Equal(dec("10000")))
}

func TestSubscribeAndClose(t *testing.T) {
	k := newTestKernel(t)
	sub := k.Subscribe("")
	k.Close()

	_, ok := <-sub.Events
	assert.False(t, ok, "Close must unblock subscribers")
}

func TestGetCandlesAndHistoricalCandles_EmptyBeforeAnyTrade(t *testing.T) {
	k := newTestKernel(t)
	_, ok := k.GetCandles(model.Interval1m)
	assert.False(t, ok)
	assert.Empty(t, k.GetHistoricalCandles(model.Interval1m, 10))
}

func TestGetMarkPrice_FallsBackToConfiguredStartingValueBeforeAnyTrade(t *testing.T) {
	k := New(Config{
		Instrument:        instrument,
		Schedule:          risk.DefaultMarginSchedule(),
		Store:             memstore.New(),
		InsuranceFundSeed: decimal.NewFromInt(10000),
		StartingMarkPrice: dec("1000"),
		Logger:            zap.NewNop(),
	})
	require.NoError(t, k.Recover(context.Background()))

	assert.True(t, k.GetMarkPrice().Equal(dec("1000")))
}
