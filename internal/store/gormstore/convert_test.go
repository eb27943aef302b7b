package gormstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/rindex/perpkernel/internal/model"
)

func TestTraderRoundTrip(t *testing.T) {
	want := &model.Trader{
		ID: uuid.New(), Username: "alice", Type: model.TraderTypeHuman,
		Balance: decimal.RequireFromString("1000.5"), TotalPnL: decimal.RequireFromString("-5.25"),
		TradeCount: 3, MaxLeverageUsed: 50, CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	got := traderFromModel(want).toModel()
	assert.Equal(t, want, got)
}

func TestPositionRoundTrip(t *testing.T) {
	want := &model.Position{
		TraderID: uuid.New(), Instrument: "RINDEX-PERP",
		Size: decimal.RequireFromString("-2.5"), EntryPrice: decimal.RequireFromString("100"),
		Leverage: 10, Margin: decimal.RequireFromString("25"), RealizedPnL: decimal.RequireFromString("12.5"),
		LiquidationPrice: decimal.RequireFromString("110"), UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	got := positionFromModel(want).toModel()
	assert.Equal(t, want, got)
}

func TestOrderRoundTrip(t *testing.T) {
	want := &model.Order{
		ID: uuid.New(), ClientOrderID: "cid-1", TraderID: uuid.New(),
		Instrument: "RINDEX-PERP", Side: model.SideBuy, Type: model.OrderTypeLimit,
		Price: decimal.RequireFromString("100"), Size: decimal.RequireFromString("2"),
		FilledSize: decimal.RequireFromString("1"), Leverage: 5, Status: model.OrderStatusPartial,
		CreatedAt: time.Now().UTC().Truncate(time.Second), UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	got := orderFromModel(want).toModel()
	assert.Equal(t, want, got)
}

func TestTradeRoundTrip(t *testing.T) {
	want := &model.Trade{
		ID: uuid.New(), Instrument: "RINDEX-PERP", Price: decimal.RequireFromString("100"),
		Size: decimal.RequireFromString("1"), Timestamp: time.Now().UTC().Truncate(time.Second),
		BuyerID: uuid.New(), SellerID: uuid.New(), BuyerOrderID: uuid.New(), SellerOrderID: uuid.New(),
		BuyerLeverage: 10, SellerLeverage: 20, BuyerEffect: model.EffectOpen, SellerEffect: model.EffectClose,
		BuyerNewPosition: decimal.RequireFromString("1"), SellerNewPosition: decimal.RequireFromString("-1"),
		AggressorSide: model.SideSell,
	}
	got := tradeFromModel(want).toModel()
	assert.Equal(t, want, got)
}

func TestLiquidationRoundTrip(t *testing.T) {
	want := &model.Liquidation{
		ID: uuid.New(), TraderID: uuid.New(), Instrument: "RINDEX-PERP", Side: model.SideBuy,
		Size: decimal.RequireFromString("1"), EntryPrice: decimal.RequireFromString("100"),
		LiquidationPrice: decimal.RequireFromString("99"), MarkPrice: decimal.RequireFromString("98.5"),
		Leverage: 100, Loss: decimal.RequireFromString("1.5"), InsuranceFundHit: true,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	got := liquidationFromModel(want).toModel()
	assert.Equal(t, want, got)
}

func TestMarketStatsRoundTrip(t *testing.T) {
	want := &model.MarketStats{
		Instrument: "RINDEX-PERP", LastPrice: decimal.RequireFromString("100"), MarkPrice: decimal.RequireFromString("100"),
		High24h: decimal.RequireFromString("110"), Low24h: decimal.RequireFromString("90"),
		Volume24h: decimal.RequireFromString("500"), OpenInterest: decimal.RequireFromString("1000"),
		InsuranceFund: decimal.RequireFromString("10000"),
	}
	got := marketStatsFromModel(want).toModel()
	assert.Equal(t, want, got)
}
