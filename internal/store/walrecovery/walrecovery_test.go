package walrecovery

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/risk"
	"github.com/rindex/perpkernel/internal/store/memstore"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestReconcile_ReplaysTradesIntoPositions(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	buyer := uuid.New()
	seller := uuid.New()

	require.NoError(t, s.InsertTrade(ctx, &model.Trade{
		ID: uuid.New(), Instrument: "RINDEX-PERP", Price: dec("100"), Size: dec("2"),
		BuyerID: buyer, SellerID: seller, BuyerLeverage: 10, SellerLeverage: 10,
	}))

	positions, err := Reconcile(ctx, s, "RINDEX-PERP", risk.DefaultMarginSchedule())
	require.NoError(t, err)

	buyerPos := positions[buyer]
	require.NotNil(t, buyerPos)
	assert.True(t, buyerPos.Size.Equal(dec("2")))
	assert.True(t, buyerPos.EntryPrice.Equal(dec("100")))

	sellerPos := positions[seller]
	require.NotNil(t, sellerPos)
	assert.True(t, sellerPos.Size.Equal(dec("-2")))
}

func TestReconcile_ReplaysInTimestampOrderRegardlessOfInsertionOrder(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	trader := uuid.New()
	other := uuid.New()

	base := time.Now().UTC()
	later := model.Trade{
		ID: uuid.New(), Instrument: "RINDEX-PERP", Price: dec("110"), Size: dec("1"),
		BuyerID: trader, SellerID: other, BuyerLeverage: 20, SellerLeverage: 10,
		Timestamp: base.Add(time.Minute),
	}
	earlier := model.Trade{
		ID: uuid.New(), Instrument: "RINDEX-PERP", Price: dec("100"), Size: dec("1"),
		BuyerID: trader, SellerID: other, BuyerLeverage: 10, SellerLeverage: 10,
		Timestamp: base,
	}
	// inserted out of chronological order
	require.NoError(t, s.InsertTrade(ctx, &later))
	require.NoError(t, s.InsertTrade(ctx, &earlier))

	positions, err := Reconcile(ctx, s, "RINDEX-PERP", risk.DefaultMarginSchedule())
	require.NoError(t, err)

	pos := positions[trader]
	require.NotNil(t, pos)
	assert.True(t, pos.Size.Equal(dec("2")))
	assert.True(t, pos.EntryPrice.Equal(dec("105")), "weighted-average entry from the earlier fill first, got %s", pos.EntryPrice)
	assert.Equal(t, 10, pos.Leverage, "the position opens with the earlier fill's leverage and keeps it on the add")
}

func TestReconcile_FlatPositionIsOmitted(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	trader := uuid.New()
	other := uuid.New()

	require.NoError(t, s.InsertTrade(ctx, &model.Trade{
		ID: uuid.New(), Instrument: "RINDEX-PERP", Price: dec("100"), Size: dec("1"),
		BuyerID: trader, SellerID: other, BuyerLeverage: 10, SellerLeverage: 10,
	}))
	require.NoError(t, s.InsertTrade(ctx, &model.Trade{
		ID: uuid.New(), Instrument: "RINDEX-PERP", Price: dec("105"), Size: dec("1"),
		BuyerID: other, SellerID: trader, BuyerLeverage: 10, SellerLeverage: 10,
	}))

	positions, err := Reconcile(ctx, s, "RINDEX-PERP", risk.DefaultMarginSchedule())
	require.NoError(t, err)

	_, ok := positions[trader]
	assert.False(t, ok, "a fully closed position must not appear in the reconciled map")
}
