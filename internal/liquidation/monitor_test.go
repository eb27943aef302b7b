package liquidation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rindex/perpkernel/internal/model"
	"github.com/rindex/perpkernel/internal/risk"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeEngine is a minimal stand-in for matching.Engine, grounded on the
// Engine interface's own documented purpose: testing the monitor without a
// full matching engine.
type fakeEngine struct {
	mark      decimal.Decimal
	positions []model.Position
	closed    []uuid.UUID
	failFor   uuid.UUID
}

func (f *fakeEngine) AllPositions() []model.Position { return f.positions }
func (f *fakeEngine) MarkPrice() decimal.Decimal      { return f.mark }

func (f *fakeEngine) ForceClose(ctx context.Context, traderID uuid.UUID, markPrice decimal.Decimal) (*model.Liquidation, error) {
	if traderID == f.failFor {
		return nil, errors.New("force close failed")
	}
	f.closed = append(f.closed, traderID)
	return &model.Liquidation{TraderID: traderID, Instrument: "RINDEX-PERP", MarkPrice: markPrice}, nil
}

func triggeredLongPosition(traderID uuid.UUID, entry string) model.Position {
	schedule := risk.DefaultMarginSchedule()
	liqPrice := schedule.LiquidationPrice(dec(entry), 100, true)
	return model.Position{
		TraderID:         traderID,
		Instrument:       "RINDEX-PERP",
		Size:             dec("1"),
		EntryPrice:       dec(entry),
		Leverage:         100,
		LiquidationPrice: liqPrice,
	}
}

func TestScan_SkipsWhenMarkPriceIsZero(t *testing.T) {
	fe := &fakeEngine{mark: decimal.Zero}
	m := New(Config{Engine: fe, Logger: zap.NewNop()})

	out := m.Scan(context.Background())
	assert.Nil(t, out)
}

func TestScan_OnlyLiquidatesTriggeredPositions(t *testing.T) {
	fe := &fakeEngine{mark: dec("50")} // well above the long position's liquidation price of 1
	safe := model.Position{TraderID: uuid.New(), Instrument: "RINDEX-PERP", Size: dec("1"), EntryPrice: dec("50"), Leverage: 2, LiquidationPrice: dec("1")}
	fe.positions = []model.Position{safe}
	m := New(Config{Engine: fe, Logger: zap.NewNop()})

	out := m.Scan(context.Background())
	assert.Empty(t, out)
	assert.Empty(t, fe.closed)
}

func TestScan_LiquidatesTriggeredPositionInDeterministicOrder(t *testing.T) {
	schedule := risk.DefaultMarginSchedule()
	mark := dec("99")

	idHigh := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")
	idLow := uuid.MustParse("00000000-0000-0000-0000-000000000000")

	posHigh := model.Position{TraderID: idHigh, Instrument: "RINDEX-PERP", Size: dec("1"), EntryPrice: dec("100"), Leverage: 100,
		LiquidationPrice: schedule.LiquidationPrice(dec("100"), 100, true)}
	posLow := model.Position{TraderID: idLow, Instrument: "RINDEX-PERP", Size: dec("1"), EntryPrice: dec("100"), Leverage: 100,
		LiquidationPrice: schedule.LiquidationPrice(dec("100"), 100, true)}

	fe := &fakeEngine{mark: mark, positions: []model.Position{posHigh, posLow}}
	m := New(Config{Engine: fe, Schedule: schedule, Logger: zap.NewNop()})

	out := m.Scan(context.Background())
	require.Len(t, out, 2)
	// deterministic by trader ID ascending, regardless of input slice order
	assert.Equal(t, []uuid.UUID{idLow, idHigh}, fe.closed)
}

func TestScan_ContinuesPastForceCloseError(t *testing.T) {
	schedule := risk.DefaultMarginSchedule()
	mark := dec("99")

	failing := triggeredLongPosition(uuid.New(), "100")
	ok := triggeredLongPosition(uuid.New(), "100")

	fe := &fakeEngine{mark: mark, positions: []model.Position{failing, ok}, failFor: failing.TraderID}
	m := New(Config{Engine: fe, Schedule: schedule, Logger: zap.NewNop()})

	out := m.Scan(context.Background())
	require.Len(t, out, 1)
	assert.Equal(t, ok.TraderID, out[0].TraderID)
}

func TestScan_InvokesOnLiquidationHook(t *testing.T) {
	schedule := risk.DefaultMarginSchedule()
	pos := triggeredLongPosition(uuid.New(), "100")
	fe := &fakeEngine{mark: dec("99"), positions: []model.Position{pos}}

	var hooked *model.Liquidation
	m := New(Config{Engine: fe, Schedule: schedule, Logger: zap.NewNop(), OnLiquidation: func(liq *model.Liquidation) {
		hooked = liq
	}})

	m.Scan(context.Background())
	require.NotNil(t, hooked)
	assert.Equal(t, pos.TraderID, hooked.TraderID)
}
