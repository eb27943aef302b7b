package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad_AppliesDefaultsWithoutEnvFile(t *testing.T) {
	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "R.index", cfg.Instrument)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.True(t, cfg.InsuranceFundSeed.Equal(decimal.RequireFromString("1000000")))
	assert.Equal(t, int64(100*1e6), cfg.LiquidationScanInterval.Nanoseconds())
	assert.True(t, cfg.StartingMarkPrice.Equal(decimal.RequireFromString("1000")))
	assert.True(t, cfg.TickSize.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, cfg.MinOrderSize.Equal(decimal.RequireFromString("0.001")))
	assert.Equal(t, 125, cfg.MaxLeverage)
	assert.True(t, cfg.StartingTraderBalance.Equal(decimal.RequireFromString("10000")))
}

func TestLoad_EnvVarOverridesDefault(t *testing.T) {
	t.Setenv("INSTRUMENT", "BTC-PERP")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("MAINTENANCE_MARGIN_AGGRESSIVE", "0.03")

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "BTC-PERP", cfg.Instrument)
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.True(t, cfg.MarginSchedule().Aggressive.Equal(decimal.RequireFromString("0.03")))
}

func TestLoad_RejectsMalformedDecimal(t *testing.T) {
	t.Setenv("INSURANCE_FUND_SEED", "not-a-number")
	_, err := Load(zap.NewNop())
	assert.Error(t, err)
}

func TestMarginSchedule_MapsAllFourTiers(t *testing.T) {
	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)

	schedule := cfg.MarginSchedule()
	assert.True(t, schedule.Conservative.Equal(decimal.RequireFromString("0.005")))
	assert.True(t, schedule.Moderate.Equal(decimal.RequireFromString("0.01")))
	assert.True(t, schedule.Aggressive.Equal(decimal.RequireFromString("0.02")))
	assert.True(t, schedule.Degen.Equal(decimal.RequireFromString("0.05")))
}
