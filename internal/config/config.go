// Package config loads the kernel's runtime configuration from a .env
// file and/or the process environment.
//
// Grounded on services/fiat/internal/config/config.go's viper loader:
// SetConfigFile(".env") + AutomaticEnv() + ReadInConfig(), tolerating a
// missing file, generalized from a handful of fiat-gateway keys to the
// kernel's own knobs (instrument, margin schedule, insurance fund seed,
// store backend selection, Kafka mirroring).
package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/rindex/perpkernel/internal/risk"
)

// StoreBackend selects which store.Store implementation cmd/kerneld wires
// up.
type StoreBackend string

const (
	BackendMemory   StoreBackend = "memory"
	BackendPostgres StoreBackend = "postgres"
)

// Config is the kernel's full runtime configuration.
type Config struct {
	Instrument string

	StoreBackend StoreBackend
	PostgresDSN  string

	RedisEnabled bool
	RedisAddr    string
	RedisTTL     time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	TracingEnabled bool

	LiquidationScanInterval time.Duration

	InsuranceFundSeed decimal.Decimal

	MaintenanceMarginConservative decimal.Decimal
	MaintenanceMarginModerate     decimal.Decimal
	MaintenanceMarginAggressive   decimal.Decimal
	MaintenanceMarginDegen        decimal.Decimal

	StartingMarkPrice     decimal.Decimal
	TickSize              decimal.Decimal
	MinOrderSize          decimal.Decimal
	MaxLeverage           int
	StartingTraderBalance decimal.Decimal
}

// Load reads .env (if present) and the process environment, applying
// defaults for anything left unset. A missing .env file is logged, not
// fatal.
func Load(logger *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("INSTRUMENT", "R.index")
	v.SetDefault("STORE_BACKEND", string(BackendMemory))
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_TTL_MS", 5000)
	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "rindex.events")
	v.SetDefault("TRACING_ENABLED", false)
	v.SetDefault("LIQUIDATION_SCAN_INTERVAL_MS", 100)
	v.SetDefault("INSURANCE_FUND_SEED", "1000000")
	v.SetDefault("MAINTENANCE_MARGIN_CONSERVATIVE", "0.005")
	v.SetDefault("MAINTENANCE_MARGIN_MODERATE", "0.01")
	v.SetDefault("MAINTENANCE_MARGIN_AGGRESSIVE", "0.02")
	v.SetDefault("MAINTENANCE_MARGIN_DEGEN", "0.05")
	v.SetDefault("STARTING_MARK_PRICE", "1000")
	v.SetDefault("TICK_SIZE", "0.01")
	v.SetDefault("MIN_ORDER_SIZE", "0.001")
	v.SetDefault("MAX_LEVERAGE", 125)
	v.SetDefault("STARTING_TRADER_BALANCE", "10000")

	if err := v.ReadInConfig(); err != nil {
		if logger != nil {
			logger.Warn("config: no .env file found, using environment and defaults", zap.Error(err))
		}
	}

	fundSeed, err := decimal.NewFromString(v.GetString("INSURANCE_FUND_SEED"))
	if err != nil {
		return nil, fmt.Errorf("config: INSURANCE_FUND_SEED: %w", err)
	}
	margins, err := parseMargins(v)
	if err != nil {
		return nil, err
	}
	startingMarkPrice, err := decimal.NewFromString(v.GetString("STARTING_MARK_PRICE"))
	if err != nil {
		return nil, fmt.Errorf("config: STARTING_MARK_PRICE: %w", err)
	}
	tickSize, err := decimal.NewFromString(v.GetString("TICK_SIZE"))
	if err != nil {
		return nil, fmt.Errorf("config: TICK_SIZE: %w", err)
	}
	minOrderSize, err := decimal.NewFromString(v.GetString("MIN_ORDER_SIZE"))
	if err != nil {
		return nil, fmt.Errorf("config: MIN_ORDER_SIZE: %w", err)
	}
	startingTraderBalance, err := decimal.NewFromString(v.GetString("STARTING_TRADER_BALANCE"))
	if err != nil {
		return nil, fmt.Errorf("config: STARTING_TRADER_BALANCE: %w", err)
	}

	cfg := &Config{
		Instrument:                    v.GetString("INSTRUMENT"),
		StoreBackend:                  StoreBackend(v.GetString("STORE_BACKEND")),
		PostgresDSN:                   v.GetString("POSTGRES_DSN"),
		RedisEnabled:                  v.GetBool("REDIS_ENABLED"),
		RedisAddr:                     v.GetString("REDIS_ADDR"),
		RedisTTL:                      time.Duration(v.GetInt("REDIS_TTL_MS")) * time.Millisecond,
		KafkaEnabled:                  v.GetBool("KAFKA_ENABLED"),
		KafkaBrokers:                  v.GetStringSlice("KAFKA_BROKERS"),
		KafkaTopic:                    v.GetString("KAFKA_TOPIC"),
		TracingEnabled:                v.GetBool("TRACING_ENABLED"),
		LiquidationScanInterval:       time.Duration(v.GetInt("LIQUIDATION_SCAN_INTERVAL_MS")) * time.Millisecond,
		InsuranceFundSeed:             fundSeed,
		MaintenanceMarginConservative: margins.conservative,
		MaintenanceMarginModerate:     margins.moderate,
		MaintenanceMarginAggressive:   margins.aggressive,
		MaintenanceMarginDegen:        margins.degen,
		StartingMarkPrice:             startingMarkPrice,
		TickSize:                      tickSize,
		MinOrderSize:                  minOrderSize,
		MaxLeverage:                   v.GetInt("MAX_LEVERAGE"),
		StartingTraderBalance:         startingTraderBalance,
	}
	if len(cfg.KafkaBrokers) == 0 {
		cfg.KafkaBrokers = []string{v.GetString("KAFKA_BROKERS")}
	}
	return cfg, nil
}

// MarginSchedule converts the loaded maintenance-margin fractions into a
// risk.MarginSchedule.
func (c *Config) MarginSchedule() risk.MarginSchedule {
	return risk.MarginSchedule{
		Conservative: c.MaintenanceMarginConservative,
		Moderate:     c.MaintenanceMarginModerate,
		Aggressive:   c.MaintenanceMarginAggressive,
		Degen:        c.MaintenanceMarginDegen,
	}
}

type marginSet struct {
	conservative, moderate, aggressive, degen decimal.Decimal
}

func parseMargins(v *viper.Viper) (marginSet, error) {
	var m marginSet
	var err error
	if m.conservative, err = decimal.NewFromString(v.GetString("MAINTENANCE_MARGIN_CONSERVATIVE")); err != nil {
		return m, fmt.Errorf("config: MAINTENANCE_MARGIN_CONSERVATIVE: %w", err)
	}
	if m.moderate, err = decimal.NewFromString(v.GetString("MAINTENANCE_MARGIN_MODERATE")); err != nil {
		return m, fmt.Errorf("config: MAINTENANCE_MARGIN_MODERATE: %w", err)
	}
	if m.aggressive, err = decimal.NewFromString(v.GetString("MAINTENANCE_MARGIN_AGGRESSIVE")); err != nil {
		return m, fmt.Errorf("config: MAINTENANCE_MARGIN_AGGRESSIVE: %w", err)
	}
	if m.degen, err = decimal.NewFromString(v.GetString("MAINTENANCE_MARGIN_DEGEN")); err != nil {
		return m, fmt.Errorf("config: MAINTENANCE_MARGIN_DEGEN: %w", err)
	}
	return m, nil
}
