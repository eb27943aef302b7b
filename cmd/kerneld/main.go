// Command kerneld wires up and runs the R.index matching kernel: config
// load, store selection, kernel construction, state recovery, and the
// liquidation monitor's background loop. It exposes no network surface
// of its own — the HTTP/WebSocket API, auth, and web UI are external
// collaborators that embed or call this package (spec.md's stated
// Non-goals).
//
// Grounded on
// repo/services/marketfeeds/services/bookkeeper/cmd/bookkeeper/main.go's
// bootstrap shape: signal.NotifyContext for graceful shutdown, an otel
// setup/shutdown pair, a logger built once at the top, and a single
// "initialize then run" main body.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rindex/perpkernel/internal/config"
	"github.com/rindex/perpkernel/internal/eventhub/kafkasink"
	"github.com/rindex/perpkernel/internal/kernel"
	"github.com/rindex/perpkernel/internal/store"
	"github.com/rindex/perpkernel/internal/store/gormstore"
	"github.com/rindex/perpkernel/internal/store/memstore"
	"github.com/rindex/perpkernel/internal/store/rediscache"
	"github.com/rindex/perpkernel/internal/tracing"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("kerneld: exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(logger)
	if err != nil {
		return err
	}

	tracingShutdown, err := tracing.Setup(ctx, cfg.TracingEnabled)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, tracingShutdown(context.Background())) }()

	backingStore, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}

	var sink *kafkasink.Sink
	if cfg.KafkaEnabled {
		sink = kafkasink.New(kafkasink.DefaultConfig(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
		defer sink.Close()
	}

	k := kernel.New(kernel.Config{
		Instrument:              cfg.Instrument,
		Schedule:                cfg.MarginSchedule(),
		Store:                   backingStore,
		InsuranceFundSeed:       cfg.InsuranceFundSeed,
		LiquidationScanInterval: cfg.LiquidationScanInterval,
		Logger:                  logger,
		StartingMarkPrice:       cfg.StartingMarkPrice,
		TickSize:                cfg.TickSize,
		MinOrderSize:            cfg.MinOrderSize,
		MaxLeverage:             cfg.MaxLeverage,
	})
	defer k.Close()

	if err := k.Recover(ctx); err != nil {
		return err
	}

	if sink != nil {
		go sink.Run(ctx, k.Hub(), "")
	}

	logger.Info("kerneld: ready", zap.String("instrument", cfg.Instrument))
	k.Run(ctx)
	logger.Info("kerneld: shutting down")
	return nil
}

func buildStore(cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	var backing store.Store
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			return nil, err
		}
		gs := gormstore.New(db)
		if err := gs.AutoMigrate(); err != nil {
			return nil, err
		}
		backing = gs
	default:
		logger.Info("kerneld: using in-memory store")
		backing = memstore.New()
	}

	if cfg.RedisEnabled {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		backing = rediscache.New(backing, rdb, cfg.RedisTTL)
	}
	return backing, nil
}
