package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/faustbrian/sequencer/internal/cache"
	"github.com/faustbrian/sequencer/internal/config"
	"github.com/faustbrian/sequencer/internal/eventbus"
	"github.com/faustbrian/sequencer/internal/guard"
	"github.com/faustbrian/sequencer/internal/logging"
	"github.com/faustbrian/sequencer/internal/metrics"
	"github.com/faustbrian/sequencer/internal/observability"
	"github.com/faustbrian/sequencer/internal/orchestrator"
	"github.com/faustbrian/sequencer/internal/runner"
	"github.com/faustbrian/sequencer/internal/sequencer"
	"github.com/faustbrian/sequencer/internal/store"
)

// app bundles everything a command needs once configuration is
// resolved: the store, the orchestrator, and a shutdown function.
type app struct {
	cfg          *config.Config
	store        store.OperationStore
	orchestrator *orchestrator.Orchestrator
	shutdown     func()
}

func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	config.LoadFromEnv(cfg)
	if storeDSN != "" {
		cfg.Store.DSN = storeDSN
	}
	if cfg.Runner.Parallelism <= 0 {
		cfg.Runner.Parallelism = runtime.GOMAXPROCS(0)
	}
	return cfg, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	}); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if cfg.Observability.Metrics.Enabled {
		metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
	}

	pgStore, err := store.NewPostgresStore(ctx, store.Config{
		DSN: cfg.Store.DSN,
		Tables: store.TableNames{
			Operations:      cfg.Store.OperationsTable,
			OperationErrors: cfg.Store.OperationErrorsTable,
		},
		PrimaryKeyType: cfg.Store.PrimaryKeyType,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sequencer.ErrStoreUnavailable, err)
	}

	var opStore store.OperationStore = pgStore
	if cfg.Cache.Redis.Enabled {
		redisCache := cache.NewRedisCache(cache.RedisCacheConfig{
			Addr:      cfg.Cache.Redis.Addr,
			Password:  cfg.Cache.Redis.Password,
			DB:        cfg.Cache.Redis.DB,
			KeyPrefix: cfg.Cache.Redis.Prefix,
		})
		opStore = store.NewCachedStore(pgStore, redisCache, cfg.Cache.Redis.TTL)
	}

	bus := eventbus.New()
	if cfg.Reporting.Pulse && cfg.Observability.Metrics.Enabled {
		bus.Register(metrics.NewSink())
	}
	if cfg.Reporting.Telescope && cfg.Observability.Tracing.Enabled {
		bus.Register(observability.NewSink())
	}

	guards := guard.NewChain()

	orch := orchestrator.New(runner.RealMode(opStore), guards, bus, orchestrator.Config{
		Parallelism:              cfg.Runner.Parallelism,
		DefaultMaxAttempts:       cfg.Runner.DefaultMaxAttempts,
		DefaultInitialBackoffMS:  cfg.Runner.DefaultInitialBackoffMS,
		DefaultBackoffMultiplier: cfg.Runner.DefaultBackoffMultiplier,
		DefaultMaxBackoffMS:      cfg.Runner.DefaultMaxBackoffMS,
	})

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.Shutdown(shutdownCtx)
		opStore.Close()
	}

	return &app{cfg: cfg, store: opStore, orchestrator: orch, shutdown: shutdown}, nil
}
