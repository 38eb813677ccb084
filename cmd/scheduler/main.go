package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_distribution_backend/internal/events"
	"lead_distribution_backend/internal/matching/configstore"
	"lead_distribution_backend/internal/matching/dispatch"
	"lead_distribution_backend/internal/matching/repository"
	"lead_distribution_backend/internal/matching/sweeper"
	"lead_distribution_backend/internal/scheduler"
	"lead_distribution_backend/platform/config"
	"lead_distribution_backend/platform/db"
	"lead_distribution_backend/platform/logger"
	"lead_distribution_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler")
	}

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.DatabaseError("connect", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	events.SubscribeAll(eventBus, events.Names, events.AuditLogger(log))
	defer eventBus.Wait()

	rdb, err := scheduler.NewRedisClient(cfg)
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	repo := repository.New(pool)
	configOpts := []configstore.Option{configstore.WithRedis(rdb, configstore.DefaultChannel)}
	if path := cfg.GetAlgorithmDefaultsFile(); path != "" {
		defaults, err := configstore.LoadDefaultsFile(path)
		if err != nil {
			log.Error("failed to read algorithm defaults", "error", err, "path", path)
			panic("failed to read algorithm defaults: " + err.Error())
		}
		configOpts = append(configOpts, configstore.WithDefaults(defaults))
	}
	configs := configstore.New(repo, validator.New(), log, configOpts...)
	if err := withRetry(ctx, log, "algorithm config", 5, 2*time.Second, func() error {
		return configs.Load(ctx)
	}); err != nil {
		log.Error("failed to load algorithm config", "error", err)
		panic("failed to load algorithm config: " + err.Error())
	}
	go configs.Watch(ctx, cfg.GetConfigRefreshInterval())

	dispatcher := dispatch.New(repo, configs, dispatch.DefaultCatalog(), eventBus, log)
	sw := sweeper.New(repo, configs, dispatcher, eventBus, log,
		sweeper.WithBatchSize(cfg.GetSweepBatchSize()),
		sweeper.WithConcurrency(cfg.GetSweepConcurrency()),
	)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()
	go scheduler.NewSweepTicker(client, log, cfg.GetSweepInterval()).Run(ctx)

	worker, err := scheduler.NewWorker(cfg, dispatcher, sw, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
