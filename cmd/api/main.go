package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead_distribution_backend/internal/events"
	apphttp "lead_distribution_backend/internal/http"
	"lead_distribution_backend/internal/http/router"
	"lead_distribution_backend/internal/matching"
	"lead_distribution_backend/internal/matching/configstore"
	"lead_distribution_backend/internal/matching/dispatch"
	"lead_distribution_backend/internal/matching/handler"
	"lead_distribution_backend/internal/matching/repository"
	"lead_distribution_backend/internal/matching/sweeper"
	"lead_distribution_backend/internal/scheduler"
	"lead_distribution_backend/migrations"
	"lead_distribution_backend/platform/config"
	"lead_distribution_backend/platform/db"
	"lead_distribution_backend/platform/logger"
	"lead_distribution_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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
	log.Info("database connection established")

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool, migrations.FS)
	}); err != nil {
		log.DatabaseError("migrate", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)
	events.SubscribeAll(eventBus, events.Names, events.AuditLogger(log))

	// Shared validator instance for dependency injection
	val := validator.New()

	repo := repository.New(pool)

	var rdb redis.UniversalClient
	if cfg.GetRedisURL() != "" {
		rdb, err = scheduler.NewRedisClient(cfg)
		if err != nil {
			log.Error("failed to initialize redis client", "error", err)
			panic("failed to initialize redis client: " + err.Error())
		}
		defer func() { _ = rdb.Close() }()
	}

	configs := initConfigStore(ctx, cfg, repo, val, eventBus, rdb, log)
	go configs.Watch(ctx, cfg.GetConfigRefreshInterval())

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	jobs, closeJobs := initJobs(ctx, cfg, repo, configs, eventBus, log)

	matchingModule := matching.NewModule(repo, configs, eventBus, jobs, val, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: pool,
		Modules: []apphttp.Module{
			matchingModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
	closeJobs()
	eventBus.Wait()
}

func initConfigStore(ctx context.Context, cfg *config.Config, repo *repository.Repository, val *validator.Validator, bus events.Bus, rdb redis.UniversalClient, log *logger.Logger) *configstore.Store {
	opts := []configstore.Option{configstore.WithEventBus(bus)}
	if path := cfg.GetAlgorithmDefaultsFile(); path != "" {
		defaults, err := configstore.LoadDefaultsFile(path)
		if err != nil {
			log.Error("failed to read algorithm defaults", "error", err, "path", path)
			panic("failed to read algorithm defaults: " + err.Error())
		}
		opts = append(opts, configstore.WithDefaults(defaults))
	}
	if rdb != nil {
		opts = append(opts, configstore.WithRedis(rdb, configstore.DefaultChannel))
	}

	store := configstore.New(repo, val, log, opts...)
	if err := withRetry(ctx, log, "algorithm config", 5, 2*time.Second, func() error {
		return store.Load(ctx)
	}); err != nil {
		log.Error("failed to load algorithm config", "error", err)
		panic("failed to load algorithm config: " + err.Error())
	}
	log.Info("algorithm config loaded", "version", store.Current().Version)
	return store
}

// initJobs returns the asynq client when Redis is configured. Without Redis,
// dispatches and sweeps run on background goroutines of this process and a
// local ticker drives the sweep.
func initJobs(ctx context.Context, cfg *config.Config, repo *repository.Repository, configs *configstore.Store, bus events.Bus, log *logger.Logger) (handler.Jobs, func()) {
	if cfg.GetRedisURL() != "" {
		client, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize scheduler client", "error", err)
			panic("failed to initialize scheduler client: " + err.Error())
		}
		return client, func() { _ = client.Close() }
	}

	log.Warn("REDIS_URL not configured; running dispatch and sweeps in-process")
	dispatcher := dispatch.New(repo, configs, dispatch.DefaultCatalog(), bus, log)
	sw := sweeper.New(repo, configs, dispatcher, bus, log,
		sweeper.WithBatchSize(cfg.GetSweepBatchSize()),
		sweeper.WithConcurrency(cfg.GetSweepConcurrency()),
	)
	inline := scheduler.NewInline(dispatcher, sw, log)
	go scheduler.NewSweepTicker(inline, log, cfg.GetSweepInterval()).Run(ctx)
	return inline, func() { _ = inline.Close() }
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
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
