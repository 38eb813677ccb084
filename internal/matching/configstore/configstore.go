// Package configstore owns the live AlgorithmConfig snapshot. Readers get an
// immutable copy through Current; updates are validated as a whole before
// they are persisted and swapped in, so an in-flight dispatch never sees a
// half-applied or invalid config. Other instances pick changes up through a
// Redis notification and a periodic refresh.
package configstore

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"lead_distribution_backend/internal/events"
	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"
	"lead_distribution_backend/platform/logger"
	"lead_distribution_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// DefaultChannel is the Redis channel carrying config version notifications.
const DefaultChannel = "matching:algorithm_config"

const msgInvalidConfig = "invalid algorithm config"

// Store is safe for concurrent use.
type Store struct {
	repo     domain.ConfigRepository
	val      *validator.Validator
	log      *logger.Logger
	bus      events.Bus
	rdb      redis.UniversalClient
	channel  string
	defaults domain.AlgorithmConfig
	current  atomic.Pointer[domain.AlgorithmConfig]
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRedis enables cross-instance change notifications.
func WithRedis(rdb redis.UniversalClient, channel string) Option {
	return func(s *Store) {
		s.rdb = rdb
		if channel != "" {
			s.channel = channel
		}
	}
}

// WithDefaults replaces the factory defaults seeded on first start.
func WithDefaults(cfg domain.AlgorithmConfig) Option {
	return func(s *Store) { s.defaults = cfg }
}

// WithEventBus publishes AlgorithmConfigUpdated after each saved update.
func WithEventBus(bus events.Bus) Option {
	return func(s *Store) { s.bus = bus }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store holding the defaults until Load succeeds.
func New(repo domain.ConfigRepository, val *validator.Validator, log *logger.Logger, opts ...Option) *Store {
	s := &Store{
		repo:     repo,
		val:      val,
		log:      log,
		channel:  DefaultChannel,
		defaults: domain.DefaultAlgorithmConfig(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	initial := s.defaults
	s.current.Store(&initial)
	return s
}

// Current returns the live snapshot.
func (s *Store) Current() domain.AlgorithmConfig {
	return *s.current.Load()
}

// Load reads the persisted config, seeding the defaults when none exists.
func (s *Store) Load(ctx context.Context) error {
	cfg, found, err := s.repo.LoadAlgorithmConfig(ctx)
	if err != nil {
		return fmt.Errorf("load algorithm config: %w", err)
	}
	if !found {
		if err := s.Validate(s.defaults); err != nil {
			return fmt.Errorf("default algorithm config: %w", err)
		}
		seed := s.defaults
		seed.UpdatedAt = s.now()
		cfg, err = s.repo.SeedAlgorithmConfig(ctx, seed)
		if err != nil {
			return fmt.Errorf("seed algorithm config: %w", err)
		}
		s.log.Info("algorithm config seeded", "version", cfg.Version)
	} else if err := s.Validate(cfg); err != nil {
		// A row that fails today's schema keeps the previous snapshot live.
		return fmt.Errorf("persisted algorithm config: %w", err)
	}
	s.swap(cfg)
	return nil
}

// Refresh reloads from the repository and swaps when a newer version exists.
func (s *Store) Refresh(ctx context.Context) (bool, error) {
	cfg, found, err := s.repo.LoadAlgorithmConfig(ctx)
	if err != nil {
		return false, fmt.Errorf("refresh algorithm config: %w", err)
	}
	if !found || cfg.Version <= s.Current().Version {
		return false, nil
	}
	if err := s.Validate(cfg); err != nil {
		return false, fmt.Errorf("refresh algorithm config: %w", err)
	}
	if !s.swapIfNewer(cfg) {
		return false, nil
	}
	s.log.Info("algorithm config reloaded", "version", cfg.Version)
	return true, nil
}

// Update applies patch on top of the persisted version expectedVersion.
// A stale expectedVersion is a conflict; an invalid result is rejected
// before anything is written.
func (s *Store) Update(ctx context.Context, patch domain.AlgorithmConfigPatch, expectedVersion int64, actor uuid.UUID) (domain.AlgorithmConfig, error) {
	if patch.Weights != nil && !patch.Weights.Complete() {
		return domain.AlgorithmConfig{}, apperr.Validation(msgInvalidConfig).
			WithDetails(map[string]string{"weights": "all five weights are required"})
	}

	stored, found, err := s.repo.LoadAlgorithmConfig(ctx)
	if err != nil {
		return domain.AlgorithmConfig{}, fmt.Errorf("update algorithm config: %w", err)
	}
	if !found {
		return domain.AlgorithmConfig{}, apperr.Conflict("algorithm config has not been initialised")
	}
	if stored.Version != expectedVersion {
		return domain.AlgorithmConfig{}, apperr.Conflict("algorithm config was modified concurrently").
			WithDetails(map[string]int64{"currentVersion": stored.Version})
	}

	next := stored.Apply(patch)
	if err := s.Validate(next); err != nil {
		return domain.AlgorithmConfig{}, err
	}
	next.UpdatedAt = s.now()
	next.UpdatedBy = &actor

	saved, err := s.repo.SaveAlgorithmConfig(ctx, next, expectedVersion)
	if err != nil {
		return domain.AlgorithmConfig{}, err
	}
	s.swapIfNewer(saved)
	s.notify(ctx, saved)
	return saved, nil
}

// Validate checks field ranges and the weight sum.
func (s *Store) Validate(cfg domain.AlgorithmConfig) error {
	if err := s.val.Struct(cfg); err != nil {
		return apperr.Wrap(apperr.KindValidation, msgInvalidConfig, err).WithDetails(validator.FieldErrors(err))
	}
	if total := cfg.Weights.Total(); total != domain.WeightSum {
		return apperr.Validation(msgInvalidConfig).
			WithDetails(map[string]string{"weights": fmt.Sprintf("must sum to %d, got %d", domain.WeightSum, total)})
	}
	return nil
}

// Watch keeps the snapshot fresh until ctx is cancelled: it refreshes on
// every Redis notification and on each interval tick.
func (s *Store) Watch(ctx context.Context, interval time.Duration) {
	var messages <-chan *redis.Message
	if s.rdb != nil {
		sub := s.rdb.Subscribe(ctx, s.channel)
		defer sub.Close()
		messages = sub.Channel()
	}

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			if v, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil && v <= s.Current().Version {
				continue
			}
			s.refreshOrWarn(ctx)
		case <-tick:
			s.refreshOrWarn(ctx)
		}
	}
}

func (s *Store) refreshOrWarn(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.log.Warn("algorithm config refresh failed", "error", err)
	}
}

func (s *Store) swap(cfg domain.AlgorithmConfig) {
	next := cfg
	s.current.Store(&next)
}

// swapIfNewer installs cfg unless a snapshot with the same or a higher
// version is already live. Refresh and Update race on current.
func (s *Store) swapIfNewer(cfg domain.AlgorithmConfig) bool {
	next := cfg
	for {
		live := s.current.Load()
		if live.Version >= next.Version {
			return false
		}
		if s.current.CompareAndSwap(live, &next) {
			return true
		}
	}
}

func (s *Store) notify(ctx context.Context, cfg domain.AlgorithmConfig) {
	if s.rdb != nil {
		if err := s.rdb.Publish(ctx, s.channel, strconv.FormatInt(cfg.Version, 10)).Err(); err != nil {
			s.log.Warn("algorithm config notification failed", "error", err, "version", cfg.Version)
		}
	}
	if s.bus != nil && cfg.UpdatedBy != nil {
		s.bus.Publish(ctx, events.AlgorithmConfigUpdated{
			BaseEvent: events.NewBaseEvent(),
			Version:   cfg.Version,
			UpdatedBy: *cfg.UpdatedBy,
		})
	}
}

// LoadDefaultsFile reads factory defaults from a YAML file. Keys missing
// from the file keep the built-in defaults.
func LoadDefaultsFile(path string) (domain.AlgorithmConfig, error) {
	cfg := domain.DefaultAlgorithmConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read algorithm defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse algorithm defaults: %w", err)
	}
	return cfg, nil
}
