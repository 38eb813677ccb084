package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/platform/apperr"

	"github.com/jackc/pgx/v5"
)

// LoadAlgorithmConfig implements domain.ConfigRepository.
func (r *Repository) LoadAlgorithmConfig(ctx context.Context) (domain.AlgorithmConfig, bool, error) {
	var (
		settings []byte
		cfg      domain.AlgorithmConfig
		version  int64
	)
	err := r.pool.QueryRow(ctx, `
		SELECT settings, version, updated_at, updated_by
		FROM algorithm_config
		WHERE id = 1
	`).Scan(&settings, &version, &cfg.UpdatedAt, &cfg.UpdatedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AlgorithmConfig{}, false, nil
	}
	if err != nil {
		return domain.AlgorithmConfig{}, false, storeErr("load algorithm config", err)
	}

	updatedAt, updatedBy := cfg.UpdatedAt, cfg.UpdatedBy
	if err := json.Unmarshal(settings, &cfg); err != nil {
		return domain.AlgorithmConfig{}, false, fmt.Errorf("decode algorithm config: %w", err)
	}
	cfg.Version = version
	cfg.UpdatedAt = updatedAt
	cfg.UpdatedBy = updatedBy
	return cfg, true, nil
}

// SeedAlgorithmConfig implements domain.ConfigRepository.
func (r *Repository) SeedAlgorithmConfig(ctx context.Context, cfg domain.AlgorithmConfig) (domain.AlgorithmConfig, error) {
	settings, err := json.Marshal(cfg)
	if err != nil {
		return domain.AlgorithmConfig{}, fmt.Errorf("encode algorithm config: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO algorithm_config (id, settings, version, updated_at)
		VALUES (1, $1, 1, $2)
		ON CONFLICT (id) DO NOTHING
	`, settings, cfg.UpdatedAt)
	if err != nil {
		return domain.AlgorithmConfig{}, storeErr("seed algorithm config", err)
	}

	stored, found, err := r.LoadAlgorithmConfig(ctx)
	if err != nil {
		return domain.AlgorithmConfig{}, err
	}
	if !found {
		return domain.AlgorithmConfig{}, apperr.Internal("algorithm config missing after seed")
	}
	return stored, nil
}

// SaveAlgorithmConfig implements domain.ConfigRepository.
func (r *Repository) SaveAlgorithmConfig(ctx context.Context, cfg domain.AlgorithmConfig, expectedVersion int64) (domain.AlgorithmConfig, error) {
	settings, err := json.Marshal(cfg)
	if err != nil {
		return domain.AlgorithmConfig{}, fmt.Errorf("encode algorithm config: %w", err)
	}

	var updatedBy any
	if cfg.UpdatedBy != nil {
		updatedBy = *cfg.UpdatedBy
	}
	var version int64
	err = r.pool.QueryRow(ctx, `
		UPDATE algorithm_config
		SET settings = $1, version = version + 1, updated_at = $2, updated_by = $3
		WHERE id = 1 AND version = $4
		RETURNING version
	`, settings, cfg.UpdatedAt, updatedBy, expectedVersion).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AlgorithmConfig{}, apperr.Conflict("algorithm config was modified concurrently")
	}
	if err != nil {
		return domain.AlgorithmConfig{}, storeErr("save algorithm config", err)
	}

	cfg.Version = version
	return cfg, nil
}
