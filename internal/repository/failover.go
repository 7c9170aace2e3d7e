package repository

import (
	"context"
	"sync/atomic"
	"time"

	"streamqueue/internal/domain"
	"streamqueue/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateCache prefers the primary (redis) cache and falls back to the
// in-memory one when the primary errors, probing for recovery once a minute.
type FailoverStateCache struct {
	primary   domain.StateCache
	fallback  domain.StateCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck time.Time
}

func NewFailoverStateCache(primary, fallback domain.StateCache, logger *zerolog.Logger) *FailoverStateCache {
	return &FailoverStateCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateCache) GetState(ctx context.Context, shopID string) (*models.QueueState, error) {
	if !r.isDown.Load() {
		state, err := r.primary.GetState(ctx, shopID)
		if err == nil {
			return state, nil
		}
		r.logger.Error().Err(err).Msg("Primary state cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	// Try to recover after 1 minute
	if r.isDown.Load() && time.Since(r.lastCheck) > time.Minute {
		state, err := r.primary.GetState(ctx, shopID)
		if err == nil {
			r.isDown.Store(false)
			return state, nil
		}
		r.lastCheck = time.Now()
	}

	return r.fallback.GetState(ctx, shopID)
}

func (r *FailoverStateCache) SetState(ctx context.Context, shopID string, state *models.QueueState) error {
	if !r.isDown.Load() {
		err := r.primary.SetState(ctx, shopID, state)
		if err == nil {
			return nil
		}
		r.logger.Error().Err(err).Msg("Primary state cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.SetState(ctx, shopID, state)
}

func (r *FailoverStateCache) Invalidate(ctx context.Context, shopID string) error {
	if !r.isDown.Load() {
		if err := r.primary.Invalidate(ctx, shopID); err != nil {
			r.logger.Error().Err(err).Msg("Primary state cache failed, falling back to memory")
			r.isDown.Store(true)
			r.lastCheck = time.Now()
		}
	}

	// Invalidation must reach the fallback too; stale overlay state is
	// worse than a cache miss.
	return r.fallback.Invalidate(ctx, shopID)
}

func (r *FailoverStateCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.logger.Error().Err(err).Msg("Primary state cache failed, falling back to memory")
		r.isDown.Store(true)
		r.lastCheck = time.Now()
	}

	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
