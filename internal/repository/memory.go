package repository

import (
	"context"
	"sync"
	"time"

	"streamqueue/internal/models"
)

type cachedState struct {
	state     *models.QueueState
	expiresAt time.Time
}

// MemoryStateCache is the in-process fallback used when redis is absent or
// unreachable.
type MemoryStateCache struct {
	states     sync.Map
	rateLimits sync.Map
	ttl        time.Duration
}

func NewMemoryStateCache(ttl time.Duration) *MemoryStateCache {
	return &MemoryStateCache{
		ttl: ttl,
	}
}

func (r *MemoryStateCache) GetState(ctx context.Context, shopID string) (*models.QueueState, error) {
	val, ok := r.states.Load(shopID)
	if !ok {
		return nil, nil
	}
	cached := val.(*cachedState)
	if time.Now().After(cached.expiresAt) {
		r.states.Delete(shopID)
		return nil, nil
	}
	return cached.state, nil
}

func (r *MemoryStateCache) SetState(ctx context.Context, shopID string, state *models.QueueState) error {
	r.states.Store(shopID, &cachedState{state: state, expiresAt: time.Now().Add(r.ttl)})
	return nil
}

func (r *MemoryStateCache) Invalidate(ctx context.Context, shopID string) error {
	r.states.Delete(shopID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateCache) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(key)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(key, entry)
	return entry.count <= limit, nil
}
