package domain

import (
	"context"
	"time"

	"streamqueue/internal/models"
)

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// StateCache holds rendered public queue state so the overlay's polling does
// not hit sqlite on every cycle.
type StateCache interface {
	GetState(ctx context.Context, shopID string) (*models.QueueState, error)
	SetState(ctx context.Context, shopID string, state *models.QueueState) error
	Invalidate(ctx context.Context, shopID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// HistoryArchiver receives entries that finished being served; the worker
// appends them to the external archive.
type HistoryArchiver interface {
	EnqueueEntry(ctx context.Context, shop *models.Shop, entry *models.QueueEntry) error
}

// SheetsWriter is the external archive the history worker talks to.
type SheetsWriter interface {
	AppendServedEntry(ctx context.Context, shopName string, entry *models.QueueEntry) error
}
