package domain

import (
	"context"
	"time"

	"clinicsync/internal/models"
)

// Queue is the change-capture queue of one store.
type Queue interface {
	ListUnprocessed(ctx context.Context, tenantID int64) ([]models.QueueItem, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	IncrementRetry(ctx context.Context, id, errorMessage string) error
	DeleteProcessedOlderThan(ctx context.Context, tenantID int64, cutoff time.Time) (int64, error)
	CountUnprocessed(ctx context.Context, tenantID int64) (int64, error)
}

// QueueInspector exposes the read-only queries used by operators.
type QueueInspector interface {
	CountUnprocessed(ctx context.Context, tenantID int64) (int64, error)
	ListFailed(ctx context.Context, tenantID int64) ([]models.QueueItem, error)
	ListQueue(ctx context.Context, tenantID int64, filter models.QueueFilter) ([]models.QueueItem, error)
}

// TickRunner performs one full synchronization pass for a tenant.
type TickRunner interface {
	Tick(ctx context.Context, tenantID int64) (models.TickReport, error)
}

// DeadLetterSink keeps queue items that were given up on.
type DeadLetterSink interface {
	Push(ctx context.Context, letter models.DeadLetter) error
	List(ctx context.Context, limit int64) ([]models.DeadLetter, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
