package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinicsync/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrInvalidQueueItem  = errors.New("invalid queue item")
	ErrQueueItemNotFound = errors.New("queue item not found")
)

const queueColumns = `id, entity_type, entity_id, account_id, change_type, created_at, processed, processed_at, retry_count, error_message, order_nb`

// Enqueue records one change in this store's queue.
func (db *DB) Enqueue(ctx context.Context, entityType models.EntityType, entityID string, tenantID int64, kind models.ChangeKind) (*models.QueueItem, error) {
	var item *models.QueueItem
	err := db.orm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		item, err = EnqueueTx(tx, entityType, entityID, tenantID, kind)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// EnqueueTx writes the queue row inside the caller's transaction so that it
// commits together with the business mutation it describes.
func EnqueueTx(tx *gorm.DB, entityType models.EntityType, entityID string, tenantID int64, kind models.ChangeKind) (*models.QueueItem, error) {
	if !entityType.Valid() {
		return nil, fmt.Errorf("%w: entity type %q", ErrInvalidQueueItem, entityType)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: change type %q", ErrInvalidQueueItem, kind)
	}
	if entityID == "" {
		return nil, fmt.Errorf("%w: empty entity id", ErrInvalidQueueItem)
	}

	item := &models.QueueItem{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		TenantID:   tenantID,
		ChangeKind: kind,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	// order_nb назначается внутри той же вставки
	query := `INSERT INTO sync_queue (id, entity_type, entity_id, account_id, change_type, created_at, processed, retry_count, order_nb)
              VALUES (?, ?, ?, ?, ?, ?, ?, 0, (SELECT COALESCE(MAX(order_nb), 0) + 1 FROM sync_queue))`
	err := tx.Exec(query,
		item.ID,
		string(item.EntityType),
		item.EntityID,
		item.TenantID,
		string(item.ChangeKind),
		item.CreatedAt,
		false,
	).Error
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue sync item: %w", err)
	}

	var seq int64
	if err := tx.Raw(`SELECT order_nb FROM sync_queue WHERE id = ?`, item.ID).Scan(&seq).Error; err != nil {
		return nil, fmt.Errorf("failed to read sync item sequence: %w", err)
	}
	item.Sequence = &seq

	return item, nil
}

// ListUnprocessed returns the tenant's pending items in processing order.
func (db *DB) ListUnprocessed(ctx context.Context, tenantID int64) ([]models.QueueItem, error) {
	return db.selectQueue(ctx, "list unprocessed",
		`WHERE account_id = ? AND processed = ? ORDER BY created_at ASC, order_nb ASC`,
		tenantID, false)
}

func (db *DB) ListUnprocessedByEntityType(ctx context.Context, tenantID int64, entityType models.EntityType) ([]models.QueueItem, error) {
	return db.selectQueue(ctx, "list unprocessed by entity type",
		`WHERE account_id = ? AND entity_type = ? AND processed = ? ORDER BY created_at ASC, order_nb ASC`,
		tenantID, string(entityType), false)
}

// ListFailed returns items that have recorded at least one failure, both the
// ones still waiting for a retry and the ones given up on.
func (db *DB) ListFailed(ctx context.Context, tenantID int64) ([]models.QueueItem, error) {
	return db.selectQueue(ctx, "list failed",
		`WHERE account_id = ? AND retry_count > 0 ORDER BY created_at DESC, order_nb DESC`,
		tenantID)
}

func (db *DB) ListCreatedAfter(ctx context.Context, tenantID int64, since time.Time) ([]models.QueueItem, error) {
	return db.selectQueue(ctx, "list created after",
		`WHERE account_id = ? AND created_at > ? ORDER BY created_at ASC, order_nb ASC`,
		tenantID, since.UTC())
}

// ListQueue returns the tenant's items matching filter in processing order.
func (db *DB) ListQueue(ctx context.Context, tenantID int64, filter models.QueueFilter) ([]models.QueueItem, error) {
	switch {
	case filter.Since.IsZero() && filter.EntityType != "":
		return db.ListUnprocessedByEntityType(ctx, tenantID, filter.EntityType)
	case filter.Since.IsZero():
		return db.ListUnprocessed(ctx, tenantID)
	}

	items, err := db.ListCreatedAfter(ctx, tenantID, filter.Since)
	if err != nil || filter.EntityType == "" {
		return items, err
	}
	matched := items[:0]
	for _, item := range items {
		if item.EntityType == filter.EntityType {
			matched = append(matched, item)
		}
	}
	return matched, nil
}

func (db *DB) selectQueue(ctx context.Context, op, where string, args ...interface{}) ([]models.QueueItem, error) {
	var items []models.QueueItem
	query := `SELECT ` + queueColumns + ` FROM sync_queue ` + where
	if err := db.orm.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to %s sync items: %w", op, err)
	}
	return items, nil
}

// MarkProcessed closes an item. The error message, if any, is kept for audit.
func (db *DB) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	res := db.orm.WithContext(ctx).Exec(
		`UPDATE sync_queue SET processed = ?, processed_at = ? WHERE id = ?`,
		true, at.UTC().Truncate(time.Microsecond), id,
	)
	if res.Error != nil {
		return fmt.Errorf("failed to mark sync item processed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrQueueItemNotFound, id)
	}
	return nil
}

// IncrementRetry records a failed attempt.
func (db *DB) IncrementRetry(ctx context.Context, id, errorMessage string) error {
	res := db.orm.WithContext(ctx).Exec(
		`UPDATE sync_queue SET retry_count = retry_count + 1, error_message = ? WHERE id = ?`,
		errorMessage, id,
	)
	if res.Error != nil {
		return fmt.Errorf("failed to increment sync item retry: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrQueueItemNotFound, id)
	}
	return nil
}

// DeleteProcessedOlderThan removes processed items of one tenant closed before cutoff.
func (db *DB) DeleteProcessedOlderThan(ctx context.Context, tenantID int64, cutoff time.Time) (int64, error) {
	res := db.orm.WithContext(ctx).Exec(
		`DELETE FROM sync_queue WHERE account_id = ? AND processed = ? AND processed_at < ?`,
		tenantID, true, cutoff.UTC(),
	)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete processed sync items: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (db *DB) CountUnprocessed(ctx context.Context, tenantID int64) (int64, error) {
	var count int64
	err := db.orm.WithContext(ctx).
		Raw(`SELECT COUNT(*) FROM sync_queue WHERE account_id = ? AND processed = ?`, tenantID, false).
		Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed sync items: %w", err)
	}
	return count, nil
}

// GetQueueItem loads one item by id; nil when absent.
func (db *DB) GetQueueItem(ctx context.Context, id string) (*models.QueueItem, error) {
	items, err := db.selectQueue(ctx, "get", `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}
