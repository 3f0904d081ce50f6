package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/database"
	"clinicsync/internal/domain"
	"clinicsync/internal/events"
	"clinicsync/internal/metrics"
	"clinicsync/internal/models"

	"github.com/rs/zerolog"
)

// MaxRetries is the number of failed attempts after which an item is given up.
const MaxRetries = 3

// Orchestrator drains both queues, local first, one item at a time.
type Orchestrator struct {
	mu sync.Mutex

	stores   map[models.Side]*database.DB
	queues   map[models.Side]domain.Queue
	registry *Registry
	cleaner  *Cleaner
	events   domain.EventPublisher

	itemTimeout time.Duration
	logger      *zerolog.Logger
	now         func() time.Time
}

func NewOrchestrator(local, cloud *database.DB, registry *Registry, bus *events.EventBus, cfg config.EventBasedConfig, logger *zerolog.Logger) *Orchestrator {
	itemTimeout := cfg.ItemTimeout
	if itemTimeout <= 0 {
		itemTimeout = config.DefaultItemTimeout
	}
	queues := map[models.Side]domain.Queue{
		models.SideLocal: local,
		models.SideCloud: cloud,
	}

	o := &Orchestrator{
		stores: map[models.Side]*database.DB{
			models.SideLocal: local,
			models.SideCloud: cloud,
		},
		queues:      queues,
		registry:    registry,
		cleaner:     NewCleaner(queues, cfg.Retention(), logger),
		itemTimeout: itemTimeout,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	// a nil *EventBus must stay a nil interface
	if bus != nil {
		o.events = bus
	}
	return o
}

// Cleaner exposes the retention task so it can be run on its own.
func (o *Orchestrator) Cleaner() *Cleaner {
	return o.cleaner
}

// Tick runs one full synchronization for the tenant: the local queue is
// applied to the cloud, then the cloud queue to the local store, then old
// processed items are purged. Concurrent calls are serialized.
func (o *Orchestrator) Tick(ctx context.Context, tenantID int64) (models.TickReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	report := models.TickReport{TenantID: tenantID, StartedAt: start.UTC()}

	var errs []error
	for _, dir := range []models.Direction{models.LocalToCloud, models.CloudToLocal} {
		pass, err := o.drain(ctx, tenantID, dir)
		if err != nil {
			pass.Error = err.Error()
			errs = append(errs, err)
		}
		report.Passes = append(report.Passes, pass)
	}

	report.RetentionDeleted = o.cleaner.Run(ctx, tenantID)
	report.Duration = time.Since(start)
	metrics.ObserveTick(report.Duration)

	totals := report.Totals()
	o.publish(events.EventTickCompleted, events.TickEventPayload{
		TenantID:  tenantID,
		Processed: totals.Processed,
		Retried:   totals.Retried,
		Exhausted: totals.Exhausted,
		Skipped:   totals.Skipped,
		Duration:  report.Duration,
	})

	if totals.Pending > 0 {
		o.logger.Info().
			Int64("account_id", tenantID).
			Int("processed", totals.Processed).
			Int("retried", totals.Retried).
			Int("exhausted", totals.Exhausted).
			Int("skipped", totals.Skipped).
			Dur("duration", report.Duration).
			Msg("sync tick completed")
	}

	return report, errors.Join(errs...)
}

func (o *Orchestrator) drain(ctx context.Context, tenantID int64, dir models.Direction) (models.PassReport, error) {
	origin := dir.Origin()
	queue := o.queues[origin]
	pass := models.PassReport{Direction: dir.String()}
	tenant := strconv.FormatInt(tenantID, 10)

	pending, err := queue.CountUnprocessed(ctx, tenantID)
	if err != nil {
		return pass, fmt.Errorf("%s: count pending items: %w", dir, err)
	}
	metrics.SetUnprocessed(string(origin), tenant, pending)
	pass.Pending = pending
	if pending == 0 {
		metrics.SetUnknownType(string(origin), tenant, 0)
		return pass, nil
	}

	items, err := queue.ListUnprocessed(ctx, tenantID)
	if err != nil {
		return pass, fmt.Errorf("%s: list pending items: %w", dir, err)
	}

	o.logger.Debug().
		Str("direction", dir.String()).
		Int("items", len(items)).
		Msg("draining sync queue")

	route := o.route(dir)
	for i := range items {
		if err := ctx.Err(); err != nil {
			return pass, fmt.Errorf("%s: %w", dir, err)
		}
		o.processItem(ctx, queue, items[i], route, &pass)
	}

	if left, err := queue.CountUnprocessed(ctx, tenantID); err == nil {
		metrics.SetUnprocessed(string(origin), tenant, left)
	}
	metrics.SetUnknownType(string(origin), tenant, pass.Skipped)
	if pass.Skipped > 0 {
		o.logger.Warn().
			Str("direction", dir.String()).
			Int("items", pass.Skipped).
			Msg("queue holds items of unknown entity type")
	}
	return pass, nil
}

func (o *Orchestrator) route(dir models.Direction) Route {
	if dir == models.CloudToLocal {
		return Route{Direction: dir, Source: o.stores[models.SideCloud], Destination: o.stores[models.SideLocal]}
	}
	return Route{Direction: dir, Source: o.stores[models.SideLocal], Destination: o.stores[models.SideCloud]}
}

func (o *Orchestrator) processItem(ctx context.Context, queue domain.Queue, item models.QueueItem, route Route, pass *models.PassReport) {
	logger := o.logger.With().
		Str("item_id", item.ID).
		Str("entity_type", string(item.EntityType)).
		Str("entity_id", item.EntityID).
		Str("change_type", string(item.ChangeKind)).
		Str("direction", route.Direction.String()).
		Logger()

	handler, ok := o.registry.Lookup(item.EntityType)
	if !ok {
		logger.Warn().Err(ErrUnknownEntityType).Msg("no sync handler for entity type, leaving item in queue")
		pass.Skipped++
		metrics.IncItem(route.Direction.String(), string(item.EntityType), metrics.OutcomeUnknown)
		o.publish(events.EventItemSkipped, o.itemPayload(item, route, ErrUnknownEntityType))
		return
	}

	// An earlier tick recorded the last retry but could not close the item.
	if item.RetryCount >= MaxRetries {
		o.exhaust(ctx, queue, item, route, errors.New(item.LastError()), pass, &logger)
		return
	}

	itemCtx, cancel := context.WithTimeout(ctx, o.itemTimeout)
	err := handler.Process(itemCtx, item, route)
	if err == nil && itemCtx.Err() != nil {
		err = itemCtx.Err()
	}
	cancel()

	if err != nil {
		o.fail(ctx, queue, item, route, err, pass, &logger)
		return
	}

	if err := queue.MarkProcessed(ctx, item.ID, o.now()); err != nil {
		logger.Error().Err(err).Msg("failed to mark sync item as processed")
		return
	}
	pass.Processed++
	metrics.IncItem(route.Direction.String(), string(item.EntityType), metrics.OutcomeProcessed)
	o.publish(events.EventItemSynced, o.itemPayload(item, route, nil))
	logger.Debug().Msg("sync item processed")
}

func (o *Orchestrator) fail(ctx context.Context, queue domain.Queue, item models.QueueItem, route Route, cause error, pass *models.PassReport, logger *zerolog.Logger) {
	if err := queue.IncrementRetry(ctx, item.ID, cause.Error()); err != nil {
		logger.Error().Err(err).AnErr("cause", cause).Msg("failed to record sync retry")
		return
	}
	item.RetryCount++
	msg := cause.Error()
	item.ErrorMessage = &msg

	if item.RetryCount < MaxRetries {
		pass.Retried++
		metrics.IncItem(route.Direction.String(), string(item.EntityType), metrics.OutcomeRetried)
		o.publish(events.EventItemRetried, o.itemPayload(item, route, cause))
		logger.Warn().Err(cause).Int("retry_count", item.RetryCount).Msg("sync item failed, will retry")
		return
	}

	o.exhaust(ctx, queue, item, route, cause, pass, logger)
}

func (o *Orchestrator) exhaust(ctx context.Context, queue domain.Queue, item models.QueueItem, route Route, cause error, pass *models.PassReport, logger *zerolog.Logger) {
	if err := queue.MarkProcessed(ctx, item.ID, o.now()); err != nil {
		logger.Error().Err(err).Msg("failed to close exhausted sync item")
		return
	}
	pass.Exhausted++
	metrics.IncItem(route.Direction.String(), string(item.EntityType), metrics.OutcomeExhausted)
	o.publish(events.EventItemExhausted, o.itemPayload(item, route, cause))
	logger.Error().Err(cause).Int("retry_count", item.RetryCount).Msg("max retries reached, marking as processed with error")
}

func (o *Orchestrator) itemPayload(item models.QueueItem, route Route, cause error) events.ItemEventPayload {
	p := events.ItemEventPayload{
		ItemID:     item.ID,
		EntityType: string(item.EntityType),
		EntityID:   item.EntityID,
		TenantID:   item.TenantID,
		ChangeKind: string(item.ChangeKind),
		Direction:  route.Direction.String(),
		RetryCount: item.RetryCount,
		CreatedAt:  item.CreatedAt,
	}
	if cause != nil {
		p.Error = cause.Error()
	}
	return p
}

func (o *Orchestrator) publish(eventType string, payload interface{}) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishJSON(eventType, payload); err != nil {
		o.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish sync event")
	}
}
