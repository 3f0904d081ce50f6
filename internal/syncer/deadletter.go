package syncer

import (
	"context"
	"time"

	"clinicsync/internal/domain"
	"clinicsync/internal/events"
	"clinicsync/internal/models"
)

// SubscribeDeadLetters stores every exhausted item in sink.
func SubscribeDeadLetters(bus *events.EventBus, sink domain.DeadLetterSink, timeout time.Duration) {
	bus.Subscribe(events.EventItemExhausted, func(event *events.Event) error {
		var p events.ItemEventPayload
		if err := event.Decode(&p); err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		return sink.Push(ctx, models.DeadLetter{
			ItemID:     p.ItemID,
			EntityType: p.EntityType,
			EntityID:   p.EntityID,
			TenantID:   p.TenantID,
			ChangeKind: p.ChangeKind,
			Direction:  p.Direction,
			RetryCount: p.RetryCount,
			Error:      p.Error,
			FailedAt:   event.CreatedAt.UTC(),
		})
	})
}
