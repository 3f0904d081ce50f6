package events

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

const (
	EventItemSynced    = "sync.item_synced"
	EventItemRetried   = "sync.item_retried"
	EventItemExhausted = "sync.item_exhausted"
	EventItemSkipped   = "sync.item_skipped"
	EventTickCompleted = "sync.tick_completed"
)

// ItemEventPayload describes the queue item a sync outcome refers to.
type ItemEventPayload struct {
	ItemID     string    `json:"item_id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	TenantID   int64     `json:"tenant_id"`
	ChangeKind string    `json:"change_kind"`
	Direction  string    `json:"direction"`
	RetryCount int       `json:"retry_count"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TickEventPayload summarizes one synchronization tick.
type TickEventPayload struct {
	TenantID  int64         `json:"tenant_id"`
	Processed int           `json:"processed"`
	Retried   int           `json:"retried"`
	Exhausted int           `json:"exhausted"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	onError     func(event *Event, err error)
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets a callback for handler failures. Without it errors are dropped.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	onError := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
