package events

import (
	"errors"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe(EventItemExhausted, handler)

	payload := ItemEventPayload{ItemID: "q-1", EntityType: "Invoice", TenantID: 7, RetryCount: 3, Error: "boom"}
	err := bus.PublishJSON(EventItemExhausted, payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != EventItemExhausted {
		t.Errorf("expected type %s, got %s", EventItemExhausted, received.Type)
	}

	var decoded ItemEventPayload
	if err := received.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded.ItemID != "q-1" || decoded.RetryCount != 3 || decoded.Error != "boom" {
		t.Errorf("unexpected payload: %+v", decoded)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	var reported error
	var secondCalled bool

	bus.OnError(func(_ *Event, err error) { reported = err })
	bus.Subscribe("event", func(_ *Event) error { return errors.New("sink down") })
	bus.Subscribe("event", func(_ *Event) error { secondCalled = true; return nil })

	bus.Publish(&Event{Type: "event"})

	if reported == nil || reported.Error() != "sink down" {
		t.Errorf("expected handler error to be reported, got %v", reported)
	}
	if !secondCalled {
		t.Errorf("expected later handlers to run after a failure")
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	bus.Publish(&Event{Type: "unknown"})
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestNilBusPublishJSON(t *testing.T) {
	var bus *EventBus
	if err := bus.PublishJSON(EventTickCompleted, TickEventPayload{TenantID: 1}); err != nil {
		t.Errorf("expected nil bus to ignore events, got %v", err)
	}
}
