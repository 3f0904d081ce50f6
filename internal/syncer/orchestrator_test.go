package syncer

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clinicsync/internal/events"
	"clinicsync/internal/metrics"
	"clinicsync/internal/models"
	"clinicsync/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryExhaustion(t *testing.T) {
	handler := &fakeHandler{
		entityType: models.EntityCustomer,
		fn: func(context.Context, models.QueueItem) error {
			return errors.New("cloud store unavailable")
		},
	}
	h := newHarness(t, NewRegistry(handler))
	sink := repository.NewMemoryDeadLetter(10)
	SubscribeDeadLetters(h.bus, sink, time.Second)

	item := h.enqueue(t, h.local, models.EntityCustomer, "c-1", models.ChangeUpdate)

	for i := 1; i <= 2; i++ {
		report := h.tick(t)
		assert.Equal(t, 1, report.Passes[0].Retried)
		got := h.queueItem(t, h.local, item.ID)
		assert.False(t, got.Processed)
		assert.Equal(t, i, got.RetryCount)
	}

	report := h.tick(t)
	assert.Equal(t, 1, report.Passes[0].Exhausted)

	got := h.queueItem(t, h.local, item.ID)
	assert.True(t, got.Processed)
	assert.NotNil(t, got.ProcessedAt)
	assert.Equal(t, MaxRetries, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "cloud store unavailable", *got.ErrorMessage)

	// never a fourth attempt
	h.tick(t)
	h.tick(t)
	assert.Equal(t, MaxRetries, handler.Calls())

	letters, err := sink.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, item.ID, letters[0].ItemID)
	assert.Equal(t, models.LocalToCloud.String(), letters[0].Direction)
	assert.Equal(t, MaxRetries, letters[0].RetryCount)
	assert.Equal(t, "cloud store unavailable", letters[0].Error)
}

func TestRecoversAfterTransientFailure(t *testing.T) {
	var failures atomic.Int32
	failures.Store(1)
	handler := &fakeHandler{
		entityType: models.EntityCustomer,
		fn: func(context.Context, models.QueueItem) error {
			if failures.Add(-1) >= 0 {
				return errors.New("timeout talking to store")
			}
			return nil
		},
	}
	h := newHarness(t, NewRegistry(handler))
	item := h.enqueue(t, h.local, models.EntityCustomer, "c-1", models.ChangeUpdate)

	h.tick(t)
	h.tick(t)

	got := h.queueItem(t, h.local, item.ID)
	assert.True(t, got.Processed)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "timeout talking to store", got.LastError())
}

func TestItemTimeoutIsRetried(t *testing.T) {
	handler := &fakeHandler{
		entityType: models.EntityCustomer,
		fn: func(ctx context.Context, _ models.QueueItem) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	h := newHarness(t, NewRegistry(handler))
	h.orch.itemTimeout = 20 * time.Millisecond
	item := h.enqueue(t, h.local, models.EntityCustomer, "c-1", models.ChangeUpdate)

	report := h.tick(t)
	assert.Equal(t, 1, report.Passes[0].Retried)

	got := h.queueItem(t, h.local, item.ID)
	assert.False(t, got.Processed)
	assert.Equal(t, 1, got.RetryCount)
	assert.Contains(t, got.LastError(), context.DeadlineExceeded.Error())
}

func TestUnknownEntityTypeStaysQueued(t *testing.T) {
	h := newHarness(t, NewRegistry())
	var skipped atomic.Int32
	h.bus.Subscribe(events.EventItemSkipped, func(*events.Event) error {
		skipped.Add(1)
		return nil
	})
	item := h.enqueue(t, h.local, models.EntityCustomer, "c-1", models.ChangeUpdate)

	for i := 0; i < 2; i++ {
		report := h.tick(t)
		assert.Equal(t, 1, report.Passes[0].Skipped)
	}

	got := h.queueItem(t, h.local, item.ID)
	assert.False(t, got.Processed)
	assert.Zero(t, got.RetryCount)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, int32(2), skipped.Load())
}

// unknownTypeGauge reads clinicsync_queue_unknown_type for the test tenant
// from the default registry.
func unknownTypeGauge(t *testing.T, side models.Side) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != "clinicsync_queue_unknown_type" {
			continue
		}
		for _, m := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range m.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["side"] == string(side) && labels["tenant"] == strconv.FormatInt(tenant, 10) {
				return m.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("no unknown type gauge for side %s", side)
	return 0
}

func TestUnknownEntityTypeIsCounted(t *testing.T) {
	metrics.Register()
	h := newHarness(t, NewRegistry())
	item := h.enqueue(t, h.local, models.EntityInvoice, "inv-1", models.ChangeUpdate)
	h.enqueue(t, h.local, models.EntityCustomer, "c-1", models.ChangeUpdate)

	h.tick(t)
	assert.Equal(t, float64(2), unknownTypeGauge(t, models.SideLocal))
	assert.Equal(t, float64(0), unknownTypeGauge(t, models.SideCloud))

	require.NoError(t, h.local.MarkProcessed(context.Background(), item.ID, time.Now()))
	report := h.tick(t)
	assert.Equal(t, 1, report.Passes[0].Skipped)
	assert.Equal(t, float64(1), unknownTypeGauge(t, models.SideLocal))
}

func TestFailureDoesNotAbortBatch(t *testing.T) {
	handler := &fakeHandler{
		entityType: models.EntityCustomer,
		fn: func(_ context.Context, item models.QueueItem) error {
			if item.EntityID == "bad" {
				return errors.New("boom")
			}
			return nil
		},
	}
	h := newHarness(t, NewRegistry(handler))
	first := h.enqueue(t, h.local, models.EntityCustomer, "good-1", models.ChangeUpdate)
	bad := h.enqueue(t, h.local, models.EntityCustomer, "bad", models.ChangeUpdate)
	last := h.enqueue(t, h.local, models.EntityCustomer, "good-2", models.ChangeUpdate)

	report := h.tick(t)

	assert.Equal(t, []string{"good-1", "bad", "good-2"}, handler.Seen())
	assert.Equal(t, 2, report.Passes[0].Processed)
	assert.Equal(t, 1, report.Passes[0].Retried)
	assert.True(t, h.queueItem(t, h.local, first.ID).Processed)
	assert.False(t, h.queueItem(t, h.local, bad.ID).Processed)
	assert.True(t, h.queueItem(t, h.local, last.ID).Processed)
}

func TestLocalPassRunsBeforeCloudPass(t *testing.T) {
	handler := &fakeHandler{entityType: models.EntityCustomer}
	h := newHarness(t, NewRegistry(handler))
	h.enqueue(t, h.cloud, models.EntityCustomer, "cloud-1", models.ChangeUpdate)
	h.enqueue(t, h.local, models.EntityCustomer, "local-1", models.ChangeUpdate)
	h.enqueue(t, h.local, models.EntityCustomer, "local-2", models.ChangeUpdate)

	report := h.tick(t)

	assert.Equal(t, []string{"local-1", "local-2", "cloud-1"}, handler.Seen())
	require.Len(t, report.Passes, 2)
	assert.Equal(t, models.LocalToCloud.String(), report.Passes[0].Direction)
	assert.Equal(t, int64(2), report.Passes[0].Pending)
	assert.Equal(t, models.CloudToLocal.String(), report.Passes[1].Direction)
	assert.Equal(t, 1, report.Passes[1].Processed)
}

func TestOtherTenantsAreIgnored(t *testing.T) {
	handler := &fakeHandler{entityType: models.EntityCustomer}
	h := newHarness(t, NewRegistry(handler))
	other, err := h.local.Enqueue(context.Background(), models.EntityCustomer, "c-9", tenant+1, models.ChangeUpdate)
	require.NoError(t, err)

	report := h.tick(t)

	assert.Zero(t, report.Passes[0].Pending)
	assert.Zero(t, handler.Calls())
	assert.False(t, h.queueItem(t, h.local, other.ID).Processed)
}

func TestTicksAreSerialized(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	handler := &fakeHandler{
		entityType: models.EntityCustomer,
		fn: func(context.Context, models.QueueItem) error {
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return errors.New("keep it queued")
		},
	}
	h := newHarness(t, NewRegistry(handler))
	h.enqueue(t, h.local, models.EntityCustomer, "c-1", models.ChangeUpdate)
	h.enqueue(t, h.local, models.EntityCustomer, "c-2", models.ChangeUpdate)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.orch.Tick(context.Background(), tenant)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	// 2 items, 3 attempts each, no matter how the 4 ticks interleave
	assert.Equal(t, 2*MaxRetries, handler.Calls())
}

func TestStoreFailureKeepsOtherPass(t *testing.T) {
	handler := &fakeHandler{entityType: models.EntityCustomer}
	h := newHarness(t, NewRegistry(handler))
	h.enqueue(t, h.cloud, models.EntityCustomer, "cloud-1", models.ChangeUpdate)
	require.NoError(t, h.local.Close())

	report, err := h.orch.Tick(context.Background(), tenant)

	require.Error(t, err)
	assert.NotEmpty(t, report.Passes[0].Error)
	assert.Empty(t, report.Passes[1].Error)
	assert.Equal(t, []string{"cloud-1"}, handler.Seen())
}

func TestCancelledTickLeavesItemsQueued(t *testing.T) {
	handler := &fakeHandler{entityType: models.EntityCustomer}
	h := newHarness(t, NewRegistry(handler))
	item := h.enqueue(t, h.local, models.EntityCustomer, "c-1", models.ChangeUpdate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.orch.Tick(ctx, tenant)

	assert.Error(t, err)
	assert.Zero(t, handler.Calls())
	assert.False(t, h.queueItem(t, h.local, item.ID).Processed)
}

func TestTickPublishesEvents(t *testing.T) {
	handler := &fakeHandler{entityType: models.EntityCustomer}
	h := newHarness(t, NewRegistry(handler))

	var synced []events.ItemEventPayload
	var ticks []events.TickEventPayload
	h.bus.Subscribe(events.EventItemSynced, func(e *events.Event) error {
		var p events.ItemEventPayload
		require.NoError(t, e.Decode(&p))
		synced = append(synced, p)
		return nil
	})
	h.bus.Subscribe(events.EventTickCompleted, func(e *events.Event) error {
		var p events.TickEventPayload
		require.NoError(t, e.Decode(&p))
		ticks = append(ticks, p)
		return nil
	})

	item := h.enqueue(t, h.cloud, models.EntityCustomer, "c-1", models.ChangeDelete)
	h.tick(t)

	require.Len(t, synced, 1)
	assert.Equal(t, item.ID, synced[0].ItemID)
	assert.Equal(t, "DELETE", synced[0].ChangeKind)
	assert.Equal(t, models.CloudToLocal.String(), synced[0].Direction)
	require.Len(t, ticks, 1)
	assert.Equal(t, tenant, ticks[0].TenantID)
	assert.Equal(t, 1, ticks[0].Processed)
}

func TestNilBusIsAllowed(t *testing.T) {
	h := newHarness(t, NewRegistry(&fakeHandler{entityType: models.EntityCustomer}))
	h.orch.events = nil
	h.enqueue(t, h.local, models.EntityCustomer, "c-1", models.ChangeUpdate)

	report := h.tick(t)
	assert.Equal(t, 1, report.Passes[0].Processed)
}
