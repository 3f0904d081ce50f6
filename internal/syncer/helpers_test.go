package syncer

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/database"
	"clinicsync/internal/events"
	"clinicsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const tenant = int64(7)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func at(minutes int) *time.Time {
	ts := t0.Add(time.Duration(minutes) * time.Minute)
	return &ts
}

type harness struct {
	local *database.DB
	cloud *database.DB
	bus   *events.EventBus
	orch  *Orchestrator
}

func newHarness(t *testing.T, registry *Registry) *harness {
	t.Helper()
	logger := zerolog.New(io.Discard)
	if registry == nil {
		registry = DefaultRegistry(&logger)
	}

	dir := t.TempDir()
	local, err := database.OpenSQLite(filepath.Join(dir, "local.db"), models.SideLocal, &logger)
	require.NoError(t, err)
	cloud, err := database.OpenSQLite(filepath.Join(dir, "cloud.db"), models.SideCloud, &logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		local.Close()
		cloud.Close()
	})

	ctx := context.Background()
	require.NoError(t, local.Migrate(ctx))
	require.NoError(t, cloud.Migrate(ctx))

	bus := events.NewEventBus()
	cfg := config.EventBasedConfig{ItemTimeout: 5 * time.Second, RetentionDays: 7}
	return &harness{
		local: local,
		cloud: cloud,
		bus:   bus,
		orch:  NewOrchestrator(local, cloud, registry, bus, cfg, &logger),
	}
}

func (h *harness) tick(t *testing.T) models.TickReport {
	t.Helper()
	report, err := h.orch.Tick(context.Background(), tenant)
	require.NoError(t, err)
	return report
}

func (h *harness) enqueue(t *testing.T, db *database.DB, entityType models.EntityType, id string, kind models.ChangeKind) *models.QueueItem {
	t.Helper()
	item, err := db.Enqueue(context.Background(), entityType, id, tenant, kind)
	require.NoError(t, err)
	return item
}

func (h *harness) queueItem(t *testing.T, db *database.DB, id string) *models.QueueItem {
	t.Helper()
	item, err := db.GetQueueItem(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, item)
	return item
}

func saveCustomer(t *testing.T, db *database.DB, id, name string, updatedAt *time.Time) {
	t.Helper()
	c := &models.Customer{
		Record:    models.Record{ID: id, AccountID: tenant, Status: models.StatusActive, CreatedAt: at(0), UpdatedAt: updatedAt},
		FirstName: name,
	}
	require.NoError(t, database.Save(context.Background(), db, tenant, c))
}

func loadCustomer(t *testing.T, db *database.DB, id string) *models.Customer {
	t.Helper()
	c, err := database.FindByID[models.Customer](context.Background(), db, id, tenant)
	require.NoError(t, err)
	return c
}

// fakeHandler records the items it sees and returns whatever fn returns.
type fakeHandler struct {
	mu         sync.Mutex
	entityType models.EntityType
	seen       []string
	fn         func(ctx context.Context, item models.QueueItem) error
}

func (f *fakeHandler) EntityType() models.EntityType { return f.entityType }

func (f *fakeHandler) Process(ctx context.Context, item models.QueueItem, _ Route) error {
	f.mu.Lock()
	f.seen = append(f.seen, item.EntityID)
	f.mu.Unlock()
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx, item)
}

func (f *fakeHandler) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *fakeHandler) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}
