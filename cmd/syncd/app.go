package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/database"
	"clinicsync/internal/domain"
	"clinicsync/internal/events"
	"clinicsync/internal/logging"
	"clinicsync/internal/metrics"
	"clinicsync/internal/repository"
	"clinicsync/internal/syncer"
	"clinicsync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const deadLetterPushTimeout = 5 * time.Second

// cloudConnectPolicy retries opening the cloud store at startup.
var cloudConnectPolicy = worker.RetryPolicy{
	MaxRetries:   5,
	InitialDelay: 2 * time.Second,
	MaxDelay:     30 * time.Second,
}

// app holds everything a command needs after startup.
type app struct {
	cfg    *config.Config
	logger *zerolog.Logger
	closer io.Closer

	local *database.DB
	cloud *database.DB
	redis *redis.Client
}

func newApp(ctx context.Context, component string) (*app, error) {
	cfg, logger, closer, err := loadConfigAndLogger(component)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, closer: closer}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func loadConfigAndLogger(component string) (*config.Config, *zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().
		Str("component", component).
		Int64("account_id", cfg.Account.ID).
		Logger()

	if cfg.Sync.Merge.Enabled {
		logger.Info().
			Int("time_threshold_minutes", cfg.Sync.Merge.TimeThresholdMinutes).
			Msg("sync.merge settings are ignored: conflicts are always resolved by last update")
	}

	return cfg, &logger, closer, nil
}

func (a *app) openStores(ctx context.Context) error {
	local, err := database.OpenLocal(a.cfg.Database.Local, a.logger)
	if err != nil {
		a.logger.Error().Err(err).Str("path", a.cfg.Database.Local.Path).Msg("open local database")
		return err
	}
	a.local = local

	err = cloudConnectPolicy.Do(ctx, "open cloud database", a.logger, func(context.Context) error {
		cloud, err := database.OpenCloud(a.cfg.Database.Cloud, a.logger)
		if err != nil {
			return err
		}
		a.cloud = cloud
		return nil
	})
	if err != nil {
		a.logger.Error().Err(err).Msg("open cloud database")
		return err
	}

	if !a.cfg.Database.AutoMigrate {
		return nil
	}
	for _, db := range []*database.DB{a.local, a.cloud} {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate %s store: %w", db.Side(), err)
		}
	}
	a.logger.Info().Msg("database schema migrated")
	return nil
}

// orchestrator wires the engine. Exhausted items go to Redis when it is
// reachable and to an in-memory list otherwise.
func (a *app) orchestrator() (*syncer.Orchestrator, domain.DeadLetterSink) {
	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		a.logger.Error().Err(err).Str("event", event.Type).Msg("event handler failed")
	})

	a.redis = initRedis(a.cfg, a.logger)
	var sink domain.DeadLetterSink = repository.NewMemoryDeadLetter(repository.DefaultDeadLetterCap)
	if a.redis != nil {
		primary := repository.NewRedisDeadLetter(a.redis, a.cfg.Redis.DeadLetterKey)
		sink = repository.NewFailoverDeadLetter(primary, sink, a.logger)
	}
	syncer.SubscribeDeadLetters(bus, sink, deadLetterPushTimeout)

	registry := syncer.DefaultRegistry(a.logger)
	return syncer.NewOrchestrator(a.local, a.cloud, registry, bus, a.cfg.Sync.EventBased, a.logger), sink
}

func (a *app) Close() {
	if a.redis != nil {
		_ = repository.Close(a.redis)
	}
	if a.cloud != nil {
		_ = a.cloud.Close()
	}
	if a.local != nil {
		_ = a.local.Close()
	}
	if a.closer != nil {
		_ = a.closer.Close()
	}
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}
	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
