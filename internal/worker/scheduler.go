package worker

import (
	"context"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/domain"

	"github.com/rs/zerolog"
)

// Tick triggers.
const (
	TriggerInterval = "interval"
	TriggerRetry    = "retry_sweep"
	TriggerShutdown = "shutdown"
)

// Scheduler drives the periodic synchronization of one tenant. Both cadences
// fire from a single goroutine, so ticks it starts never overlap.
type Scheduler struct {
	runner   domain.TickRunner
	tenantID int64
	cfg      config.EventBasedConfig
	logger   *zerolog.Logger
}

func NewScheduler(runner domain.TickRunner, tenantID int64, cfg config.EventBasedConfig, logger *zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultSyncInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}
	return &Scheduler{
		runner:   runner,
		tenantID: tenantID,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start blocks until ctx is cancelled, then runs one final tick bounded by
// the shutdown timeout. The interval is a fixed delay measured from the end
// of the previous tick.
func (s *Scheduler) Start(ctx context.Context) {
	if !s.cfg.IsEnabled() {
		s.logger.Info().Msg("Event-based sync is disabled")
		return
	}

	s.logger.Info().
		Int64("account_id", s.tenantID).
		Dur("interval", s.cfg.Interval).
		Dur("retry_interval", s.cfg.RetryInterval).
		Msg("Sync scheduler started")

	var retry <-chan time.Time
	if s.cfg.RetryInterval > 0 {
		ticker := time.NewTicker(s.cfg.RetryInterval)
		defer ticker.Stop()
		retry = ticker.C
	}

	s.run(ctx, TriggerInterval)
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case <-timer.C:
			s.run(ctx, TriggerInterval)
			timer.Reset(s.cfg.Interval)
		case <-retry:
			s.run(ctx, TriggerRetry)
		}
	}
}

func (s *Scheduler) shutdown() {
	s.logger.Info().Msg("Running final sync before shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.run(ctx, TriggerShutdown)
	s.logger.Info().Msg("Sync scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	if ctx.Err() != nil && trigger != TriggerShutdown {
		return
	}
	report, err := s.runner.Tick(ctx, s.tenantID)
	if err != nil {
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("Sync tick failed")
		return
	}
	totals := report.Totals()
	s.logger.Debug().
		Str("trigger", trigger).
		Int("processed", totals.Processed).
		Int("retried", totals.Retried).
		Int("exhausted", totals.Exhausted).
		Dur("duration", report.Duration).
		Msg("Sync tick finished")
}
