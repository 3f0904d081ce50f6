package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"clinicsync/internal/api"
	"clinicsync/internal/database"
	"clinicsync/internal/worker"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync scheduler until interrupted",
	Long: `Runs a synchronization tick right away and then on every interval.
On SIGINT or SIGTERM a final tick runs before the process exits.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runDaemon(cmd.Context())
	},
}

func runDaemon(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "syncd")
	if err != nil {
		return err
	}
	defer a.Close()

	orch, sink := a.orchestrator()
	startMetrics(ctx, a.cfg, a.logger)

	var wg sync.WaitGroup

	backup := database.NewBackupService(a.local, a.cfg.Database.Local.Backup, a.logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		backup.Start(ctx)
	}()

	var httpServer *api.HTTPServer
	if a.cfg.API.Enabled {
		httpServer = api.NewHTTPServer(a.cfg.API, api.Deps{
			TenantID:    a.cfg.Account.ID,
			Runner:      orch,
			Local:       a.local,
			Cloud:       a.cloud,
			DeadLetters: sink,
			Logger:      a.logger,
		})
		go func() {
			if err := httpServer.Start(); err != nil {
				a.logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	scheduler := worker.NewScheduler(orch, a.cfg.Account.ID, a.cfg.Sync.EventBased, a.logger)
	scheduler.Start(ctx)
	// a disabled scheduler returns at once; keep serving the API
	<-ctx.Done()

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}
	wg.Wait()

	a.logger.Info().Msg("sync service stopped")
	return nil
}
