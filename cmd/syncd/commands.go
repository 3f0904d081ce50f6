package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/database"
	"clinicsync/internal/models"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	failedSide  string
	enqueueSide string
	enqueueKind string
	queueSide   string
	queueType   string
	queueSince  time.Duration
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single synchronization tick and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), "syncd-once")
		if err != nil {
			return err
		}
		defer a.Close()

		orch, _ := a.orchestrator()
		report, tickErr := orch.Tick(cmd.Context(), a.cfg.Account.ID)
		if err := printReport(report); err != nil {
			return err
		}
		return tickErr
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the number of pending queue items on both sides",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), "syncd-status")
		if err != nil {
			return err
		}
		defer a.Close()

		counts := make(map[models.Side]int64, 2)
		for _, db := range []*database.DB{a.local, a.cloud} {
			n, err := db.CountUnprocessed(cmd.Context(), a.cfg.Account.ID)
			if err != nil {
				return fmt.Errorf("count %s queue: %w", db.Side(), err)
			}
			counts[db.Side()] = n
		}

		if jsonOutput {
			return printJSON(map[string]any{
				"account_id":        a.cfg.Account.ID,
				"local_unprocessed": counts[models.SideLocal],
				"cloud_unprocessed": counts[models.SideCloud],
			})
		}
		fmt.Printf("Account %d\n", a.cfg.Account.ID)
		fmt.Printf("  local pending: %d\n", counts[models.SideLocal])
		fmt.Printf("  cloud pending: %d\n", counts[models.SideCloud])
		return nil
	},
}

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List queue items that recorded at least one failure",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), "syncd-failed")
		if err != nil {
			return err
		}
		defer a.Close()

		db, err := a.store(failedSide)
		if err != nil {
			return err
		}
		items, err := db.ListFailed(cmd.Context(), a.cfg.Account.ID)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(items)
		}
		if len(items) == 0 {
			fmt.Println("No failed items")
			return nil
		}
		return printItems(items)
	},
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List pending queue items, or everything recorded within --since",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), "syncd-queue")
		if err != nil {
			return err
		}
		defer a.Close()

		db, err := a.store(queueSide)
		if err != nil {
			return err
		}
		filter := models.QueueFilter{EntityType: models.EntityType(queueType)}
		if queueSince > 0 {
			filter.Since = time.Now().Add(-queueSince)
		}
		items, err := db.ListQueue(cmd.Context(), a.cfg.Account.ID, filter)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(items)
		}
		if len(items) == 0 {
			fmt.Println("Queue is empty")
			return nil
		}
		return printItems(items)
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete processed queue items older than the retention period",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), "syncd-cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		orch, _ := a.orchestrator()
		deleted := orch.Cleaner().Run(cmd.Context(), a.cfg.Account.ID)

		if jsonOutput {
			return printJSON(deleted)
		}
		fmt.Printf("Deleted local: %d, cloud: %d\n", deleted[models.SideLocal], deleted[models.SideCloud])
		return nil
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <entity-type> <entity-id>",
	Short: "Record a change by hand so it is picked up by the next tick",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "syncd-enqueue")
		if err != nil {
			return err
		}
		defer a.Close()

		db, err := a.store(enqueueSide)
		if err != nil {
			return err
		}
		kind := models.ChangeKind(strings.ToUpper(enqueueKind))
		item, err := db.Enqueue(cmd.Context(), models.EntityType(args[0]), args[1], a.cfg.Account.ID, kind)
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(item)
		}
		fmt.Printf("Queued %s %s %s on %s as %s\n", item.ChangeKind, item.EntityType, item.EntityID, db.Side(), item.ID)
		return nil
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a snapshot of the local database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), "syncd-backup")
		if err != nil {
			return err
		}
		defer a.Close()

		cfg := a.cfg.Database.Local.Backup
		if cfg.StoragePath == "" {
			cfg.StoragePath = config.DefaultBackupPath
		}
		service := database.NewBackupService(a.local, cfg, a.logger)
		path, err := service.PerformBackup(cmd.Context())
		if err != nil {
			return err
		}
		service.CleanupOldBackups()
		fmt.Println(path)
		return nil
	},
}

func init() {
	failedCmd.Flags().StringVar(&failedSide, "side", string(models.SideLocal), "queue to inspect: local or cloud")
	enqueueCmd.Flags().StringVar(&enqueueSide, "side", string(models.SideLocal), "queue to write: local or cloud")
	enqueueCmd.Flags().StringVar(&enqueueKind, "kind", string(models.ChangeUpdate), "change type: CREATE, UPDATE or DELETE")
	queueCmd.Flags().StringVar(&queueSide, "side", string(models.SideLocal), "queue to inspect: local or cloud")
	queueCmd.Flags().StringVar(&queueType, "type", "", "only list this entity type, e.g. Invoice")
	queueCmd.Flags().DurationVar(&queueSince, "since", 0, "list items recorded within this period, processed or not")
}

func (a *app) store(side string) (*database.DB, error) {
	switch models.Side(side) {
	case models.SideLocal:
		return a.local, nil
	case models.SideCloud:
		return a.cloud, nil
	default:
		return nil, fmt.Errorf("unknown side %q, want local or cloud", side)
	}
}

func printReport(report models.TickReport) error {
	if jsonOutput {
		return printJSON(report)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DIRECTION\tPENDING\tPROCESSED\tRETRIED\tEXHAUSTED\tSKIPPED\tERROR")
	for _, p := range report.Passes {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			p.Direction, p.Pending, p.Processed, p.Retried, p.Exhausted, p.Skipped, p.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("Finished in %s, retention removed local %d / cloud %d\n",
		report.Duration.Round(time.Millisecond),
		report.RetentionDeleted[models.SideLocal], report.RetentionDeleted[models.SideCloud])
	return nil
}

func printItems(items []models.QueueItem) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tENTITY\tCHANGE\tRETRIES\tPROCESSED\tCREATED\tERROR")
	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%t\t%s\t%s\n",
			item.ID, item.EntityType, item.EntityID, item.ChangeKind,
			item.RetryCount, item.Processed, item.CreatedAt.Format(time.RFC3339),
			truncate(item.LastError(), 60))
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
