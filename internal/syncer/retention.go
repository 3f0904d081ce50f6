package syncer

import (
	"context"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/domain"
	"clinicsync/internal/metrics"
	"clinicsync/internal/models"

	"github.com/rs/zerolog"
)

// Cleaner deletes processed queue items older than the retention period.
// Unprocessed items are never touched.
type Cleaner struct {
	queues    map[models.Side]domain.Queue
	retention time.Duration
	logger    *zerolog.Logger
	now       func() time.Time
}

func NewCleaner(queues map[models.Side]domain.Queue, retention time.Duration, logger *zerolog.Logger) *Cleaner {
	if retention <= 0 {
		retention = time.Duration(config.DefaultRetentionDays) * 24 * time.Hour
	}
	return &Cleaner{
		queues:    queues,
		retention: retention,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run purges both queues for the tenant and returns the deleted counts per
// side. Failures are logged and do not stop the other side.
func (c *Cleaner) Run(ctx context.Context, tenantID int64) map[models.Side]int64 {
	cutoff := c.now().Add(-c.retention)
	deleted := make(map[models.Side]int64, len(c.queues))

	for _, side := range []models.Side{models.SideLocal, models.SideCloud} {
		queue, ok := c.queues[side]
		if !ok {
			continue
		}
		n, err := queue.DeleteProcessedOlderThan(ctx, tenantID, cutoff)
		if err != nil {
			c.logger.Error().Err(err).Str("side", string(side)).Msg("failed to clean up processed sync items")
			continue
		}
		deleted[side] = n
		metrics.AddRetentionDeleted(string(side), n)
		if n > 0 {
			c.logger.Info().
				Str("side", string(side)).
				Int64("deleted", n).
				Time("cutoff", cutoff).
				Msg("old processed sync items removed")
		}
	}
	return deleted
}
