package scheduler

import (
	"context"
	"time"

	"followup_backend/internal/followups/dedup"
	"followup_backend/platform/logger"
)

const defaultCounterCleanupInterval = 6 * time.Hour

// CounterCleanup periodically removes idle follow-up counters from trackers
// that do not expire keys on their own.
type CounterCleanup struct {
	pruner    dedup.Pruner
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
}

func NewCounterCleanup(pruner dedup.Pruner, log *logger.Logger, interval, retention time.Duration) *CounterCleanup {
	if interval <= 0 {
		interval = defaultCounterCleanupInterval
	}
	if retention <= 0 {
		retention = dedup.DefaultRetention
	}

	return &CounterCleanup{
		pruner:    pruner,
		log:       log,
		interval:  interval,
		retention: retention,
		now:       time.Now,
	}
}

func (c *CounterCleanup) Run(ctx context.Context) {
	if c == nil || c.pruner == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *CounterCleanup) cleanup(ctx context.Context) {
	deleted, err := c.pruner.PruneIdle(ctx, c.now().Add(-c.retention))
	if err != nil {
		c.log.Warn("follow-up counter cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("follow-up counter cleanup deleted idle counters", "deleted", deleted)
	}
}
