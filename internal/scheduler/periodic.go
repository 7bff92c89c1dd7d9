package scheduler

import (
	"context"
	"fmt"
	"time"

	"followup_backend/platform/config"
	"followup_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// CycleScheduler enqueues followups.cycle on the configured cron spec.
type CycleScheduler struct {
	scheduler *asynq.Scheduler
	entryID   string
	log       *logger.Logger
}

// NewCycleScheduler registers the periodic cycle. The task is unique for one
// tick so a slow cycle is not stacked behind another.
func NewCycleScheduler(cfg config.SchedulerConfig, followups config.FollowupConfig, log *logger.Logger) (*CycleScheduler, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	if err := config.ValidateCycleSpec(followups.GetFollowupCycleSpec()); err != nil {
		return nil, err
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	unique := followups.GetFollowupTick()
	if unique <= 0 {
		unique = 5 * time.Minute
	}

	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		Location: time.UTC,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				log.Warn("follow-up cycle not enqueued", "error", err)
			}
		},
	})

	entryID, err := s.Register(followups.GetFollowupCycleSpec(), NewFollowupCycleTask(),
		asynq.Queue(queue),
		asynq.Unique(unique),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return nil, fmt.Errorf("register follow-up cycle: %w", err)
	}

	return &CycleScheduler{scheduler: s, entryID: entryID, log: log}, nil
}

// Run blocks until ctx is done.
func (c *CycleScheduler) Run(ctx context.Context) {
	if c == nil || c.scheduler == nil {
		return
	}
	if err := c.scheduler.Start(); err != nil {
		c.log.Error("cycle scheduler failed to start", "error", err)
		return
	}
	c.log.Info("cycle scheduler started", "entry_id", c.entryID)

	<-ctx.Done()
	c.scheduler.Shutdown()
}
