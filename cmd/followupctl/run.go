package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"followup_backend/internal/composer"
	"followup_backend/internal/events"
	"followup_backend/internal/followups"
	"followup_backend/internal/followups/dedup"
	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/ports"
	"followup_backend/internal/followups/transport"
	"followup_backend/internal/scheduler"
	"followup_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// previewDispatcher records sends instead of queueing them.
type previewDispatcher struct {
	mu    sync.Mutex
	sends []previewSend
}

type previewSend struct {
	LeadID    uuid.UUID `json:"leadId"`
	RuleID    uuid.UUID `json:"ruleId"`
	SendAt    time.Time `json:"sendAt"`
	Recipient string    `json:"recipient"`
	Source    string    `json:"source"`
	Body      string    `json:"body"`
}

func (d *previewDispatcher) Dispatch(_ context.Context, send domain.ScheduledSend, msg ports.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sends = append(d.sends, previewSend{
		LeadID:    send.LeadID,
		RuleID:    send.RuleID,
		SendAt:    send.SendAt,
		Recipient: msg.Recipient,
		Source:    msg.Source,
		Body:      msg.Body,
	})
	return nil
}

func newRunCmd() *cobra.Command {
	var (
		orgFlag string
		dryRun  bool
		at      string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one follow-up pass for an organization",
		Long: "Run one follow-up pass for an organization. With --dry-run nothing is " +
			"reserved or queued: counters start empty and composed messages are printed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			orgID, err := uuid.Parse(orgFlag)
			if err != nil {
				return fmt.Errorf("--org: %w", err)
			}
			var req transport.RunRequest
			if at != "" {
				now, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				req.Now = &now
			}

			ctx := cmd.Context()
			e, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			deps := followups.Deps{
				Pool:      e.pool,
				Composer:  composer.NewFromConfig(e.cfg, e.log),
				Bus:       events.NewInMemoryBus(e.log),
				Validator: validator.New(),
				Log:       e.log,
				Tick:      e.cfg.GetFollowupTick(),
				Workers:   e.cfg.GetFollowupWorkers(),
			}

			preview := &previewDispatcher{}
			if dryRun {
				deps.Tracker = dedup.NewMemoryTracker()
				deps.Dispatcher = preview
			} else {
				client, err := scheduler.NewClient(e.cfg)
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				redisClient, err := scheduler.NewRedisClient(e.cfg)
				if err != nil {
					return err
				}
				defer func() { _ = redisClient.Close() }()
				deps.Tracker = dedup.ForBackend(e.cfg.GetFollowupTracker(), e.cfg.GetFollowupCounterRetention(), redisClient, e.pool)
				deps.Dispatcher = client
			}

			resp, err := followups.NewModule(deps).Service().Run(ctx, orgID, req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if dryRun {
				return enc.Encode(struct {
					transport.RunResponse
					Messages []previewSend `json:"messages"`
				}{resp, preview.sends})
			}
			return enc.Encode(resp)
		},
	}

	cmd.Flags().StringVar(&orgFlag, "org", "", "organization id")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compose but do not reserve or queue")
	cmd.Flags().StringVar(&at, "at", "", "evaluate as of this RFC3339 instant")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
