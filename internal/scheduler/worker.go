package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"followup_backend/internal/events"
	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/engine"
	"followup_backend/internal/whatsapp"
	"followup_backend/platform/apperr"
	"followup_backend/platform/config"
	"followup_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// FollowupRunner runs orchestration passes.
type FollowupRunner interface {
	RunAll(ctx context.Context) ([]engine.PassReport, error)
	RunPass(ctx context.Context, in engine.PassInput) (engine.PassReport, error)
}

// LeadChecker reads the current state of a lead. Closed or missing leads
// come back as apperr NotFound.
type LeadChecker interface {
	GetLead(ctx context.Context, organizationID, leadID uuid.UUID) (domain.LeadSnapshot, error)
}

// MessageSender delivers a message to a phone number.
type MessageSender interface {
	SendMessage(ctx context.Context, phoneNumber, message string) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	runner FollowupRunner
	leads  LeadChecker
	sender MessageSender
	bus    events.Bus
	log    *logger.Logger
}

// NewWorker builds the asynq server. sender may be nil, in which case due
// follow-ups are logged and dropped. leads may be nil to send without
// re-checking the lead.
func NewWorker(cfg config.SchedulerConfig, runner FollowupRunner, leads LeadChecker, sender MessageSender, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		runner: runner,
		leads:  leads,
		sender: sender,
		bus:    bus,
		log:    log,
	}

	mux.HandleFunc(TaskFollowupCycle, w.handleCycle)
	mux.HandleFunc(TaskFollowupRun, w.handleRun)
	mux.HandleFunc(TaskFollowupSend, w.handleSend)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleCycle never asks for a retry; the next cycle picks up whatever failed.
func (w *Worker) handleCycle(ctx context.Context, _ *asynq.Task) error {
	started := time.Now()
	reports, err := w.runner.RunAll(ctx)

	scheduled := 0
	for _, r := range reports {
		scheduled += len(r.Scheduled)
	}
	w.log.Info("follow-up cycle finished",
		"organizations", len(reports),
		"scheduled", scheduled,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	if err != nil {
		w.log.Warn("follow-up cycle had failures", "error", err)
	}
	return nil
}

func (w *Worker) handleRun(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowupRunPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	ids, err := parseIDs(payload.OrganizationID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	report, err := w.runner.RunPass(ctx, engine.PassInput{OrganizationID: ids[0], Signals: payload.Signals})
	if err != nil {
		return err
	}
	w.log.Info("event follow-up pass finished",
		"organization_id", payload.OrganizationID,
		"signals", len(payload.Signals),
		"scheduled", len(report.Scheduled),
	)
	return nil
}

func (w *Worker) handleSend(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFollowupSendPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	ids, err := parseIDs(payload.OrganizationID, payload.LeadID, payload.RuleID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if w.sender == nil {
		w.log.Warn("whatsapp not configured, dropping follow-up", "lead_id", payload.LeadID, "rule_id", payload.RuleID)
		return nil
	}

	if w.leads != nil {
		lead, err := w.leads.GetLead(ctx, ids[0], ids[1])
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				w.log.Info("lead closed or gone, dropping follow-up", "lead_id", payload.LeadID, "rule_id", payload.RuleID)
				return nil
			}
			return fmt.Errorf("check lead before send: %w", err)
		}
		if reason := staleReason(lead, payload); reason != "" {
			w.log.Info("dropping stale follow-up", "lead_id", payload.LeadID, "rule_id", payload.RuleID, "reason", reason)
			return nil
		}
	}

	err = w.sender.SendMessage(ctx, payload.Recipient, payload.Body)
	if err == nil {
		w.log.Info("follow-up delivered", "lead_id", payload.LeadID, "rule_id", payload.RuleID, "source", payload.Source)
		return nil
	}

	// Only a send that never reached the gateway may be retried.
	retryable := errors.Is(err, whatsapp.ErrNotSent)
	if !retryable || finalAttempt(ctx) {
		if w.bus != nil {
			w.bus.Publish(ctx, events.FollowupDeliveryFailed{
				BaseEvent:      events.NewBaseEvent(),
				OrganizationID: ids[0],
				LeadID:         ids[1],
				RuleID:         ids[2],
				Stage:          events.StageDelivery,
				Reason:         err.Error(),
			})
		}
	}
	if !retryable {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return err
}

// staleReason reports why a no-response follow-up no longer applies: the
// lead wrote or was written to after it qualified.
func staleReason(lead domain.LeadSnapshot, payload FollowupSendPayload) string {
	if payload.Trigger != "" && payload.Trigger != string(domain.TriggerNoResponse) {
		return ""
	}
	if payload.QualifiedAt.IsZero() {
		return ""
	}
	if lead.LastInboundAt != nil && lead.LastInboundAt.After(payload.QualifiedAt) {
		return "lead replied"
	}
	if lead.LastOutboundAt != nil && lead.LastOutboundAt.After(payload.QualifiedAt) {
		return "lead already contacted"
	}
	return ""
}

// finalAttempt reports whether asynq will not retry the current task again.
// Outside a worker context every attempt is final.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}
