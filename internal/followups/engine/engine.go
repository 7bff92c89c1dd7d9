// Package engine runs orchestration passes: qualify, match, reserve, schedule
// and hand off every qualified lead of an organization.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"followup_backend/internal/events"
	"followup_backend/internal/followups/businesshours"
	"followup_backend/internal/followups/dedup"
	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/matcher"
	"followup_backend/internal/followups/ports"
	"followup_backend/internal/followups/qualify"
	"followup_backend/platform/apperr"
	"followup_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultWorkers = 8

// Outcome is what happened to one lead in a pass.
type Outcome string

const (
	OutcomeScheduled      Outcome = "scheduled"
	OutcomeNotQualified   Outcome = "not_qualified"
	OutcomeNoMatch        Outcome = "no_match"
	OutcomeConflict       Outcome = "conflict"
	OutcomeUnavailable    Outcome = "unavailable"
	OutcomeComposeFailed  Outcome = "compose_failed"
	OutcomeDispatchFailed Outcome = "dispatch_failed"
)

// IsFailure reports whether the outcome is a per-lead failure surfaced to
// the caller.
func (o Outcome) IsFailure() bool {
	return o == OutcomeComposeFailed || o == OutcomeDispatchFailed || o == OutcomeUnavailable
}

// LeadResult is the outcome for one lead.
type LeadResult struct {
	LeadID  uuid.UUID
	RuleID  uuid.UUID
	Outcome Outcome
	SendAt  time.Time
	Err     error
}

// PassInput configures one pass.
type PassInput struct {
	OrganizationID uuid.UUID
	// Now overrides the engine clock when set.
	Now     time.Time
	Signals []domain.EventSignal
}

// PassReport summarizes a pass.
type PassReport struct {
	OrganizationID uuid.UUID
	StartedAt      time.Time
	FinishedAt     time.Time
	Leads          int
	Scheduled      []domain.ScheduledSend
	Results        []LeadResult
	Cancelled      bool
}

// Failures returns the per-lead failures of the pass.
func (r PassReport) Failures() []LeadResult {
	var out []LeadResult
	for _, res := range r.Results {
		if res.Outcome.IsFailure() {
			out = append(out, res)
		}
	}
	return out
}

// Count returns how many leads ended with outcome.
func (r PassReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// Observer receives pass statistics.
type Observer interface {
	ObservePass(report PassReport)
}

// Deps are the engine collaborators. Conversations, Publisher and Observer
// are optional.
type Deps struct {
	Rules         ports.RuleSource
	Leads         ports.LeadProvider
	Conversations ports.ConversationReader
	Tracker       dedup.Tracker
	Composer      ports.Composer
	Dispatcher    ports.Dispatcher
	Publisher     events.Bus
	Observer      Observer
	Log           *logger.Logger
	Tick          time.Duration
	Workers       int
	Clock         func() time.Time
}

// Engine orchestrates follow-up passes.
type Engine struct {
	rules         ports.RuleSource
	leads         ports.LeadProvider
	conversations ports.ConversationReader
	tracker       dedup.Tracker
	evaluator     *qualify.Evaluator
	matcher       *matcher.Matcher
	composer      ports.Composer
	dispatcher    ports.Dispatcher
	publisher     events.Bus
	observer      Observer
	log           *logger.Logger
	workers       int
	clock         func() time.Time
}

// New builds an engine. Rules, Leads, Tracker, Composer and Dispatcher are required.
func New(deps Deps) *Engine {
	workers := deps.Workers
	if workers < 1 {
		workers = defaultWorkers
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	log := deps.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{
		rules:         deps.Rules,
		leads:         deps.Leads,
		conversations: deps.Conversations,
		tracker:       deps.Tracker,
		evaluator:     qualify.NewEvaluator(deps.Tick),
		matcher:       matcher.New(deps.Tracker),
		composer:      deps.Composer,
		dispatcher:    deps.Dispatcher,
		publisher:     deps.Publisher,
		observer:      deps.Observer,
		log:           log,
		workers:       workers,
		clock:         clock,
	}
}

// RunPass evaluates every qualifiable lead of one organization. Per-lead
// failures are reported in the PassReport; an error is returned only when
// rules or leads cannot be loaded or ctx was cancelled mid-pass.
func (e *Engine) RunPass(ctx context.Context, in PassInput) (PassReport, error) {
	started := e.clock()
	now := in.Now
	if now.IsZero() {
		now = started
	}
	now = now.UTC()

	report := PassReport{OrganizationID: in.OrganizationID, StartedAt: started}
	log := e.log.WithOrganization(in.OrganizationID.String())

	rules, err := e.rules.ActiveRules(ctx, in.OrganizationID)
	if err != nil {
		return report, fmt.Errorf("load active rules: %w", err)
	}
	if len(rules) == 0 {
		report.FinishedAt = e.clock()
		return report, nil
	}

	leads, err := e.leads.QualifiableLeads(ctx, in.OrganizationID, now)
	if err != nil {
		return report, apperr.LeadSnapshotUnavailable(err).WithOp("engine.RunPass")
	}
	report.Leads = len(leads)

	results := make([]*LeadResult, len(leads))
	sends := make([]*domain.ScheduledSend, len(leads))

	var (
		mu        sync.Mutex
		g         errgroup.Group
		cancelled atomic.Bool
	)
	g.SetLimit(e.workers)

	for i, lead := range leads {
		// Cooperative checkpoint: leads not yet started are left untouched.
		if ctx.Err() != nil {
			cancelled.Store(true)
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				cancelled.Store(true)
				return nil
			}
			res, send := e.processLead(ctx, lead, rules, now, in.Signals)
			log.FollowupOutcome(lead.ID.String(), uuidString(res.RuleID), string(res.Outcome), res.Err)
			mu.Lock()
			results[i] = &res
			sends[i] = send
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	report.Cancelled = cancelled.Load()

	for i := range leads {
		if results[i] != nil {
			report.Results = append(report.Results, *results[i])
		}
		if sends[i] != nil {
			report.Scheduled = append(report.Scheduled, *sends[i])
		}
	}
	report.FinishedAt = e.clock()

	log.PassCompleted(in.OrganizationID.String(), report.Leads, len(report.Scheduled), len(report.Failures()), report.FinishedAt.Sub(report.StartedAt))
	if e.observer != nil {
		e.observer.ObservePass(report)
	}

	if report.Cancelled {
		return report, ctx.Err()
	}
	return report, nil
}

// RunAll runs a pass for every organization that has active rules. A failing
// organization does not stop the others.
func (e *Engine) RunAll(ctx context.Context) ([]PassReport, error) {
	orgs, err := e.rules.OrganizationsWithActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}

	reports := make([]PassReport, 0, len(orgs))
	var errs []error
	for _, orgID := range orgs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := e.RunPass(ctx, PassInput{OrganizationID: orgID})
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("organization %s: %w", orgID, err))
		}
	}
	return reports, errors.Join(errs...)
}

func (e *Engine) processLead(ctx context.Context, lead domain.LeadSnapshot, rules []domain.Rule, now time.Time, signals []domain.EventSignal) (LeadResult, *domain.ScheduledSend) {
	res := LeadResult{LeadID: lead.ID}

	candidates := e.evaluator.Evaluate(lead, rules, now, signals)
	if len(candidates) == 0 {
		res.Outcome = OutcomeNotQualified
		return res, nil
	}

	winner, ok, err := e.matcher.Select(ctx, lead, candidates)
	if err != nil {
		res.Outcome = OutcomeUnavailable
		res.Err = apperr.LeadSnapshotUnavailable(err)
		return res, nil
	}
	if !ok {
		res.Outcome = OutcomeNoMatch
		return res, nil
	}

	rule := winner.Rule
	res.RuleID = rule.ID()
	behavior := rule.Behavior()

	// Context is read before reserving so an unavailable lead keeps its slot.
	convo := ports.ConversationContext{LookbackDays: behavior.ContextLookbackDays}
	if behavior.UseLastContext && e.conversations != nil {
		since := now.AddDate(0, 0, -behavior.ContextLookbackDays)
		messages, err := e.conversations.RecentConversation(ctx, lead.OrganizationID, lead.ID, since)
		if err != nil {
			res.Outcome = OutcomeUnavailable
			res.Err = apperr.LeadSnapshotUnavailable(err)
			return res, nil
		}
		convo.Messages = messages
	}

	from := winner.Event.QualifiedAt
	if from.Before(now) {
		from = now
	}
	sendAt := businesshours.NextSendTime(rule.Schedule(), from).UTC()
	res.SendAt = sendAt

	reserved, err := e.tracker.Reserve(ctx, dedup.Reservation{
		LeadID:       lead.ID,
		RuleID:       rule.ID(),
		MaxFollowups: rule.Trigger().MaxFollowups,
		QualifiedAt:  winner.Event.QualifiedAt,
		SendAt:       sendAt,
	})
	if err != nil {
		res.Outcome = OutcomeUnavailable
		res.Err = apperr.LeadSnapshotUnavailable(err)
		return res, nil
	}
	if !reserved {
		res.Outcome = OutcomeConflict
		return res, nil
	}

	send := domain.ScheduledSend{
		LeadID:         lead.ID,
		RuleID:         rule.ID(),
		OrganizationID: lead.OrganizationID,
		SendAt:         sendAt,
		Style:          behavior.Style,
		Template:       behavior.MessageTemplate,
		TriggerKind:    winner.Event.TriggerKind,
		QualifiedAt:    winner.Event.QualifiedAt,
	}

	// The reservation stands from here on, whatever happens downstream.
	msg, err := e.composer.Compose(ctx, ports.ComposeRequest{Send: send, Rule: rule, Lead: lead, Context: convo})
	if err != nil {
		res.Outcome = OutcomeComposeFailed
		res.Err = apperr.ComposerFailure(err)
		e.publishFailure(ctx, send, events.StageCompose, err)
		return res, nil
	}
	if msg.Recipient == "" {
		msg.Recipient = lead.Phone
	}

	if err := e.dispatcher.Dispatch(ctx, send, msg); err != nil {
		res.Outcome = OutcomeDispatchFailed
		res.Err = apperr.DispatchFailure(err)
		e.publishFailure(ctx, send, events.StageDispatch, err)
		return res, nil
	}

	res.Outcome = OutcomeScheduled
	if e.publisher != nil {
		e.publisher.Publish(ctx, events.FollowupScheduled{
			BaseEvent:      events.NewBaseEvent(),
			OrganizationID: send.OrganizationID,
			LeadID:         send.LeadID,
			RuleID:         send.RuleID,
			SendAt:         send.SendAt,
			Style:          string(send.Style),
			Source:         msg.Source,
		})
	}
	return res, &send
}

func (e *Engine) publishFailure(ctx context.Context, send domain.ScheduledSend, stage string, err error) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(ctx, events.FollowupDeliveryFailed{
		BaseEvent:      events.NewBaseEvent(),
		OrganizationID: send.OrganizationID,
		LeadID:         send.LeadID,
		RuleID:         send.RuleID,
		Stage:          stage,
		Reason:         err.Error(),
	})
}

func uuidString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
