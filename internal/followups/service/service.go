// Package service provides the rule configuration surface and the
// on-demand entry points into the follow-up engine.
package service

import (
	"context"
	"time"

	"followup_backend/internal/events"
	"followup_backend/internal/followups/businesshours"
	"followup_backend/internal/followups/dedup"
	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/engine"
	"followup_backend/internal/followups/repository"
	"followup_backend/internal/followups/transport"
	"followup_backend/platform/logger"

	"github.com/google/uuid"
)

// DefaultPriority is assigned to rules created without an explicit priority.
const DefaultPriority = 100

// PassRunner runs one orchestration pass.
type PassRunner interface {
	RunPass(ctx context.Context, in engine.PassInput) (engine.PassReport, error)
}

// SignalEnqueuer queues a pass that carries event signals.
type SignalEnqueuer interface {
	EnqueueSignals(ctx context.Context, organizationID uuid.UUID, signals []domain.EventSignal) error
}

// Service provides business logic for follow-up rules.
type Service struct {
	repo     repository.Repository
	runner   PassRunner
	tracker  dedup.Tracker
	enqueuer SignalEnqueuer
	bus      events.Bus
	log      *logger.Logger
	now      func() time.Time
}

// New creates a new follow-up rules service. The enqueuer may be nil, in
// which case event signals are processed synchronously.
func New(repo repository.Repository, runner PassRunner, tracker dedup.Tracker, enqueuer SignalEnqueuer, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		runner:   runner,
		tracker:  tracker,
		enqueuer: enqueuer,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// Get retrieves a rule by ID.
func (s *Service) Get(ctx context.Context, organizationID, id uuid.UUID) (transport.RuleResponse, error) {
	rule, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return transport.RuleResponse{}, err
	}
	return toResponse(rule), nil
}

// List retrieves every rule of an organization ordered by priority, then id.
func (s *Service) List(ctx context.Context, organizationID uuid.UUID) (transport.RuleListResponse, error) {
	rules, err := s.repo.List(ctx, organizationID)
	if err != nil {
		return transport.RuleListResponse{}, err
	}
	items := make([]transport.RuleResponse, len(rules))
	for i, r := range rules {
		items[i] = toResponse(r)
	}
	return transport.RuleListResponse{Items: items, Total: len(items)}, nil
}

// Create validates and stores a new rule.
func (s *Service) Create(ctx context.Context, organizationID uuid.UUID, req transport.RuleRequest) (transport.RuleResponse, error) {
	params := toParams(req)
	params.OrganizationID = organizationID
	params.IsActive = true
	if req.IsActive != nil {
		params.IsActive = *req.IsActive
	}

	rule, err := domain.NewRule(params)
	if err != nil {
		return transport.RuleResponse{}, err
	}

	created, err := s.repo.Create(ctx, rule)
	if err != nil {
		return transport.RuleResponse{}, err
	}

	s.log.Info("follow-up rule created", "id", created.ID(), "organizationId", organizationID, "name", created.Name())
	return toResponse(created), nil
}

// Update replaces every field of an existing rule.
func (s *Service) Update(ctx context.Context, organizationID, id uuid.UUID, req transport.RuleRequest) (transport.RuleResponse, error) {
	existing, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return transport.RuleResponse{}, err
	}

	params := toParams(req)
	params.ID = id
	params.OrganizationID = organizationID
	params.IsActive = existing.IsActive()
	if req.IsActive != nil {
		params.IsActive = *req.IsActive
	}
	params.CreatedAt = existing.CreatedAt()

	rule, err := domain.NewRule(params)
	if err != nil {
		return transport.RuleResponse{}, err
	}

	updated, err := s.repo.Update(ctx, rule)
	if err != nil {
		return transport.RuleResponse{}, err
	}

	s.log.Info("follow-up rule updated", "id", id, "organizationId", organizationID)
	return toResponse(updated), nil
}

// Toggle flips the active flag of a rule.
func (s *Service) Toggle(ctx context.Context, organizationID, id uuid.UUID) (transport.RuleResponse, error) {
	existing, err := s.repo.GetByID(ctx, organizationID, id)
	if err != nil {
		return transport.RuleResponse{}, err
	}

	newActive := !existing.IsActive()
	rule, err := s.repo.SetActive(ctx, organizationID, id, newActive)
	if err != nil {
		return transport.RuleResponse{}, err
	}

	s.log.Info("follow-up rule active toggled", "id", id, "isActive", newActive)
	return toResponse(rule), nil
}

// Delete removes a rule together with its counters.
func (s *Service) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, organizationID, id); err != nil {
		return err
	}
	s.log.Info("follow-up rule deleted", "id", id, "organizationId", organizationID)
	return nil
}

// Run executes a synchronous pass for one organization.
func (s *Service) Run(ctx context.Context, organizationID uuid.UUID, req transport.RunRequest) (transport.RunResponse, error) {
	in := engine.PassInput{OrganizationID: organizationID, Signals: toSignals(req.Signals, s.now())}
	if req.Now != nil {
		in.Now = *req.Now
	}

	report, err := s.runner.RunPass(ctx, in)
	if err != nil {
		return transport.RunResponse{}, err
	}
	return toRunResponse(report), nil
}

// IngestEvents queues a pass carrying the given signals.
func (s *Service) IngestEvents(ctx context.Context, organizationID uuid.UUID, req transport.EventsRequest) (transport.EventsResponse, error) {
	signals := toSignals(req.Signals, s.now())

	if s.enqueuer == nil {
		if _, err := s.runner.RunPass(ctx, engine.PassInput{OrganizationID: organizationID, Signals: signals}); err != nil {
			return transport.EventsResponse{}, err
		}
		return transport.EventsResponse{Status: "processed", Signals: len(signals)}, nil
	}

	if err := s.enqueuer.EnqueueSignals(ctx, organizationID, signals); err != nil {
		return transport.EventsResponse{}, err
	}
	s.log.Info("follow-up signals queued", "organizationId", organizationID, "count", len(signals))
	return transport.EventsResponse{Status: "queued", Signals: len(signals)}, nil
}

// MarkReplied publishes a LeadReplied event and waits for its handlers, so
// the lead's counters are reset when this returns.
func (s *Service) MarkReplied(ctx context.Context, organizationID, leadID uuid.UUID, req transport.LeadRepliedRequest) error {
	repliedAt := s.now().UTC()
	if req.RepliedAt != nil {
		repliedAt = req.RepliedAt.UTC()
	}
	return s.bus.PublishSync(ctx, events.LeadReplied{
		BaseEvent:      events.NewBaseEvent(),
		OrganizationID: organizationID,
		LeadID:         leadID,
		RepliedAt:      repliedAt,
	})
}

// ResetCounter clears the follow-up counter of a lead for one rule.
func (s *Service) ResetCounter(ctx context.Context, organizationID, leadID, ruleID uuid.UUID) error {
	// Scope check: the rule must belong to the organization.
	if _, err := s.repo.GetByID(ctx, organizationID, ruleID); err != nil {
		return err
	}
	if err := s.tracker.Reset(ctx, leadID, ruleID); err != nil {
		return err
	}
	s.log.Info("follow-up counter reset", "leadId", leadID, "ruleId", ruleID)
	return nil
}

// ResetLead clears every follow-up counter of a lead.
func (s *Service) ResetLead(ctx context.Context, leadID uuid.UUID) error {
	return s.tracker.ResetLead(ctx, leadID)
}

// PreviewSendTime computes when a follow-up qualifying at req.QualifiedAt
// would be sent under the given schedule.
func (s *Service) PreviewSendTime(req transport.PreviewSendTimeRequest) (transport.PreviewSendTimeResponse, error) {
	sch := req.Schedule
	schedule, err := domain.NewSchedule(sch.RestrictToBusinessHours, sch.WindowStart, sch.WindowEnd, sch.AllowedWeekdays, sch.Timezone)
	if err != nil {
		return transport.PreviewSendTimeResponse{}, err
	}

	sendAt := businesshours.NextSendTime(schedule, req.QualifiedAt).UTC()
	return transport.PreviewSendTimeResponse{
		SendAt:      sendAt,
		LocalSendAt: sendAt.In(schedule.Location).Format(time.RFC3339),
		Timezone:    schedule.TimezoneName(),
		Deferred:    !sendAt.Equal(req.QualifiedAt),
	}, nil
}
