// Package followups provides the follow-up scheduling bounded context:
// rule configuration, on-demand passes and counter maintenance.
package followups

import (
	"context"
	"time"

	"followup_backend/internal/events"
	"followup_backend/internal/followups/dedup"
	"followup_backend/internal/followups/engine"
	"followup_backend/internal/followups/handler"
	"followup_backend/internal/followups/ports"
	"followup_backend/internal/followups/repository"
	"followup_backend/internal/followups/service"
	apphttp "followup_backend/internal/http"
	"followup_backend/platform/logger"
	"followup_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Deps are the collaborators the module is wired with. Enqueuer and
// Observer are optional.
type Deps struct {
	Pool       *pgxpool.Pool
	Tracker    dedup.Tracker
	Composer   ports.Composer
	Dispatcher ports.Dispatcher
	Enqueuer   service.SignalEnqueuer
	Observer   engine.Observer
	Bus        events.Bus
	Validator  *validator.Validator
	Log        *logger.Logger
	Tick       time.Duration
	Workers    int
}

// Module is the followups bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	engine  *engine.Engine
	repo    *repository.Repo
	leads   *repository.LeadReader
}

// NewModule creates and initializes the followups module with all its dependencies.
func NewModule(deps Deps) *Module {
	repo := repository.New(deps.Pool)
	leads := repository.NewLeadReader(deps.Pool)

	eng := engine.New(engine.Deps{
		Rules:         repo,
		Leads:         leads,
		Conversations: repository.NewConversationRepo(deps.Pool),
		Tracker:       deps.Tracker,
		Composer:      deps.Composer,
		Dispatcher:    deps.Dispatcher,
		Publisher:     deps.Bus,
		Observer:      deps.Observer,
		Log:           deps.Log,
		Tick:          deps.Tick,
		Workers:       deps.Workers,
	})

	svc := service.New(repo, eng, deps.Tracker, deps.Enqueuer, deps.Bus, deps.Log)
	h := handler.New(svc, deps.Validator)

	return &Module{
		handler: h,
		service: svc,
		engine:  eng,
		repo:    repo,
		leads:   leads,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "followups"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Engine returns the orchestrator, used by the scheduler worker.
func (m *Module) Engine() *engine.Engine {
	return m.engine
}

// Repository returns the rule repository.
func (m *Module) Repository() *repository.Repo {
	return m.repo
}

// Leads returns the lead snapshot reader.
func (m *Module) Leads() *repository.LeadReader {
	return m.leads
}

// RegisterRoutes mounts follow-up routes on the organization-scoped group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	rules := ctx.Organization.Group("/followup-rules")
	rules.GET("", m.handler.List)
	rules.POST("", m.handler.Create)
	rules.POST("/preview-send-time", m.handler.PreviewSendTime)
	rules.GET("/:id", m.handler.Get)
	rules.PUT("/:id", m.handler.Update)
	rules.PATCH("/:id/toggle", m.handler.Toggle)
	rules.DELETE("/:id", m.handler.Delete)

	ctx.Organization.POST("/followups/run", m.handler.Run)
	ctx.Organization.POST("/followups/events", m.handler.IngestEvents)
	ctx.Organization.POST("/leads/:leadId/replied", m.handler.MarkReplied)
	ctx.Organization.DELETE("/leads/:leadId/followup-counters/:ruleId", m.handler.ResetCounter)
}

// RegisterHandlers subscribes to lead events that affect follow-up counters.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.LeadReplied{}.EventName(), m)
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadReplied:
		return m.service.ResetLead(ctx, e.LeadID)
	default:
		return nil
	}
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
