// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"followup_backend/platform/events"
	"followup_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event        = events.Event
	Bus          = events.Bus
	Handler      = events.Handler
	HandlerFunc  = events.HandlerFunc
	BaseEvent    = events.BaseEvent
	TenantScoped = events.TenantScoped
	InMemoryBus  = events.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus builds the bus modules subscribe to.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// =============================================================================
// Lead Lifecycle Events
// =============================================================================

// LeadReplied is published when a lead sends an inbound message. Follow-up
// counters for the lead are reset in response.
type LeadReplied struct {
	BaseEvent
	OrganizationID uuid.UUID `json:"organizationId"`
	LeadID         uuid.UUID `json:"leadId"`
	RepliedAt      time.Time `json:"repliedAt"`
}

func (e LeadReplied) EventName() string { return "leads.lead.replied" }
func (e LeadReplied) Tenant() uuid.UUID { return e.OrganizationID }

// =============================================================================
// Follow-up Events
// =============================================================================

// FollowupScheduled is published after a follow-up was reserved, composed and
// handed to the dispatcher.
type FollowupScheduled struct {
	BaseEvent
	OrganizationID uuid.UUID `json:"organizationId"`
	LeadID         uuid.UUID `json:"leadId"`
	RuleID         uuid.UUID `json:"ruleId"`
	SendAt         time.Time `json:"sendAt"`
	Style          string    `json:"style"`
	Source         string    `json:"source"`
}

func (e FollowupScheduled) EventName() string { return "followups.followup.scheduled" }
func (e FollowupScheduled) Tenant() uuid.UUID { return e.OrganizationID }

// FollowupDeliveryFailed is published when a follow-up could not be composed,
// dispatched or delivered. The reservation is kept.
type FollowupDeliveryFailed struct {
	BaseEvent
	OrganizationID uuid.UUID `json:"organizationId"`
	LeadID         uuid.UUID `json:"leadId"`
	RuleID         uuid.UUID `json:"ruleId"`
	Stage          string    `json:"stage"`
	Reason         string    `json:"reason"`
}

func (e FollowupDeliveryFailed) EventName() string { return "followups.followup.delivery_failed" }
func (e FollowupDeliveryFailed) Tenant() uuid.UUID { return e.OrganizationID }

// Failure stages reported by FollowupDeliveryFailed.
const (
	StageCompose  = "compose"
	StageDispatch = "dispatch"
	StageDelivery = "delivery"
)
