// Package ports declares the collaborators the follow-up engine reaches out
// to. Implementations live in repository, composer and scheduler packages.
package ports

import (
	"context"
	"time"

	"followup_backend/internal/followups/domain"

	"github.com/google/uuid"
)

// RuleSource loads validated rules.
type RuleSource interface {
	ActiveRules(ctx context.Context, organizationID uuid.UUID) ([]domain.Rule, error)
	OrganizationsWithActiveRules(ctx context.Context) ([]uuid.UUID, error)
}

// LeadProvider returns the leads that may qualify for a follow-up.
type LeadProvider interface {
	QualifiableLeads(ctx context.Context, organizationID uuid.UUID, asOf time.Time) ([]domain.LeadSnapshot, error)
}

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// ConversationMessage is one message of the lead's recent conversation.
type ConversationMessage struct {
	Direction string
	Body      string
	SentAt    time.Time
}

// ConversationReader loads recent conversation history for context.
type ConversationReader interface {
	RecentConversation(ctx context.Context, organizationID, leadID uuid.UUID, since time.Time) ([]ConversationMessage, error)
}

// ConversationContext is what the composer gets besides the rule and lead.
type ConversationContext struct {
	LookbackDays int
	Messages     []ConversationMessage
}

// ComposeRequest carries everything a composer may use.
type ComposeRequest struct {
	Send    domain.ScheduledSend
	Rule    domain.Rule
	Lead    domain.LeadSnapshot
	Context ConversationContext
}

// Message sources.
const (
	SourceTemplate = "template"
	SourceAI       = "ai"
	SourceDefault  = "default"
)

// Message is a composed follow-up ready for dispatch.
type Message struct {
	Recipient string
	Body      string
	Source    string
}

// Composer produces the message content.
type Composer interface {
	Compose(ctx context.Context, req ComposeRequest) (Message, error)
}

// Dispatcher hands a composed follow-up to the delivery channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, send domain.ScheduledSend, msg Message) error
}
