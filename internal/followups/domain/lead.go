package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LeadSnapshot is the read-only CRM projection of a lead at evaluation time.
type LeadSnapshot struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	Name             string
	Phone            string
	Tags             []string
	Origin           string
	Pipe             string
	Stage            string
	CustomFields     map[string]any
	LastInboundAt    *time.Time
	LastOutboundAt   *time.Time
	ScheduledEventAt *time.Time
	CreatedAt        time.Time
}

// HasTag reports whether the lead carries tag, ignoring case.
func (l LeadSnapshot) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// EventSignal is an external fact injected into a pass for event triggers.
type EventSignal struct {
	LeadID     uuid.UUID `json:"leadId"`
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurredAt"`
}

// QualificationEvent records that a rule's trigger held for a lead.
type QualificationEvent struct {
	LeadID      uuid.UUID
	RuleID      uuid.UUID
	TriggerKind TriggerKind
	QualifiedAt time.Time
}

// ScheduledSend is the output of one orchestration pass for one lead.
type ScheduledSend struct {
	LeadID         uuid.UUID
	RuleID         uuid.UUID
	OrganizationID uuid.UUID
	SendAt         time.Time
	Style          Style
	Template       string
	TriggerKind    TriggerKind
	QualifiedAt    time.Time
}
