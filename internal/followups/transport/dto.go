package transport

import (
	"time"

	"github.com/google/uuid"
)

// TriggerRequest describes when a rule qualifies.
type TriggerRequest struct {
	Kind         string `json:"kind" yaml:"kind" validate:"required,oneof=no_response scheduled event"`
	DelayHours   int    `json:"delayHours" yaml:"delayHours"`
	DelayMinutes int    `json:"delayMinutes" yaml:"delayMinutes" validate:"min=-59,max=59"`
	MaxFollowups int    `json:"maxFollowups" yaml:"maxFollowups" validate:"required,min=1,max=100"`
	EventName    string `json:"eventName,omitempty" yaml:"eventName" validate:"omitempty,max=100"`
}

// CustomFieldConditionRequest compares one lead custom field.
type CustomFieldConditionRequest struct {
	Field    string `json:"field" yaml:"field" validate:"required,max=100"`
	Operator string `json:"operator" yaml:"operator" validate:"required,oneof=equals not_equals contains not_contains starts_with gt gte lt lte exists not_exists in"`
	Value    any    `json:"value,omitempty" yaml:"value"`
}

// FiltersRequest restricts which leads a rule applies to.
type FiltersRequest struct {
	RequireTags           []string                      `json:"requireTags,omitempty" yaml:"requireTags" validate:"omitempty,dive,max=100"`
	ExcludeTags           []string                      `json:"excludeTags,omitempty" yaml:"excludeTags" validate:"omitempty,dive,max=100"`
	Origins               []string                      `json:"origins,omitempty" yaml:"origins" validate:"omitempty,dive,max=100"`
	Pipes                 []string                      `json:"pipes,omitempty" yaml:"pipes" validate:"omitempty,dive,max=100"`
	Stages                []string                      `json:"stages,omitempty" yaml:"stages" validate:"omitempty,dive,max=100"`
	CustomFieldConditions []CustomFieldConditionRequest `json:"customFieldConditions,omitempty" yaml:"customFieldConditions" validate:"omitempty,dive"`
}

// BehaviorRequest configures message composition.
type BehaviorRequest struct {
	Style               string `json:"style,omitempty" yaml:"style" validate:"omitempty,oneof=direct value curiosity breakup"`
	UseLastContext      bool   `json:"useLastContext" yaml:"useLastContext"`
	ContextLookbackDays *int   `json:"contextLookbackDays,omitempty" yaml:"contextLookbackDays" validate:"omitempty,min=0,max=90"`
	MessageTemplate     string `json:"messageTemplate,omitempty" yaml:"messageTemplate" validate:"omitempty,max=4000"`
}

// ScheduleRequest is a business-hours window.
type ScheduleRequest struct {
	RestrictToBusinessHours bool     `json:"restrictToBusinessHours" yaml:"restrictToBusinessHours"`
	WindowStart             string   `json:"windowStart,omitempty" yaml:"windowStart" validate:"omitempty,clock"`
	WindowEnd               string   `json:"windowEnd,omitempty" yaml:"windowEnd" validate:"omitempty,clock"`
	AllowedWeekdays         []string `json:"allowedWeekdays,omitempty" yaml:"allowedWeekdays" validate:"omitempty,dive,weekday"`
	Timezone                string   `json:"timezone,omitempty" yaml:"timezone" validate:"omitempty,iana_tz"`
}

// RuleRequest creates a rule or replaces every field of an existing one.
type RuleRequest struct {
	Name     string          `json:"name" yaml:"name" validate:"required,min=1,max=150"`
	Priority *int            `json:"priority,omitempty" yaml:"priority" validate:"omitempty,min=0"`
	IsActive *bool           `json:"isActive,omitempty" yaml:"isActive"`
	Trigger  TriggerRequest  `json:"trigger" yaml:"trigger"`
	Filters  FiltersRequest  `json:"filters" yaml:"filters"`
	Behavior BehaviorRequest `json:"behavior" yaml:"behavior"`
	Schedule ScheduleRequest `json:"schedule" yaml:"schedule"`
}

// RuleResponse is a rule in API responses.
type RuleResponse struct {
	ID             uuid.UUID        `json:"id"`
	OrganizationID uuid.UUID        `json:"organizationId"`
	Name           string           `json:"name"`
	Priority       int              `json:"priority"`
	IsActive       bool             `json:"isActive"`
	Trigger        TriggerRequest   `json:"trigger"`
	Filters        FiltersRequest   `json:"filters"`
	Behavior       BehaviorResponse `json:"behavior"`
	Schedule       ScheduleRequest  `json:"schedule"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// BehaviorResponse mirrors BehaviorRequest with the resolved lookback.
type BehaviorResponse struct {
	Style               string `json:"style"`
	UseLastContext      bool   `json:"useLastContext"`
	ContextLookbackDays int    `json:"contextLookbackDays"`
	MessageTemplate     string `json:"messageTemplate,omitempty"`
}

// RuleListResponse wraps a list of rules.
type RuleListResponse struct {
	Items []RuleResponse `json:"items"`
	Total int            `json:"total"`
}

// SignalRequest is an external fact for event triggers.
type SignalRequest struct {
	LeadID     uuid.UUID  `json:"leadId" validate:"required"`
	Name       string     `json:"name" validate:"required,max=100"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

// RunRequest triggers a synchronous pass.
type RunRequest struct {
	Now     *time.Time      `json:"now,omitempty"`
	Signals []SignalRequest `json:"signals,omitempty" validate:"omitempty,dive"`
}

// EventsRequest queues a pass carrying event signals.
type EventsRequest struct {
	Signals []SignalRequest `json:"signals" validate:"required,min=1,max=500,dive"`
}

// EventsResponse acknowledges queued signals.
type EventsResponse struct {
	Status  string `json:"status"`
	Signals int    `json:"signals"`
}

// ScheduledSendResponse is one follow-up scheduled by a pass.
type ScheduledSendResponse struct {
	LeadID      uuid.UUID `json:"leadId"`
	RuleID      uuid.UUID `json:"ruleId"`
	SendAt      time.Time `json:"sendAt"`
	Style       string    `json:"style"`
	QualifiedAt time.Time `json:"qualifiedAt"`
}

// LeadFailureResponse is a per-lead failure of a pass.
type LeadFailureResponse struct {
	LeadID  uuid.UUID  `json:"leadId"`
	RuleID  *uuid.UUID `json:"ruleId,omitempty"`
	Outcome string     `json:"outcome"`
	Error   string     `json:"error"`
}

// RunResponse summarizes a pass.
type RunResponse struct {
	OrganizationID uuid.UUID               `json:"organizationId"`
	StartedAt      time.Time               `json:"startedAt"`
	FinishedAt     time.Time               `json:"finishedAt"`
	Leads          int                     `json:"leads"`
	Outcomes       map[string]int          `json:"outcomes"`
	Scheduled      []ScheduledSendResponse `json:"scheduled"`
	Failures       []LeadFailureResponse   `json:"failures"`
	Cancelled      bool                    `json:"cancelled"`
}

// LeadRepliedRequest records an inbound reply.
type LeadRepliedRequest struct {
	RepliedAt *time.Time `json:"repliedAt,omitempty"`
}

// PreviewSendTimeRequest asks when a follow-up qualifying at QualifiedAt would go out.
type PreviewSendTimeRequest struct {
	QualifiedAt time.Time       `json:"qualifiedAt" validate:"required"`
	Schedule    ScheduleRequest `json:"schedule"`
}

// PreviewSendTimeResponse answers a preview.
type PreviewSendTimeResponse struct {
	SendAt      time.Time `json:"sendAt"`
	LocalSendAt string    `json:"localSendAt"`
	Timezone    string    `json:"timezone"`
	Deferred    bool      `json:"deferred"`
}
