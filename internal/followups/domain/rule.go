// Package domain holds the follow-up rule value type and the read-only
// projections the engine works on. Rules can only be obtained through
// NewRule, so every Rule observed elsewhere is already valid.
package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"followup_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/osteele/liquid"
)

// TriggerKind identifies what makes a rule qualify.
type TriggerKind string

const (
	TriggerNoResponse TriggerKind = "no_response"
	TriggerScheduled  TriggerKind = "scheduled"
	TriggerEvent      TriggerKind = "event"
)

// Style selects the tone the composer uses.
type Style string

const (
	StyleDirect    Style = "direct"
	StyleValue     Style = "value"
	StyleCuriosity Style = "curiosity"
	StyleBreakup   Style = "breakup"
)

// Operator is a custom field comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpNotContains Operator = "not_contains"
	OpStartsWith  Operator = "starts_with"
	OpGreater     Operator = "gt"
	OpGreaterEq   Operator = "gte"
	OpLess        Operator = "lt"
	OpLessEq      Operator = "lte"
	OpExists      Operator = "exists"
	OpNotExists   Operator = "not_exists"
	OpIn          Operator = "in"
)

const (
	DefaultTimezone            = "America/Sao_Paulo"
	DefaultWindowStart         = "09:00"
	DefaultWindowEnd           = "18:00"
	DefaultContextLookbackDays = 7
)

var validStyles = map[Style]struct{}{
	StyleDirect: {}, StyleValue: {}, StyleCuriosity: {}, StyleBreakup: {},
}

var validOperators = map[Operator]struct{}{
	OpEquals: {}, OpNotEquals: {}, OpContains: {}, OpNotContains: {}, OpStartsWith: {},
	OpGreater: {}, OpGreaterEq: {}, OpLess: {}, OpLessEq: {},
	OpExists: {}, OpNotExists: {}, OpIn: {},
}

// OperatorNeedsValue reports whether op compares against Value.
func OperatorNeedsValue(op Operator) bool {
	return op != OpExists && op != OpNotExists
}

// Delay is a signed offset made of hours and minutes.
type Delay struct {
	Hours   int
	Minutes int
}

// Duration returns the delay as a time.Duration.
func (d Delay) Duration() time.Duration {
	return time.Duration(d.Hours)*time.Hour + time.Duration(d.Minutes)*time.Minute
}

// DelayFromMinutes splits a minute count into hours and minutes.
func DelayFromMinutes(total int) Delay {
	return Delay{Hours: total / 60, Minutes: total % 60}
}

// TotalMinutes returns the delay expressed in minutes.
func (d Delay) TotalMinutes() int {
	return d.Hours*60 + d.Minutes
}

// Trigger describes when a rule qualifies.
type Trigger struct {
	Kind         TriggerKind
	Delay        Delay
	MaxFollowups int
	// EventName is set only for event triggers.
	EventName string
}

// CustomFieldCondition compares one lead custom field.
type CustomFieldCondition struct {
	Field    string
	Operator Operator
	Value    any
}

// Filters restrict which leads a rule applies to.
type Filters struct {
	RequireTags           []string
	ExcludeTags           []string
	Origins               []string
	Pipes                 []string
	Stages                []string
	CustomFieldConditions []CustomFieldCondition
}

// IsEmpty reports whether no filter category is set.
func (f Filters) IsEmpty() bool {
	return len(f.RequireTags) == 0 && len(f.ExcludeTags) == 0 &&
		len(f.Origins) == 0 && len(f.Pipes) == 0 && len(f.Stages) == 0 &&
		len(f.CustomFieldConditions) == 0
}

func (f Filters) clone() Filters {
	out := Filters{
		RequireTags: cloneStrings(f.RequireTags),
		ExcludeTags: cloneStrings(f.ExcludeTags),
		Origins:     cloneStrings(f.Origins),
		Pipes:       cloneStrings(f.Pipes),
		Stages:      cloneStrings(f.Stages),
	}
	if f.CustomFieldConditions != nil {
		out.CustomFieldConditions = make([]CustomFieldCondition, len(f.CustomFieldConditions))
		for i, c := range f.CustomFieldConditions {
			out.CustomFieldConditions[i] = CustomFieldCondition{Field: c.Field, Operator: c.Operator, Value: cloneValue(c.Value)}
		}
	}
	return out
}

// Behavior configures how the message is composed.
type Behavior struct {
	Style               Style
	UseLastContext      bool
	ContextLookbackDays int
	MessageTemplate     string
}

// Schedule is the business-hours window a rule may send in.
type Schedule struct {
	RestrictToBusinessHours bool
	WindowStart             ClockTime
	WindowEnd               ClockTime
	AllowedWeekdays         WeekdaySet
	Location                *time.Location
}

// TimezoneName returns the IANA name of the schedule location.
func (s Schedule) TimezoneName() string {
	if s.Location == nil {
		return "UTC"
	}
	return s.Location.String()
}

// Rule is a validated follow-up rule. The zero value is not usable; build
// rules with NewRule.
type Rule struct {
	id             uuid.UUID
	organizationID uuid.UUID
	name           string
	priority       int
	isActive       bool
	trigger        Trigger
	filters        Filters
	behavior       Behavior
	schedule       Schedule
	createdAt      time.Time
	updatedAt      time.Time
}

func (r Rule) ID() uuid.UUID             { return r.id }
func (r Rule) OrganizationID() uuid.UUID { return r.organizationID }
func (r Rule) Name() string              { return r.name }
func (r Rule) Priority() int             { return r.priority }
func (r Rule) IsActive() bool            { return r.isActive }
func (r Rule) Trigger() Trigger          { return r.trigger }
func (r Rule) Behavior() Behavior        { return r.behavior }
func (r Rule) Schedule() Schedule        { return r.schedule }
func (r Rule) CreatedAt() time.Time      { return r.createdAt }
func (r Rule) UpdatedAt() time.Time      { return r.updatedAt }

// Filters returns a copy of the rule filters.
func (r Rule) Filters() Filters { return r.filters.clone() }

// WithActive returns a copy of the rule with the active flag replaced.
func (r Rule) WithActive(active bool) Rule {
	r.isActive = active
	r.filters = r.filters.clone()
	return r
}

// Params returns the construction parameters that rebuild this rule.
func (r Rule) Params() RuleParams {
	lookback := r.behavior.ContextLookbackDays
	return RuleParams{
		ID:                      r.id,
		OrganizationID:          r.organizationID,
		Name:                    r.name,
		Priority:                r.priority,
		IsActive:                r.isActive,
		TriggerKind:             string(r.trigger.Kind),
		DelayHours:              r.trigger.Delay.Hours,
		DelayMinutes:            r.trigger.Delay.Minutes,
		MaxFollowups:            r.trigger.MaxFollowups,
		EventName:               r.trigger.EventName,
		Filters:                 r.filters.clone(),
		Style:                   string(r.behavior.Style),
		UseLastContext:          r.behavior.UseLastContext,
		ContextLookbackDays:     &lookback,
		MessageTemplate:         r.behavior.MessageTemplate,
		RestrictToBusinessHours: r.schedule.RestrictToBusinessHours,
		WindowStart:             r.schedule.WindowStart.String(),
		WindowEnd:               r.schedule.WindowEnd.String(),
		AllowedWeekdays:         r.schedule.AllowedWeekdays.Codes(),
		Timezone:                r.schedule.TimezoneName(),
		CreatedAt:               r.createdAt,
		UpdatedAt:               r.updatedAt,
	}
}

// RuleParams is the loosely typed input accepted by NewRule.
type RuleParams struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Priority       int
	IsActive       bool

	TriggerKind  string
	DelayHours   int
	DelayMinutes int
	MaxFollowups int
	EventName    string

	Filters Filters

	Style               string
	UseLastContext      bool
	ContextLookbackDays *int
	MessageTemplate     string

	RestrictToBusinessHours bool
	WindowStart             string
	WindowEnd               string
	AllowedWeekdays         []string
	Timezone                string

	CreatedAt time.Time
	UpdatedAt time.Time
}

var templateEngine = liquid.NewEngine()

// NewRule validates p and returns an immutable Rule. Every problem found is
// reported in the details of a single InvalidRuleConfig error, keyed by field.
func NewRule(p RuleParams) (Rule, error) {
	problems := map[string]string{}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if p.OrganizationID == uuid.Nil {
		problems["organizationId"] = "is required"
	}

	name := strings.TrimSpace(p.Name)
	if name == "" {
		problems["name"] = "is required"
	}

	trigger := Trigger{
		Kind:         TriggerKind(strings.ToLower(strings.TrimSpace(p.TriggerKind))),
		Delay:        Delay{Hours: p.DelayHours, Minutes: p.DelayMinutes},
		MaxFollowups: p.MaxFollowups,
		EventName:    strings.TrimSpace(p.EventName),
	}
	switch trigger.Kind {
	case TriggerNoResponse, TriggerScheduled:
		trigger.EventName = ""
	case TriggerEvent:
		if trigger.EventName == "" {
			problems["trigger.eventName"] = "is required for event triggers"
		}
	default:
		problems["trigger.kind"] = fmt.Sprintf("unknown trigger kind %q", p.TriggerKind)
	}
	if trigger.Kind != TriggerScheduled && trigger.Delay.Duration() < 0 {
		problems["trigger.delay"] = "may be negative only for scheduled triggers"
	}
	if trigger.MaxFollowups < 1 {
		problems["trigger.maxFollowups"] = "must be at least 1"
	}

	filters := normalizeFilters(p.Filters)
	for i, cond := range filters.CustomFieldConditions {
		key := "filters.customFieldConditions[" + strconv.Itoa(i) + "]"
		if cond.Field == "" {
			problems[key+".field"] = "is required"
		}
		if _, ok := validOperators[cond.Operator]; !ok {
			problems[key+".operator"] = fmt.Sprintf("unknown operator %q", cond.Operator)
			continue
		}
		if OperatorNeedsValue(cond.Operator) && cond.Value == nil {
			problems[key+".value"] = "is required for operator " + string(cond.Operator)
		}
	}

	behavior := Behavior{
		Style:               Style(strings.ToLower(strings.TrimSpace(p.Style))),
		UseLastContext:      p.UseLastContext,
		ContextLookbackDays: DefaultContextLookbackDays,
		MessageTemplate:     p.MessageTemplate,
	}
	if behavior.Style == "" {
		behavior.Style = StyleDirect
	}
	if _, ok := validStyles[behavior.Style]; !ok {
		problems["behavior.style"] = fmt.Sprintf("unknown style %q", p.Style)
	}
	if p.ContextLookbackDays != nil {
		behavior.ContextLookbackDays = *p.ContextLookbackDays
	}
	if behavior.ContextLookbackDays < 0 {
		problems["behavior.contextLookbackDays"] = "must not be negative"
	}
	if strings.TrimSpace(behavior.MessageTemplate) != "" {
		if _, err := templateEngine.ParseString(behavior.MessageTemplate); err != nil {
			problems["behavior.messageTemplate"] = "does not parse: " + err.Error()
		}
	}

	schedule, scheduleProblems := buildSchedule(p)
	for k, v := range scheduleProblems {
		problems[k] = v
	}

	if len(problems) > 0 {
		return Rule{}, apperr.InvalidRuleConfig(problems).WithOp("domain.NewRule")
	}

	return Rule{
		id:             id,
		organizationID: p.OrganizationID,
		name:           name,
		priority:       p.Priority,
		isActive:       p.IsActive,
		trigger:        trigger,
		filters:        filters,
		behavior:       behavior,
		schedule:       schedule,
		createdAt:      p.CreatedAt,
		updatedAt:      p.UpdatedAt,
	}, nil
}

// NewSchedule validates a standalone business-hours window, used to preview
// send times before a rule exists.
func NewSchedule(restrict bool, windowStart, windowEnd string, weekdays []string, timezone string) (Schedule, error) {
	schedule, problems := buildSchedule(RuleParams{
		RestrictToBusinessHours: restrict,
		WindowStart:             windowStart,
		WindowEnd:               windowEnd,
		AllowedWeekdays:         weekdays,
		Timezone:                timezone,
	})
	if len(problems) > 0 {
		return Schedule{}, apperr.InvalidRuleConfig(problems).WithOp("domain.NewSchedule")
	}
	return schedule, nil
}

func buildSchedule(p RuleParams) (Schedule, map[string]string) {
	problems := map[string]string{}
	schedule := Schedule{RestrictToBusinessHours: p.RestrictToBusinessHours}

	tzName := strings.TrimSpace(p.Timezone)
	if tzName == "" {
		tzName = DefaultTimezone
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		problems["schedule.timezone"] = fmt.Sprintf("unknown IANA timezone %q", tzName)
	}
	schedule.Location = loc

	startRaw := orDefault(p.WindowStart, DefaultWindowStart)
	endRaw := orDefault(p.WindowEnd, DefaultWindowEnd)
	start, errStart := ParseClock(startRaw)
	if errStart != nil {
		problems["schedule.windowStart"] = errStart.Error()
	}
	end, errEnd := ParseClock(endRaw)
	if errEnd != nil {
		problems["schedule.windowEnd"] = errEnd.Error()
	}
	if errStart == nil && errEnd == nil && start >= end {
		problems["schedule.windowStart"] = "must be before windowEnd"
	}
	schedule.WindowStart = start
	schedule.WindowEnd = end

	days, err := ParseWeekdays(p.AllowedWeekdays)
	if err != nil {
		problems["schedule.allowedWeekdays"] = err.Error()
	} else if schedule.RestrictToBusinessHours && days.IsEmpty() {
		problems["schedule.allowedWeekdays"] = "must not be empty when restricted to business hours"
	}
	schedule.AllowedWeekdays = days

	return schedule, problems
}

func normalizeFilters(f Filters) Filters {
	out := Filters{
		RequireTags: normalizeSet(f.RequireTags),
		ExcludeTags: normalizeSet(f.ExcludeTags),
		Origins:     normalizeSet(f.Origins),
		Pipes:       normalizeSet(f.Pipes),
		Stages:      normalizeSet(f.Stages),
	}
	for _, c := range f.CustomFieldConditions {
		out.CustomFieldConditions = append(out.CustomFieldConditions, CustomFieldCondition{
			Field:    strings.TrimSpace(c.Field),
			Operator: Operator(strings.ToLower(strings.TrimSpace(string(c.Operator)))),
			Value:    cloneValue(c.Value),
		})
	}
	return out
}

// normalizeSet trims, drops empties and removes case-insensitive duplicates
// while keeping the first spelling.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case []any:
		return append([]any(nil), typed...)
	case []string:
		return append([]string(nil), typed...)
	default:
		return v
	}
}
