// Package qualify decides which rule triggers hold for a lead at a given
// instant. Qualification is derived from the snapshot every time and never
// stored.
package qualify

import (
	"strings"
	"time"

	"followup_backend/internal/followups/domain"
)

// DefaultTick is the evaluation interval assumed when none is configured.
const DefaultTick = 5 * time.Minute

// Candidate is a rule whose trigger fired for a lead.
type Candidate struct {
	Rule  domain.Rule
	Event domain.QualificationEvent
}

// Evaluator checks rule triggers against lead snapshots.
type Evaluator struct {
	tick time.Duration
}

// NewEvaluator creates an evaluator. tick is the width of the window in which
// a scheduled trigger is considered due.
func NewEvaluator(tick time.Duration) *Evaluator {
	if tick <= 0 {
		tick = DefaultTick
	}
	return &Evaluator{tick: tick}
}

// Tick returns the scheduled-trigger window width.
func (e *Evaluator) Tick() time.Duration { return e.tick }

// Evaluate returns every active rule of the lead's organization whose trigger
// holds at now, in the order the rules were given.
func (e *Evaluator) Evaluate(lead domain.LeadSnapshot, rules []domain.Rule, now time.Time, signals []domain.EventSignal) []Candidate {
	var out []Candidate
	for _, rule := range rules {
		event, ok := e.Qualifies(rule, lead, now, signals)
		if !ok {
			continue
		}
		out = append(out, Candidate{Rule: rule, Event: event})
	}
	return out
}

// Qualifies evaluates a single rule for a lead.
func (e *Evaluator) Qualifies(rule domain.Rule, lead domain.LeadSnapshot, now time.Time, signals []domain.EventSignal) (domain.QualificationEvent, bool) {
	if !rule.IsActive() || rule.OrganizationID() != lead.OrganizationID {
		return domain.QualificationEvent{}, false
	}

	trigger := rule.Trigger()
	var (
		qualifiedAt time.Time
		ok          bool
	)
	switch trigger.Kind {
	case domain.TriggerNoResponse:
		qualifiedAt, ok = noResponse(lead, trigger.Delay.Duration(), now)
	case domain.TriggerScheduled:
		qualifiedAt, ok = e.scheduled(lead, trigger.Delay.Duration(), now)
	case domain.TriggerEvent:
		qualifiedAt, ok = eventSignal(lead, trigger, signals)
	}
	if !ok {
		return domain.QualificationEvent{}, false
	}

	return domain.QualificationEvent{
		LeadID:      lead.ID,
		RuleID:      rule.ID(),
		TriggerKind: trigger.Kind,
		QualifiedAt: qualifiedAt.UTC(),
	}, true
}

// noResponse anchors on the last inbound message, or on lead creation for a
// lead that never replied. A lead whose last inbound was already answered
// does not qualify.
func noResponse(lead domain.LeadSnapshot, delay time.Duration, now time.Time) (time.Time, bool) {
	var anchor time.Time
	if lead.LastInboundAt != nil {
		anchor = *lead.LastInboundAt
		if lead.LastOutboundAt != nil && lead.LastOutboundAt.After(anchor) {
			return time.Time{}, false
		}
	} else {
		anchor = lead.CreatedAt
	}
	if anchor.IsZero() {
		return time.Time{}, false
	}

	qualifiedAt := anchor.Add(delay)
	if now.Before(qualifiedAt) {
		return time.Time{}, false
	}
	return qualifiedAt, true
}

func (e *Evaluator) scheduled(lead domain.LeadSnapshot, delay time.Duration, now time.Time) (time.Time, bool) {
	if lead.ScheduledEventAt == nil {
		return time.Time{}, false
	}
	target := lead.ScheduledEventAt.Add(delay)
	if now.Before(target) || !now.Before(target.Add(e.tick)) {
		return time.Time{}, false
	}
	return target, true
}

// eventSignal uses the latest matching signal for the lead.
func eventSignal(lead domain.LeadSnapshot, trigger domain.Trigger, signals []domain.EventSignal) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, s := range signals {
		if s.LeadID != lead.ID || !strings.EqualFold(strings.TrimSpace(s.Name), trigger.EventName) {
			continue
		}
		if !found || s.OccurredAt.After(latest) {
			latest = s.OccurredAt
			found = true
		}
	}
	if !found {
		return time.Time{}, false
	}
	return latest.Add(trigger.Delay.Duration()), true
}
