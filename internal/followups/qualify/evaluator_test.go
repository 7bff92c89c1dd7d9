package qualify

import (
	"testing"
	"time"

	"followup_backend/internal/followups/domain"

	"github.com/google/uuid"
)

var orgID = uuid.MustParse("7b0c7f5e-0000-4000-8000-000000000001")

func mustRule(t *testing.T, mutate func(*domain.RuleParams)) domain.Rule {
	t.Helper()
	p := domain.RuleParams{
		OrganizationID: orgID,
		Name:           "rule",
		IsActive:       true,
		TriggerKind:    string(domain.TriggerNoResponse),
		DelayHours:     24,
		MaxFollowups:   3,
	}
	if mutate != nil {
		mutate(&p)
	}
	rule, err := domain.NewRule(p)
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	return rule
}

func ptr(t time.Time) *time.Time { return &t }

func TestNoResponseScenario(t *testing.T) {
	now := time.Date(2024, time.June, 18, 15, 0, 0, 0, time.UTC)
	rule := mustRule(t, nil)
	eval := NewEvaluator(5 * time.Minute)

	inbound := now.Add(-25 * time.Hour)
	lead := domain.LeadSnapshot{ID: uuid.New(), OrganizationID: orgID, LastInboundAt: ptr(inbound)}

	event, ok := eval.Qualifies(rule, lead, now, nil)
	if !ok {
		t.Fatal("expected lead silent for 25h to qualify for a 24h rule")
	}
	if want := inbound.Add(24 * time.Hour); !event.QualifiedAt.Equal(want) {
		t.Fatalf("qualifiedAt = %s, want %s", event.QualifiedAt, want)
	}
	if event.TriggerKind != domain.TriggerNoResponse || event.RuleID != rule.ID() || event.LeadID != lead.ID {
		t.Fatalf("unexpected event %+v", event)
	}

	lead.LastOutboundAt = ptr(inbound.Add(time.Hour))
	if _, ok := eval.Qualifies(rule, lead, now, nil); ok {
		t.Fatal("expected no qualification when the agent spoke last")
	}
}

func TestNoResponse(t *testing.T) {
	now := time.Date(2024, time.June, 18, 15, 0, 0, 0, time.UTC)
	rule := mustRule(t, nil)
	eval := NewEvaluator(0)

	tests := []struct {
		name string
		lead domain.LeadSnapshot
		want bool
		at   time.Time
	}{
		{
			name: "too recent",
			lead: domain.LeadSnapshot{LastInboundAt: ptr(now.Add(-23 * time.Hour))},
		},
		{
			name: "exactly at delay",
			lead: domain.LeadSnapshot{LastInboundAt: ptr(now.Add(-24 * time.Hour))},
			want: true,
			at:   now,
		},
		{
			name: "outbound equal to inbound still qualifies",
			lead: domain.LeadSnapshot{LastInboundAt: ptr(now.Add(-30 * time.Hour)), LastOutboundAt: ptr(now.Add(-30 * time.Hour))},
			want: true,
			at:   now.Add(-6 * time.Hour),
		},
		{
			name: "cold lead anchors on creation",
			lead: domain.LeadSnapshot{CreatedAt: now.Add(-48 * time.Hour), LastOutboundAt: ptr(now.Add(-47 * time.Hour))},
			want: true,
			at:   now.Add(-24 * time.Hour),
		},
		{
			name: "cold lead too new",
			lead: domain.LeadSnapshot{CreatedAt: now.Add(-2 * time.Hour)},
		},
		{
			name: "no anchor at all",
			lead: domain.LeadSnapshot{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.lead.ID = uuid.New()
			tt.lead.OrganizationID = orgID
			event, ok := eval.Qualifies(rule, tt.lead, now, nil)
			if ok != tt.want {
				t.Fatalf("qualifies = %v, want %v", ok, tt.want)
			}
			if ok && !event.QualifiedAt.Equal(tt.at) {
				t.Fatalf("qualifiedAt = %s, want %s", event.QualifiedAt, tt.at)
			}
		})
	}
}

func TestScheduledTrigger(t *testing.T) {
	meeting := time.Date(2024, time.June, 20, 14, 0, 0, 0, time.UTC)
	rule := mustRule(t, func(p *domain.RuleParams) {
		p.TriggerKind = string(domain.TriggerScheduled)
		p.DelayHours = -2
	})
	eval := NewEvaluator(5 * time.Minute)
	lead := domain.LeadSnapshot{ID: uuid.New(), OrganizationID: orgID, ScheduledEventAt: ptr(meeting)}

	target := meeting.Add(-2 * time.Hour)
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before target", now: target.Add(-time.Second)},
		{name: "at target", now: target, want: true},
		{name: "inside tick", now: target.Add(4 * time.Minute), want: true},
		{name: "tick end is exclusive", now: target.Add(5 * time.Minute)},
		{name: "long after", now: meeting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, ok := eval.Qualifies(rule, lead, tt.now, nil)
			if ok != tt.want {
				t.Fatalf("qualifies = %v, want %v", ok, tt.want)
			}
			if ok && !event.QualifiedAt.Equal(target) {
				t.Fatalf("qualifiedAt = %s, want %s", event.QualifiedAt, target)
			}
		})
	}

	lead.ScheduledEventAt = nil
	if _, ok := eval.Qualifies(rule, lead, target, nil); ok {
		t.Fatal("lead without a scheduled event must not qualify")
	}
}

func TestEventTriggerUsesLatestMatchingSignal(t *testing.T) {
	now := time.Date(2024, time.June, 18, 15, 0, 0, 0, time.UTC)
	rule := mustRule(t, func(p *domain.RuleParams) {
		p.TriggerKind = string(domain.TriggerEvent)
		p.EventName = "proposal_viewed"
		p.DelayHours = 0
		p.DelayMinutes = 30
	})
	lead := domain.LeadSnapshot{ID: uuid.New(), OrganizationID: orgID}
	eval := NewEvaluator(0)

	signals := []domain.EventSignal{
		{LeadID: lead.ID, Name: "Proposal_Viewed", OccurredAt: now.Add(-2 * time.Hour)},
		{LeadID: lead.ID, Name: "proposal_viewed", OccurredAt: now.Add(-time.Hour)},
		{LeadID: lead.ID, Name: "other", OccurredAt: now},
		{LeadID: uuid.New(), Name: "proposal_viewed", OccurredAt: now},
	}

	event, ok := eval.Qualifies(rule, lead, now, signals)
	if !ok {
		t.Fatal("expected qualification")
	}
	if want := now.Add(-30 * time.Minute); !event.QualifiedAt.Equal(want) {
		t.Fatalf("qualifiedAt = %s, want %s", event.QualifiedAt, want)
	}

	if _, ok := eval.Qualifies(rule, lead, now, signals[2:3]); ok {
		t.Fatal("non matching signal must not qualify")
	}
}

func TestEvaluateSkipsInactiveAndForeignRules(t *testing.T) {
	now := time.Date(2024, time.June, 18, 15, 0, 0, 0, time.UTC)
	active := mustRule(t, nil)
	inactive := mustRule(t, func(p *domain.RuleParams) { p.IsActive = false })
	foreign := mustRule(t, func(p *domain.RuleParams) { p.OrganizationID = uuid.New() })

	lead := domain.LeadSnapshot{ID: uuid.New(), OrganizationID: orgID, LastInboundAt: ptr(now.Add(-48 * time.Hour))}
	got := NewEvaluator(0).Evaluate(lead, []domain.Rule{inactive, active, foreign}, now, nil)

	if len(got) != 1 || got[0].Rule.ID() != active.ID() {
		t.Fatalf("expected only the active rule, got %d candidates", len(got))
	}
}
