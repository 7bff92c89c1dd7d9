package service

import (
	"sort"
	"time"

	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/engine"
	"followup_backend/internal/followups/transport"

	"github.com/google/uuid"
)

func toParams(req transport.RuleRequest) domain.RuleParams {
	priority := DefaultPriority
	if req.Priority != nil {
		priority = *req.Priority
	}

	filters := domain.Filters{
		RequireTags: req.Filters.RequireTags,
		ExcludeTags: req.Filters.ExcludeTags,
		Origins:     req.Filters.Origins,
		Pipes:       req.Filters.Pipes,
		Stages:      req.Filters.Stages,
	}
	for _, c := range req.Filters.CustomFieldConditions {
		filters.CustomFieldConditions = append(filters.CustomFieldConditions, domain.CustomFieldCondition{
			Field:    c.Field,
			Operator: domain.Operator(c.Operator),
			Value:    c.Value,
		})
	}

	return domain.RuleParams{
		Name:                    req.Name,
		Priority:                priority,
		TriggerKind:             req.Trigger.Kind,
		DelayHours:              req.Trigger.DelayHours,
		DelayMinutes:            req.Trigger.DelayMinutes,
		MaxFollowups:            req.Trigger.MaxFollowups,
		EventName:               req.Trigger.EventName,
		Filters:                 filters,
		Style:                   req.Behavior.Style,
		UseLastContext:          req.Behavior.UseLastContext,
		ContextLookbackDays:     req.Behavior.ContextLookbackDays,
		MessageTemplate:         req.Behavior.MessageTemplate,
		RestrictToBusinessHours: req.Schedule.RestrictToBusinessHours,
		WindowStart:             req.Schedule.WindowStart,
		WindowEnd:               req.Schedule.WindowEnd,
		AllowedWeekdays:         req.Schedule.AllowedWeekdays,
		Timezone:                req.Schedule.Timezone,
	}
}

func toResponse(rule domain.Rule) transport.RuleResponse {
	trigger := rule.Trigger()
	filters := rule.Filters()
	behavior := rule.Behavior()
	schedule := rule.Schedule()

	resp := transport.RuleResponse{
		ID:             rule.ID(),
		OrganizationID: rule.OrganizationID(),
		Name:           rule.Name(),
		Priority:       rule.Priority(),
		IsActive:       rule.IsActive(),
		Trigger: transport.TriggerRequest{
			Kind:         string(trigger.Kind),
			DelayHours:   trigger.Delay.Hours,
			DelayMinutes: trigger.Delay.Minutes,
			MaxFollowups: trigger.MaxFollowups,
			EventName:    trigger.EventName,
		},
		Filters: transport.FiltersRequest{
			RequireTags: filters.RequireTags,
			ExcludeTags: filters.ExcludeTags,
			Origins:     filters.Origins,
			Pipes:       filters.Pipes,
			Stages:      filters.Stages,
		},
		Behavior: transport.BehaviorResponse{
			Style:               string(behavior.Style),
			UseLastContext:      behavior.UseLastContext,
			ContextLookbackDays: behavior.ContextLookbackDays,
			MessageTemplate:     behavior.MessageTemplate,
		},
		Schedule: transport.ScheduleRequest{
			RestrictToBusinessHours: schedule.RestrictToBusinessHours,
			WindowStart:             schedule.WindowStart.String(),
			WindowEnd:               schedule.WindowEnd.String(),
			AllowedWeekdays:         schedule.AllowedWeekdays.Codes(),
			Timezone:                schedule.TimezoneName(),
		},
		CreatedAt: rule.CreatedAt(),
		UpdatedAt: rule.UpdatedAt(),
	}
	for _, c := range filters.CustomFieldConditions {
		resp.Filters.CustomFieldConditions = append(resp.Filters.CustomFieldConditions, transport.CustomFieldConditionRequest{
			Field:    c.Field,
			Operator: string(c.Operator),
			Value:    c.Value,
		})
	}
	return resp
}

// toSignals converts request signals; a missing occurredAt means "now".
func toSignals(in []transport.SignalRequest, now time.Time) []domain.EventSignal {
	if len(in) == 0 {
		return nil
	}
	out := make([]domain.EventSignal, len(in))
	for i, s := range in {
		occurred := now
		if s.OccurredAt != nil {
			occurred = *s.OccurredAt
		}
		out[i] = domain.EventSignal{LeadID: s.LeadID, Name: s.Name, OccurredAt: occurred.UTC()}
	}
	return out
}

func toRunResponse(report engine.PassReport) transport.RunResponse {
	resp := transport.RunResponse{
		OrganizationID: report.OrganizationID,
		StartedAt:      report.StartedAt,
		FinishedAt:     report.FinishedAt,
		Leads:          report.Leads,
		Outcomes:       map[string]int{},
		Scheduled:      make([]transport.ScheduledSendResponse, 0, len(report.Scheduled)),
		Failures:       []transport.LeadFailureResponse{},
		Cancelled:      report.Cancelled,
	}
	for _, res := range report.Results {
		resp.Outcomes[string(res.Outcome)]++
	}
	for _, send := range report.Scheduled {
		resp.Scheduled = append(resp.Scheduled, transport.ScheduledSendResponse{
			LeadID:      send.LeadID,
			RuleID:      send.RuleID,
			SendAt:      send.SendAt,
			Style:       string(send.Style),
			QualifiedAt: send.QualifiedAt,
		})
	}
	sort.Slice(resp.Scheduled, func(i, j int) bool {
		return resp.Scheduled[i].SendAt.Before(resp.Scheduled[j].SendAt)
	})
	for _, f := range report.Failures() {
		failure := transport.LeadFailureResponse{LeadID: f.LeadID, Outcome: string(f.Outcome)}
		if f.RuleID != uuid.Nil {
			ruleID := f.RuleID
			failure.RuleID = &ruleID
		}
		if f.Err != nil {
			failure.Error = f.Err.Error()
		}
		resp.Failures = append(resp.Failures, failure)
	}
	return resp
}
