package matcher

import (
	"testing"

	"followup_backend/internal/followups/domain"
)

func TestMatchesFilterCategories(t *testing.T) {
	lead := domain.LeadSnapshot{
		Tags:   []string{"Hot", "inbound"},
		Origin: "Instagram",
		Pipe:   "Vendas",
		Stage:  "Proposta",
	}

	tests := []struct {
		name    string
		filters domain.Filters
		want    bool
	}{
		{name: "empty filters match everything", filters: domain.Filters{}, want: true},
		{name: "all required tags present", filters: domain.Filters{RequireTags: []string{"hot", "INBOUND"}}, want: true},
		{name: "one required tag missing", filters: domain.Filters{RequireTags: []string{"hot", "vip"}}},
		{name: "excluded tag present", filters: domain.Filters{ExcludeTags: []string{"inbound"}}},
		{name: "excluded tag absent", filters: domain.Filters{ExcludeTags: []string{"lost"}}, want: true},
		{name: "origin in set", filters: domain.Filters{Origins: []string{"facebook", "instagram"}}, want: true},
		{name: "origin not in set", filters: domain.Filters{Origins: []string{"import"}}},
		{name: "pipe and stage", filters: domain.Filters{Pipes: []string{"vendas"}, Stages: []string{"proposta", "fechamento"}}, want: true},
		{name: "stage mismatch", filters: domain.Filters{Pipes: []string{"vendas"}, Stages: []string{"fechamento"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.filters, lead); got != tt.want {
				t.Fatalf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCustomFieldConditionsAreORed(t *testing.T) {
	lead := domain.LeadSnapshot{CustomFields: map[string]any{"budget": 5000.0, "city": "Campinas"}}
	filters := domain.Filters{CustomFieldConditions: []domain.CustomFieldCondition{
		{Field: "budget", Operator: domain.OpGreater, Value: 10000},
		{Field: "city", Operator: domain.OpEquals, Value: "campinas"},
	}}
	if !Matches(filters, lead) {
		t.Fatal("expected one satisfied condition to match")
	}

	filters.CustomFieldConditions[1].Value = "Santos"
	if Matches(filters, lead) {
		t.Fatal("expected no satisfied condition to fail")
	}
}

func TestMatchesCondition(t *testing.T) {
	fields := map[string]any{
		"budget":    "7.500,50",
		"seats":     12,
		"plan":      "Enterprise Annual",
		"interests": []any{"crm", "whatsapp"},
		"renewal":   "2024-09-01",
		"empty":     "  ",
		"active":    true,
	}

	tests := []struct {
		name string
		cond domain.CustomFieldCondition
		want bool
	}{
		{name: "equals number and string", cond: domain.CustomFieldCondition{Field: "seats", Operator: domain.OpEquals, Value: "12"}, want: true},
		{name: "equals bool", cond: domain.CustomFieldCondition{Field: "active", Operator: domain.OpEquals, Value: "true"}, want: true},
		{name: "not equals", cond: domain.CustomFieldCondition{Field: "plan", Operator: domain.OpNotEquals, Value: "basic"}, want: true},
		{name: "not equals missing field", cond: domain.CustomFieldCondition{Field: "nope", Operator: domain.OpNotEquals, Value: "x"}, want: true},
		{name: "contains substring", cond: domain.CustomFieldCondition{Field: "plan", Operator: domain.OpContains, Value: "annual"}, want: true},
		{name: "contains list element", cond: domain.CustomFieldCondition{Field: "interests", Operator: domain.OpContains, Value: "WhatsApp"}, want: true},
		{name: "not contains", cond: domain.CustomFieldCondition{Field: "interests", Operator: domain.OpNotContains, Value: "erp"}, want: true},
		{name: "starts with", cond: domain.CustomFieldCondition{Field: "plan", Operator: domain.OpStartsWith, Value: "enter"}, want: true},
		{name: "gt numeric", cond: domain.CustomFieldCondition{Field: "seats", Operator: domain.OpGreater, Value: 10}, want: true},
		{name: "lte numeric false", cond: domain.CustomFieldCondition{Field: "seats", Operator: domain.OpLessEq, Value: 11}},
		{name: "gte equal", cond: domain.CustomFieldCondition{Field: "seats", Operator: domain.OpGreaterEq, Value: 12.0}, want: true},
		{name: "lt date", cond: domain.CustomFieldCondition{Field: "renewal", Operator: domain.OpLess, Value: "2024-12-31"}, want: true},
		{name: "gt not comparable", cond: domain.CustomFieldCondition{Field: "plan", Operator: domain.OpGreater, Value: 1}},
		{name: "exists", cond: domain.CustomFieldCondition{Field: "Plan", Operator: domain.OpExists}, want: true},
		{name: "blank does not exist", cond: domain.CustomFieldCondition{Field: "empty", Operator: domain.OpExists}},
		{name: "not exists", cond: domain.CustomFieldCondition{Field: "empty", Operator: domain.OpNotExists}, want: true},
		{name: "in list", cond: domain.CustomFieldCondition{Field: "seats", Operator: domain.OpIn, Value: []any{5, 12}}, want: true},
		{name: "in csv", cond: domain.CustomFieldCondition{Field: "plan", Operator: domain.OpIn, Value: "basic, enterprise annual"}, want: true},
		{name: "in miss", cond: domain.CustomFieldCondition{Field: "plan", Operator: domain.OpIn, Value: []string{"basic"}}},
		{name: "missing field equals", cond: domain.CustomFieldCondition{Field: "nope", Operator: domain.OpEquals, Value: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesCondition(tt.cond, fields); got != tt.want {
				t.Fatalf("MatchesCondition = %v, want %v", got, tt.want)
			}
		})
	}
}
