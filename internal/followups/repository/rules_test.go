package repository

import (
	"reflect"
	"testing"
	"time"

	"followup_backend/internal/followups/domain"
	"followup_backend/platform/apperr"

	"github.com/google/uuid"
)

type fakeRow struct {
	values []any
}

func (r fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		if r.values[i] == nil {
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func ruleRow(timezone string, filters string) fakeRow {
	template := "Oi {{ lead.name }}"
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	return fakeRow{values: []any{
		uuid.MustParse("00000000-0000-4000-8000-000000000001"),
		uuid.MustParse("00000000-0000-4000-8000-0000000000aa"),
		"Sem resposta 24h", 1, true,
		"no_response", 1530, nil, 3,
		[]byte(filters), "value", true, 14, &template,
		true, "09:00", "18:00", []string{"mon", "tue", "wed", "thu", "fri"}, timezone,
		now, now,
	}}
}

func TestScanRuleRebuildsThroughNewRule(t *testing.T) {
	filters := `{"requireTags":["hot"],"customFieldConditions":[{"field":"budget","operator":"gt","value":1000}]}`
	rule, err := scanRule(ruleRow("America/Sao_Paulo", filters))
	if err != nil {
		t.Fatalf("scanRule: %v", err)
	}

	if got := rule.Trigger().Delay; got != (domain.Delay{Hours: 25, Minutes: 30}) {
		t.Fatalf("delay = %+v", got)
	}
	if rule.Behavior().ContextLookbackDays != 14 || rule.Behavior().MessageTemplate == "" {
		t.Fatalf("unexpected behavior %+v", rule.Behavior())
	}
	f := rule.Filters()
	if len(f.RequireTags) != 1 || len(f.CustomFieldConditions) != 1 {
		t.Fatalf("unexpected filters %+v", f)
	}
	if f.CustomFieldConditions[0].Operator != domain.OpGreater {
		t.Fatalf("operator = %q", f.CustomFieldConditions[0].Operator)
	}
	if !rule.Schedule().AllowedWeekdays.Has(time.Friday) || rule.Schedule().AllowedWeekdays.Has(time.Sunday) {
		t.Fatal("weekdays not restored")
	}
}

func TestScanRuleRejectsInvalidRows(t *testing.T) {
	_, err := scanRule(ruleRow("Mars/Olympus_Mons", `{}`))
	if !apperr.HasCode(err, apperr.CodeInvalidRuleConfig) {
		t.Fatalf("expected InvalidRuleConfig, got %v", err)
	}
}

func TestFiltersEncodingKeepsConditions(t *testing.T) {
	in := domain.Filters{
		Origins: []string{"instagram"},
		CustomFieldConditions: []domain.CustomFieldCondition{
			{Field: "city", Operator: domain.OpIn, Value: []any{"Campinas", "Santos"}},
			{Field: "vip", Operator: domain.OpExists},
		},
	}
	raw, err := encodeFilters(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeFilters([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("filters changed:\n in  %+v\n out %+v", in, out)
	}
}

func TestDecodeFiltersEmpty(t *testing.T) {
	f, err := decodeFilters(nil)
	if err != nil || !f.IsEmpty() {
		t.Fatalf("decodeFilters(nil) = %+v, %v", f, err)
	}
}
