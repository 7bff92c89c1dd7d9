package matcher

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"followup_backend/internal/followups/domain"
)

// Matches reports whether lead satisfies every filter category. Tags, origins,
// pipes and stages compare case-insensitively. Custom field conditions are
// OR-combined. A rule with no filters matches every lead.
func Matches(f domain.Filters, lead domain.LeadSnapshot) bool {
	for _, tag := range f.RequireTags {
		if !lead.HasTag(tag) {
			return false
		}
	}
	for _, tag := range f.ExcludeTags {
		if lead.HasTag(tag) {
			return false
		}
	}
	if !matchesOptionalField(f.Origins, lead.Origin) ||
		!matchesOptionalField(f.Pipes, lead.Pipe) ||
		!matchesOptionalField(f.Stages, lead.Stage) {
		return false
	}
	if len(f.CustomFieldConditions) == 0 {
		return true
	}
	for _, cond := range f.CustomFieldConditions {
		if MatchesCondition(cond, lead.CustomFields) {
			return true
		}
	}
	return false
}

func matchesOptionalField(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	value = strings.TrimSpace(value)
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return true
		}
	}
	return false
}

// MatchesCondition evaluates one custom field condition against the lead's
// custom fields. Missing fields only satisfy not_exists, not_equals and
// not_contains.
func MatchesCondition(cond domain.CustomFieldCondition, fields map[string]any) bool {
	value, present := lookupField(fields, cond.Field)
	if present && isBlank(value) {
		present = false
	}

	switch cond.Operator {
	case domain.OpExists:
		return present
	case domain.OpNotExists:
		return !present
	case domain.OpNotEquals:
		return !present || !equalValues(value, cond.Value)
	case domain.OpNotContains:
		return !present || !containsValue(value, cond.Value)
	}

	if !present {
		return false
	}

	switch cond.Operator {
	case domain.OpEquals:
		return equalValues(value, cond.Value)
	case domain.OpContains:
		return containsValue(value, cond.Value)
	case domain.OpStartsWith:
		return strings.HasPrefix(strings.ToLower(toString(value)), strings.ToLower(toString(cond.Value)))
	case domain.OpGreater, domain.OpGreaterEq, domain.OpLess, domain.OpLessEq:
		cmp, ok := compareOrdered(value, cond.Value)
		if !ok {
			return false
		}
		switch cond.Operator {
		case domain.OpGreater:
			return cmp > 0
		case domain.OpGreaterEq:
			return cmp >= 0
		case domain.OpLess:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case domain.OpIn:
		for _, candidate := range toList(cond.Value) {
			if equalValues(value, candidate) {
				return true
			}
		}
		return false
	}
	return false
}

func lookupField(fields map[string]any, name string) (any, bool) {
	if v, ok := fields[name]; ok {
		return v, true
	}
	for k, v := range fields {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func isBlank(v any) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case []any:
		return len(typed) == 0
	case []string:
		return len(typed) == 0
	}
	return false
}

func equalValues(a, b any) bool {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, err := strconv.ParseBool(toString(b)); err == nil {
			return ba == bb
		}
	}
	return strings.EqualFold(strings.TrimSpace(toString(a)), strings.TrimSpace(toString(b)))
}

// containsValue checks list membership for list fields and a case-insensitive
// substring otherwise.
func containsValue(field, needle any) bool {
	switch typed := field.(type) {
	case []any, []string:
		for _, item := range toList(typed) {
			if equalValues(item, needle) {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(toString(field)), strings.ToLower(toString(needle)))
}

func compareOrdered(a, b any) (int, bool) {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	if ta, okA := toTime(a); okA {
		if tb, okB := toTime(b); okB {
			return ta.Compare(tb), true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(typed, ",", ".")), 64)
		return f, err == nil
	}
	return 0, false
}

var timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func toTime(v any) (time.Time, bool) {
	switch typed := v.(type) {
	case time.Time:
		return typed, true
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(typed)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func toString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

// toList accepts JSON arrays, string slices and comma separated strings.
func toList(v any) []any {
	switch typed := v.(type) {
	case []any:
		return typed
	case []string:
		out := make([]any, len(typed))
		for i, s := range typed {
			out[i] = s
		}
		return out
	case string:
		parts := strings.Split(typed, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case nil:
		return nil
	}
	return []any{v}
}
