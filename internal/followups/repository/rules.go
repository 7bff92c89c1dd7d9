// Package repository persists follow-up rules and reads the CRM projections
// the engine evaluates.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"followup_backend/internal/followups/domain"
	"followup_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ruleNotFoundMessage = "follow-up rule not found"

const ruleColumns = `
	id, organization_id, name, priority, is_active,
	trigger_kind, trigger_delay_minutes, trigger_event_name, max_followups,
	filters, style, use_last_context, context_lookback_days, message_template,
	restrict_business_hours, window_start, window_end, allowed_weekdays, timezone,
	created_at, updated_at`

// Repo implements Repository with PostgreSQL.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a new follow-up rules repository.
func New(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

// Compile-time check that Repo implements Repository.
var _ Repository = (*Repo)(nil)

type conditionRecord struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value,omitempty"`
}

type filtersRecord struct {
	RequireTags           []string          `json:"requireTags,omitempty"`
	ExcludeTags           []string          `json:"excludeTags,omitempty"`
	Origins               []string          `json:"origins,omitempty"`
	Pipes                 []string          `json:"pipes,omitempty"`
	Stages                []string          `json:"stages,omitempty"`
	CustomFieldConditions []conditionRecord `json:"customFieldConditions,omitempty"`
}

func encodeFilters(f domain.Filters) (string, error) {
	rec := filtersRecord{
		RequireTags: f.RequireTags,
		ExcludeTags: f.ExcludeTags,
		Origins:     f.Origins,
		Pipes:       f.Pipes,
		Stages:      f.Stages,
	}
	for _, c := range f.CustomFieldConditions {
		rec.CustomFieldConditions = append(rec.CustomFieldConditions, conditionRecord{
			Field: c.Field, Operator: string(c.Operator), Value: c.Value,
		})
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode filters: %w", err)
	}
	return string(b), nil
}

func decodeFilters(raw []byte) (domain.Filters, error) {
	if len(raw) == 0 {
		return domain.Filters{}, nil
	}
	var rec filtersRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Filters{}, fmt.Errorf("decode filters: %w", err)
	}
	f := domain.Filters{
		RequireTags: rec.RequireTags,
		ExcludeTags: rec.ExcludeTags,
		Origins:     rec.Origins,
		Pipes:       rec.Pipes,
		Stages:      rec.Stages,
	}
	for _, c := range rec.CustomFieldConditions {
		f.CustomFieldConditions = append(f.CustomFieldConditions, domain.CustomFieldCondition{
			Field: c.Field, Operator: domain.Operator(c.Operator), Value: c.Value,
		})
	}
	return f, nil
}

// ruleArgs flattens a rule into the column order of ruleColumns minus the timestamps.
func ruleArgs(rule domain.Rule) ([]any, error) {
	filters, err := encodeFilters(rule.Filters())
	if err != nil {
		return nil, err
	}
	trigger := rule.Trigger()
	behavior := rule.Behavior()
	schedule := rule.Schedule()

	var eventName, template *string
	if trigger.EventName != "" {
		eventName = &trigger.EventName
	}
	if behavior.MessageTemplate != "" {
		template = &behavior.MessageTemplate
	}

	return []any{
		rule.ID(), rule.OrganizationID(), rule.Name(), rule.Priority(), rule.IsActive(),
		string(trigger.Kind), trigger.Delay.TotalMinutes(), eventName, trigger.MaxFollowups,
		filters, string(behavior.Style), behavior.UseLastContext, behavior.ContextLookbackDays, template,
		schedule.RestrictToBusinessHours, schedule.WindowStart.String(), schedule.WindowEnd.String(),
		schedule.AllowedWeekdays.Codes(), schedule.TimezoneName(),
	}, nil
}

func scanRule(row pgx.Row) (domain.Rule, error) {
	var (
		p            domain.RuleParams
		delayMinutes int
		eventName    *string
		filtersRaw   []byte
		template     *string
		lookback     int
		createdAt    time.Time
		updatedAt    time.Time
	)
	err := row.Scan(
		&p.ID, &p.OrganizationID, &p.Name, &p.Priority, &p.IsActive,
		&p.TriggerKind, &delayMinutes, &eventName, &p.MaxFollowups,
		&filtersRaw, &p.Style, &p.UseLastContext, &lookback, &template,
		&p.RestrictToBusinessHours, &p.WindowStart, &p.WindowEnd, &p.AllowedWeekdays, &p.Timezone,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return domain.Rule{}, err
	}

	delay := domain.DelayFromMinutes(delayMinutes)
	p.DelayHours, p.DelayMinutes = delay.Hours, delay.Minutes
	if eventName != nil {
		p.EventName = *eventName
	}
	if template != nil {
		p.MessageTemplate = *template
	}
	p.ContextLookbackDays = &lookback
	p.CreatedAt, p.UpdatedAt = createdAt, updatedAt

	if p.Filters, err = decodeFilters(filtersRaw); err != nil {
		return domain.Rule{}, err
	}
	return domain.NewRule(p)
}

// GetByID retrieves a rule by its ID.
func (r *Repo) GetByID(ctx context.Context, organizationID, id uuid.UUID) (domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM followup_rules WHERE id = $1 AND organization_id = $2`

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id, organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rule{}, apperr.NotFound(ruleNotFoundMessage)
		}
		return domain.Rule{}, fmt.Errorf("get follow-up rule: %w", err)
	}
	return rule, nil
}

// List retrieves all rules of an organization ordered by priority, then id.
func (r *Repo) List(ctx context.Context, organizationID uuid.UUID) ([]domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM followup_rules
		WHERE organization_id = $1
		ORDER BY priority ASC, id::text ASC`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list follow-up rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows, true)
}

// ActiveRules implements ports.RuleSource. Rows that no longer validate (for
// example a timezone dropped from tzdata) are skipped.
func (r *Repo) ActiveRules(ctx context.Context, organizationID uuid.UUID) ([]domain.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM followup_rules
		WHERE organization_id = $1 AND is_active = true
		ORDER BY priority ASC, id::text ASC`

	rows, err := r.pool.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list active follow-up rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows, false)
}

// OrganizationsWithActiveRules implements ports.RuleSource.
func (r *Repo) OrganizationsWithActiveRules(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT organization_id FROM followup_rules WHERE is_active = true`)
	if err != nil {
		return nil, fmt.Errorf("list organizations with active rules: %w", err)
	}
	defer rows.Close()

	orgs, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("scan organizations: %w", err)
	}
	return orgs, nil
}

// Create inserts a rule.
func (r *Repo) Create(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	args, err := ruleArgs(rule)
	if err != nil {
		return domain.Rule{}, err
	}
	query := `
		INSERT INTO followup_rules (
			id, organization_id, name, priority, is_active,
			trigger_kind, trigger_delay_minutes, trigger_event_name, max_followups,
			filters, style, use_last_context, context_lookback_days, message_template,
			restrict_business_hours, window_start, window_end, allowed_weekdays, timezone
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING ` + ruleColumns

	created, err := scanRule(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.Rule{}, fmt.Errorf("create follow-up rule: %w", err)
	}
	return created, nil
}

// Update replaces every mutable column of a rule.
func (r *Repo) Update(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	args, err := ruleArgs(rule)
	if err != nil {
		return domain.Rule{}, err
	}
	query := `
		UPDATE followup_rules SET
			name = $3, priority = $4, is_active = $5,
			trigger_kind = $6, trigger_delay_minutes = $7, trigger_event_name = $8, max_followups = $9,
			filters = $10, style = $11, use_last_context = $12, context_lookback_days = $13, message_template = $14,
			restrict_business_hours = $15, window_start = $16, window_end = $17, allowed_weekdays = $18, timezone = $19,
			updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + ruleColumns

	updated, err := scanRule(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rule{}, apperr.NotFound(ruleNotFoundMessage)
		}
		return domain.Rule{}, fmt.Errorf("update follow-up rule: %w", err)
	}
	return updated, nil
}

// SetActive toggles a rule.
func (r *Repo) SetActive(ctx context.Context, organizationID, id uuid.UUID, isActive bool) (domain.Rule, error) {
	query := `
		UPDATE followup_rules SET is_active = $3, updated_at = now()
		WHERE id = $1 AND organization_id = $2
		RETURNING ` + ruleColumns

	rule, err := scanRule(r.pool.QueryRow(ctx, query, id, organizationID, isActive))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Rule{}, apperr.NotFound(ruleNotFoundMessage)
		}
		return domain.Rule{}, fmt.Errorf("toggle follow-up rule: %w", err)
	}
	return rule, nil
}

// Delete removes a rule and, through the foreign key, its counters.
func (r *Repo) Delete(ctx context.Context, organizationID, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM followup_rules WHERE id = $1 AND organization_id = $2`, id, organizationID)
	if err != nil {
		return fmt.Errorf("delete follow-up rule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(ruleNotFoundMessage)
	}
	return nil
}

func scanRules(rows pgx.Rows, strict bool) ([]domain.Rule, error) {
	var rules []domain.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			if !strict && apperr.HasCode(err, apperr.CodeInvalidRuleConfig) {
				continue
			}
			return nil, fmt.Errorf("scan follow-up rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate follow-up rules: %w", err)
	}
	return rules, nil
}

// ActiveRuleCounts returns the number of active rules per trigger kind across
// all organizations.
func (r *Repo) ActiveRuleCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT trigger_kind, COUNT(*) FROM followup_rules
		WHERE is_active = true
		GROUP BY trigger_kind`)
	if err != nil {
		return nil, fmt.Errorf("count active rules: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan active rule count: %w", err)
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}
