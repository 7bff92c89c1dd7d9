package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresTracker stores counters in followup_counters. Reserve is a single
// conditional upsert, so concurrent passes serialize on the row lock.
type PostgresTracker struct {
	pool *pgxpool.Pool
}

func NewPostgresTracker(pool *pgxpool.Pool) *PostgresTracker {
	return &PostgresTracker{pool: pool}
}

func (t *PostgresTracker) Count(ctx context.Context, leadID, ruleID uuid.UUID) (Counter, error) {
	var (
		c             Counter
		lastSent      *time.Time
		lastQualified *time.Time
	)
	err := t.pool.QueryRow(ctx, `
		SELECT count, last_sent_at, last_qualified_at
		FROM followup_counters
		WHERE lead_id = $1 AND rule_id = $2`,
		leadID, ruleID,
	).Scan(&c.Count, &lastSent, &lastQualified)
	if errors.Is(err, pgx.ErrNoRows) {
		return Counter{}, nil
	}
	if err != nil {
		return Counter{}, fmt.Errorf("read counter: %w", err)
	}
	c.LastSentAt = lastSent
	c.LastQualifiedAt = lastQualified
	return c, nil
}

func (t *PostgresTracker) Reserve(ctx context.Context, r Reservation) (bool, error) {
	if r.MaxFollowups < 1 {
		return false, nil
	}
	tag, err := t.pool.Exec(ctx, `
		INSERT INTO followup_counters (lead_id, rule_id, count, last_sent_at, last_qualified_at, updated_at)
		VALUES ($1, $2, 1, $4, $5, now())
		ON CONFLICT (lead_id, rule_id) DO UPDATE
		SET count = followup_counters.count + 1,
			last_sent_at = EXCLUDED.last_sent_at,
			last_qualified_at = EXCLUDED.last_qualified_at,
			updated_at = now()
		WHERE followup_counters.count < $3
			AND followup_counters.last_qualified_at IS DISTINCT FROM EXCLUDED.last_qualified_at`,
		r.LeadID, r.RuleID, r.MaxFollowups, normalize(r.SendAt), normalize(r.QualifiedAt),
	)
	if err != nil {
		return false, fmt.Errorf("reserve follow-up: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *PostgresTracker) Reset(ctx context.Context, leadID, ruleID uuid.UUID) error {
	if _, err := t.pool.Exec(ctx, `DELETE FROM followup_counters WHERE lead_id = $1 AND rule_id = $2`, leadID, ruleID); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}

func (t *PostgresTracker) ResetLead(ctx context.Context, leadID uuid.UUID) error {
	if _, err := t.pool.Exec(ctx, `DELETE FROM followup_counters WHERE lead_id = $1`, leadID); err != nil {
		return fmt.Errorf("reset lead counters: %w", err)
	}
	return nil
}

// PruneIdle deletes counters not reserved since before and returns how many
// were removed.
func (t *PostgresTracker) PruneIdle(ctx context.Context, before time.Time) (int64, error) {
	tag, err := t.pool.Exec(ctx, `DELETE FROM followup_counters WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune idle counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
