// Package matcher resolves the single rule that governs a qualified lead.
package matcher

import (
	"context"
	"fmt"
	"sort"

	"followup_backend/internal/followups/dedup"
	"followup_backend/internal/followups/domain"
	"followup_backend/internal/followups/qualify"

	"github.com/google/uuid"
)

// CountReader is the part of the dedup tracker the matcher needs.
type CountReader interface {
	Count(ctx context.Context, leadID, ruleID uuid.UUID) (dedup.Counter, error)
}

// Matcher filters candidates and resolves a winner by priority.
type Matcher struct {
	counts CountReader
}

// New creates a matcher reading follow-up counts from counts.
func New(counts CountReader) *Matcher {
	return &Matcher{counts: counts}
}

// Select returns the winning candidate for lead, or false when every
// candidate is filtered out or already at its cap. Candidates are ranked
// before counts are read so at most one store read happens per rejected rule.
func (m *Matcher) Select(ctx context.Context, lead domain.LeadSnapshot, candidates []qualify.Candidate) (qualify.Candidate, bool, error) {
	matching := make([]qualify.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if Matches(c.Rule.Filters(), lead) {
			matching = append(matching, c)
		}
	}
	Rank(matching)

	for _, c := range matching {
		counter, err := m.counts.Count(ctx, lead.ID, c.Rule.ID())
		if err != nil {
			return qualify.Candidate{}, false, fmt.Errorf("read follow-up count for rule %s: %w", c.Rule.ID(), err)
		}
		if counter.Count >= c.Rule.Trigger().MaxFollowups {
			continue
		}
		return c, true, nil
	}
	return qualify.Candidate{}, false, nil
}

// Rank orders candidates by ascending priority, then by rule id string.
func Rank(candidates []qualify.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return Less(candidates[i].Rule, candidates[j].Rule)
	})
}

// Less reports whether a outranks b.
func Less(a, b domain.Rule) bool {
	if a.Priority() != b.Priority() {
		return a.Priority() < b.Priority()
	}
	return a.ID().String() < b.ID().String()
}
