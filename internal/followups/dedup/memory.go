package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type counterKey struct {
	lead uuid.UUID
	rule uuid.UUID
}

// MemoryTracker keeps counters in process. It backs dry runs and tests.
type MemoryTracker struct {
	mu       sync.Mutex
	counters map[counterKey]Counter
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{counters: make(map[counterKey]Counter)}
}

func (m *MemoryTracker) Count(_ context.Context, leadID, ruleID uuid.UUID) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[counterKey{leadID, ruleID}], nil
}

func (m *MemoryTracker) Reserve(_ context.Context, r Reservation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := counterKey{r.LeadID, r.RuleID}
	c := m.counters[key]
	qualifiedAt := normalize(r.QualifiedAt)
	if c.Count >= r.MaxFollowups {
		return false, nil
	}
	if c.LastQualifiedAt != nil && c.LastQualifiedAt.Equal(qualifiedAt) {
		return false, nil
	}

	sendAt := normalize(r.SendAt)
	m.counters[key] = Counter{Count: c.Count + 1, LastSentAt: &sendAt, LastQualifiedAt: &qualifiedAt}
	return true, nil
}

func (m *MemoryTracker) Reset(_ context.Context, leadID, ruleID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, counterKey{leadID, ruleID})
	return nil
}

func (m *MemoryTracker) ResetLead(_ context.Context, leadID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.counters {
		if k.lead == leadID {
			delete(m.counters, k)
		}
	}
	return nil
}

// PruneIdle drops counters whose last send is before the cutoff.
func (m *MemoryTracker) PruneIdle(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.counters {
		if c.LastSentAt == nil || c.LastSentAt.Before(before) {
			delete(m.counters, k)
			n++
		}
	}
	return n, nil
}
