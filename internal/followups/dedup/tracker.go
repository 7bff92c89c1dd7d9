// Package dedup enforces per-lead, per-rule follow-up caps. Reserve is the
// only synchronization point between overlapping orchestration passes.
package dedup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Counter is the durable state for one (lead, rule) pair.
type Counter struct {
	Count           int
	LastSentAt      *time.Time
	LastQualifiedAt *time.Time
}

// Reservation asks for one follow-up slot.
type Reservation struct {
	LeadID       uuid.UUID
	RuleID       uuid.UUID
	MaxFollowups int
	// QualifiedAt identifies the qualification; a second reservation for the
	// same instant is refused.
	QualifiedAt time.Time
	SendAt      time.Time
}

// Tracker stores follow-up counters.
type Tracker interface {
	Count(ctx context.Context, leadID, ruleID uuid.UUID) (Counter, error)
	// Reserve atomically increments the counter when Count < MaxFollowups and
	// the last reservation was for a different QualifiedAt. It returns false,
	// with no error, when the slot is refused.
	Reserve(ctx context.Context, r Reservation) (bool, error)
	Reset(ctx context.Context, leadID, ruleID uuid.UUID) error
	ResetLead(ctx context.Context, leadID uuid.UUID) error
}

// DefaultRetention is how long an idle counter is kept: Redis expires it,
// Postgres and memory trackers are pruned by CounterCleanup.
const DefaultRetention = 90 * 24 * time.Hour

// New picks the tracker backend: Redis when a client is given, Postgres when
// only a pool is given, memory otherwise. Redis counters expire after
// DefaultRetention.
func New(redisClient *redis.Client, pool *pgxpool.Pool) Tracker {
	return ForBackend(BackendRedis, DefaultRetention, redisClient, pool)
}

// Tracker backends accepted by ForBackend.
const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ForBackend is New with an explicit preference and retention. BackendPostgres
// keeps counters in Postgres even when Redis is available. A non-positive
// retention means DefaultRetention.
func ForBackend(backend string, retention time.Duration, redisClient *redis.Client, pool *pgxpool.Pool) Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	switch {
	case backend == BackendPostgres && pool != nil:
		return NewPostgresTracker(pool)
	case redisClient != nil:
		return NewRedisTracker(redisClient, WithRetention(retention))
	case pool != nil:
		return NewPostgresTracker(pool)
	default:
		return NewMemoryTracker()
	}
}

// normalize drops precision below what Postgres keeps so every backend
// compares qualification instants the same way.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Pruner is implemented by backends without native key expiry.
type Pruner interface {
	PruneIdle(ctx context.Context, before time.Time) (int64, error)
}

var (
	_ Pruner = (*PostgresTracker)(nil)
	_ Pruner = (*MemoryTracker)(nil)
)
