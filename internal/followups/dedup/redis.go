package dedup

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "followups"

// reserveScript returns 1 when reserved, 0 when capped and -1 when the same
// qualification was already reserved.
var reserveScript = redis.NewScript(`
local count = tonumber(redis.call("hget", KEYS[1], "count") or "0")
if count >= tonumber(ARGV[1]) then
	return 0
end
local last = redis.call("hget", KEYS[1], "last_qualified_at")
if last and last == ARGV[2] then
	return -1
end
redis.call("hset", KEYS[1], "count", count + 1, "last_qualified_at", ARGV[2], "last_sent_at", ARGV[3])
redis.call("sadd", KEYS[2], ARGV[4])
local ttl = tonumber(ARGV[5])
if ttl > 0 then
	redis.call("pexpire", KEYS[1], ttl)
	redis.call("pexpire", KEYS[2], ttl)
end
return 1
`)

// resetLeadScript deletes every counter recorded in the lead index.
var resetLeadScript = redis.NewScript(`
local rules = redis.call("smembers", KEYS[1])
for _, rule in ipairs(rules) do
	redis.call("del", ARGV[1] .. rule)
end
redis.call("del", KEYS[1])
return #rules
`)

// RedisTracker stores counters as hashes and keeps a per-lead index set so a
// lead reply can clear all of its counters at once.
type RedisTracker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisTracker.
type RedisOption func(*RedisTracker)

// WithKeyPrefix namespaces the tracker keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(t *RedisTracker) { t.prefix = prefix }
}

// WithRetention expires idle counters after ttl. Zero keeps them forever.
func WithRetention(ttl time.Duration) RedisOption {
	return func(t *RedisTracker) { t.ttl = ttl }
}

func NewRedisTracker(client redis.UniversalClient, opts ...RedisOption) *RedisTracker {
	t := &RedisTracker{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *RedisTracker) counterPrefix(leadID uuid.UUID) string {
	return fmt.Sprintf("%s:counter:%s:", t.prefix, leadID)
}

func (t *RedisTracker) counterKey(leadID, ruleID uuid.UUID) string {
	return t.counterPrefix(leadID) + ruleID.String()
}

func (t *RedisTracker) leadIndexKey(leadID uuid.UUID) string {
	return fmt.Sprintf("%s:lead:%s", t.prefix, leadID)
}

func (t *RedisTracker) Count(ctx context.Context, leadID, ruleID uuid.UUID) (Counter, error) {
	values, err := t.client.HGetAll(ctx, t.counterKey(leadID, ruleID)).Result()
	if err != nil {
		return Counter{}, fmt.Errorf("read counter: %w", err)
	}

	var c Counter
	if raw, ok := values["count"]; ok {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Counter{}, fmt.Errorf("parse counter: %w", err)
		}
		c.Count = n
	}
	c.LastSentAt = parseMicros(values["last_sent_at"])
	c.LastQualifiedAt = parseMicros(values["last_qualified_at"])
	return c, nil
}

func (t *RedisTracker) Reserve(ctx context.Context, r Reservation) (bool, error) {
	keys := []string{t.counterKey(r.LeadID, r.RuleID), t.leadIndexKey(r.LeadID)}
	result, err := reserveScript.Run(ctx, t.client, keys,
		r.MaxFollowups,
		normalize(r.QualifiedAt).UnixMicro(),
		normalize(r.SendAt).UnixMicro(),
		r.RuleID.String(),
		t.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("reserve follow-up: %w", err)
	}
	return result == 1, nil
}

func (t *RedisTracker) Reset(ctx context.Context, leadID, ruleID uuid.UUID) error {
	pipe := t.client.TxPipeline()
	pipe.Del(ctx, t.counterKey(leadID, ruleID))
	pipe.SRem(ctx, t.leadIndexKey(leadID), ruleID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return nil
}

func (t *RedisTracker) ResetLead(ctx context.Context, leadID uuid.UUID) error {
	if err := resetLeadScript.Run(ctx, t.client, []string{t.leadIndexKey(leadID)}, t.counterPrefix(leadID)).Err(); err != nil {
		return fmt.Errorf("reset lead counters: %w", err)
	}
	return nil
}

func parseMicros(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	ts := time.UnixMicro(n).UTC()
	return &ts
}
