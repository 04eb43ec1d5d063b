package ratelimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript refills and consumes in one round trip.
// KEYS[1] bucket hash; ARGV: capacity, refill rate, interval ms, tokens, now ms.
// Returns {remaining, last_refill_ms}.
var consumeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local want = tonumber(ARGV[4])
local now = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'refill')
local tokens = tonumber(state[1])
local refill = tonumber(state[2])
if tokens == nil or refill == nil then
	tokens = capacity
	refill = now
end

local intervals = math.floor((now - refill) / interval)
if intervals > 0 then
	intervals = math.min(intervals, math.floor(capacity / rate) + 1)
	tokens = math.min(tokens + intervals * rate, capacity)
	refill = now
end

local remaining = tokens - want
if remaining >= 0 then
	tokens = remaining
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'refill', refill)
redis.call('PEXPIRE', KEYS[1], math.max(interval * (math.floor(capacity / rate) + 1), 1000))
return {remaining, refill}
`)

// RedisStore keeps buckets in Redis hashes shared by every instance.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store whose keys are prefix+"ratelimit:"+key.
// Panics on a nil client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if client == nil {
		panic("ratelimiter: redis client is required")
	}
	return &RedisStore{client: client, prefix: prefix + "ratelimit:", now: time.Now}
}

// ConsumeTokens implements Store. Time comes from the caller's clock, not
// from Redis.
func (s *RedisStore) ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (int, time.Time, error) {
	res, err := consumeScript.Run(ctx, s.client, []string{s.prefix + key},
		cfg.Capacity,
		cfg.RefillRate,
		max(cfg.RefillInterval.Milliseconds(), 1),
		tokens,
		s.now().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return 0, time.Time{}, err
	}
	resetAt := time.UnixMilli(res[1]).Add(cfg.RefillInterval)
	return int(res[0]), resetAt, nil
}

// Reset implements Store.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
