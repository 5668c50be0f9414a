package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// takeScript runs the fixed-window algorithm atomically on a hash
// {count, reset_at} where reset_at is unix milliseconds on the caller's clock.
// The expiry is relative so Redis's own clock never decides when a window ends.
// Times are whole milliseconds; the Limiter truncates its clock to match.
//
// KEYS[1] record key
// ARGV[1] now (ms)  ARGV[2] max attempts  ARGV[3] reset_at for a fresh window (ms)
// ARGV[4] time to live for a fresh window (ms)
//
// Returns {allowed, remaining, reset_at}.
var takeScript = redis.NewScript(`
local count = tonumber(redis.call('HGET', KEYS[1], 'count'))
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset_at'))
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])

if count == nil or reset == nil or now > reset then
	redis.call('HSET', KEYS[1], 'count', '1', 'reset_at', ARGV[3])
	redis.call('PEXPIRE', KEYS[1], ARGV[4])
	return {1, max - 1, tonumber(ARGV[3])}
end

if count >= max then
	return {0, 0, reset}
end

count = redis.call('HINCRBY', KEYS[1], 'count', 1)
return {1, max - count, reset}
`)

// RedisStore keeps records in Redis so limits hold across processes.
// Redis expires records on its own, so Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store that namespaces keys under prefix
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fieldguard:ratelimit:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(key string) string {
	return s.prefix + key
}

// Take applies one attempt for key
func (s *RedisStore) Take(ctx context.Context, key string, rule Rule, now time.Time) (Decision, error) {
	nowMs := now.UnixMilli()
	resetAt := now.Add(rule.Window).UnixMilli()
	args := []any{
		strconv.FormatInt(nowMs, 10),
		strconv.Itoa(rule.MaxAttempts),
		strconv.FormatInt(resetAt, 10),
		strconv.FormatInt(resetAt-nowMs+1, 10),
	}

	res, err := takeScript.Run(ctx, s.client, []string{s.key(key)}, args...).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script returned %d values", len(res))
	}

	decision := Decision{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
	}
	if !decision.Allowed {
		decision.ResetAt = time.UnixMilli(res[2])
	}
	return decision, nil
}

// Get returns the record for key
func (s *RedisStore) Get(ctx context.Context, key string) (Record, bool, error) {
	values, err := s.client.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("failed to read rate limit record: %w", err)
	}
	if len(values) == 0 {
		return Record{}, false, nil
	}

	count, err := strconv.Atoi(values["count"])
	if err != nil {
		return Record{}, false, fmt.Errorf("corrupt rate limit count for %s: %w", key, err)
	}
	resetMs, err := strconv.ParseInt(values["reset_at"], 10, 64)
	if err != nil {
		return Record{}, false, fmt.Errorf("corrupt rate limit reset for %s: %w", key, err)
	}
	return Record{Count: count, ResetAt: time.UnixMilli(resetMs)}, true, nil
}

// Reset forgets key
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit record: %w", err)
	}
	return nil
}

// Sweep is a no-op; records carry a Redis expiry
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("rate limit store unreachable: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
