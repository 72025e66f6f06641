// Package redisstore backs the rate limiter with Redis so windows are shared
// between service instances.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/fishy/internal/domain/ratelimit"
)

// fixedWindowScript reads and optionally consumes one fixed window atomically.
// KEYS[1] = window key
// ARGV[1] = limit
// ARGV[2] = window length in milliseconds
// ARGV[3] = "1" to consume, "0" to peek
// Returns {count, pttl_ms, consumed}.
var fixedWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
local ttl = redis.call("PTTL", KEYS[1])

-- -2 missing, -1 no expiry: treat both as a closed window
if ttl < 0 then
    count = 0
    ttl = window
end

if ARGV[3] ~= "1" then
    return {count, ttl, 0}
end
if count >= limit then
    return {count, ttl, 0}
end

if count == 0 then
    redis.call("SET", KEYS[1], 1, "PX", window)
    ttl = window
else
    redis.call("INCR", KEYS[1])
end
return {count + 1, ttl, 1}
`)

// Store implements ratelimit.Store on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

var _ ratelimit.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces keys. Default "fishy:cooldown:".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New wraps an existing client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: "fishy:cooldown:"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial creates a client for addr and verifies it answers PING.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return New(rdb, opts...), nil
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Peek implements ratelimit.Store.
func (s *Store) Peek(ctx context.Context, key string, window time.Duration) (ratelimit.Usage, error) {
	u, _, err := s.run(ctx, key, 0, window, false)
	return u, err
}

// Consume implements ratelimit.Store.
func (s *Store) Consume(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Usage, bool, error) {
	return s.run(ctx, key, limit, window, true)
}

// Reset implements ratelimit.Store.
func (s *Store) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *Store) run(ctx context.Context, key string, limit int, window time.Duration, consume bool) (ratelimit.Usage, bool, error) {
	mode := "0"
	if consume {
		mode = "1"
	}
	res, err := fixedWindowScript.Run(ctx, s.client, []string{s.prefix + key}, limit, window.Milliseconds(), mode).Result()
	if err != nil {
		return ratelimit.Usage{}, false, fmt.Errorf("redis limiter error: %w", err)
	}
	return parseResult(res)
}

func parseResult(res interface{}) (ratelimit.Usage, bool, error) {
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		return ratelimit.Usage{}, false, fmt.Errorf("invalid response from lua script: %v", res)
	}
	nums := make([]int64, 3)
	for i, v := range vals {
		n, ok := v.(int64)
		if !ok {
			return ratelimit.Usage{}, false, fmt.Errorf("invalid response from lua script: element %d is %T", i, v)
		}
		nums[i] = n
	}
	return ratelimit.Usage{
		Count:   int(nums[0]),
		ResetIn: time.Duration(nums[1]) * time.Millisecond,
	}, nums[2] == 1, nil
}
