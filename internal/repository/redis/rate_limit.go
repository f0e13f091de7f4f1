package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/213020aumc/matcha/internal/core/port"
)

// slidingWindowScript trims, counts and conditionally records atomically. Scores are unix milliseconds.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// SlidingWindowConfig defines configuration for the sliding window limiter.
type SlidingWindowConfig struct {
	KeyPrefix string
}

// RateLimitRepository persists rate-limit attempts in Redis sorted sets.
type RateLimitRepository struct {
	client   redis.Scripter
	cfg      SlidingWindowConfig
	memberID func() string
}

// NewRateLimitRepository constructs a repository using the provided Redis client and config.
func NewRateLimitRepository(client redis.Scripter, cfg SlidingWindowConfig) *RateLimitRepository {
	return &RateLimitRepository{client: client, cfg: cfg, memberID: uuid.NewString}
}

// Hit records an attempt for identifier unless limit attempts already happened within window.
func (r *RateLimitRepository) Hit(ctx context.Context, identifier string, limit int, window time.Duration, now time.Time) (port.RateLimitWindow, error) {
	if window <= 0 {
		return port.RateLimitWindow{}, errors.New("window must be positive")
	}

	values, err := slidingWindowScript.Run(ctx, r.client,
		[]string{r.key(identifier)},
		now.UnixMilli(),
		window.Milliseconds(),
		limit,
		r.memberID(),
	).Int64Slice()
	if err != nil {
		return port.RateLimitWindow{}, fmt.Errorf("redis sliding window: %w", err)
	}
	if len(values) != 3 {
		return port.RateLimitWindow{}, fmt.Errorf("redis sliding window: unexpected reply length %d", len(values))
	}

	return port.RateLimitWindow{
		Allowed: values[0] == 1,
		Count:   int(values[1]),
		Oldest:  time.UnixMilli(values[2]),
	}, nil
}

func (r *RateLimitRepository) key(identifier string) string {
	if r.cfg.KeyPrefix == "" {
		return identifier
	}
	return fmt.Sprintf("%s:%s", r.cfg.KeyPrefix, identifier)
}

var _ port.RateLimitStore = (*RateLimitRepository)(nil)
