package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "mint:rl:"

// windowIncr bumps a window counter and sets its expiry on first use, so a
// window key never lives without a TTL.
var windowIncr = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimitStore keeps fixed-window request counters in Redis.
type RateLimitStore struct {
	client *goredis.Client
	now    func() time.Time
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{client: client, now: time.Now}
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // unix seconds
}

// Allow counts one request against key in the current window.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error) {
	span := max(int64(window/time.Second), 1)
	slot := s.now().Unix() / span
	windowKey := rateLimitPrefix + key + ":" + strconv.FormatInt(slot, 10)

	count, err := windowIncr.Run(ctx, s.client, []string{windowKey}, span+1).Int64()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", key, err)
	}

	return &RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   (slot + 1) * span,
	}, nil
}
