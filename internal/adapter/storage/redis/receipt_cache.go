package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ReceiptCache implements ports.ReceiptCache. It holds serialized mint
// results keyed by owner and idempotency key so replays skip Postgres.
type ReceiptCache struct {
	client *goredis.Client
	prefix string
}

// NewReceiptCache creates a new Redis-backed receipt cache.
func NewReceiptCache(client *goredis.Client) *ReceiptCache {
	return &ReceiptCache{
		client: client,
		prefix: "mint-receipt:",
	}
}

// Get returns the cached receipt JSON, or nil, nil on a miss.
func (c *ReceiptCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis receipt get: %w", err)
	}
	return val, nil
}

// Set caches a receipt for ttl.
func (c *ReceiptCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis receipt set: %w", err)
	}
	return nil
}
