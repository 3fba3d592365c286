package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	noncePrefix = "mint:nonce:"
	minNonceTTL = time.Second
)

// NonceStore is the Redis fast path for signed-request nonces. Postgres holds
// the durable record; an entry here only needs to outlive the signing skew.
type NonceStore struct {
	client *goredis.Client
}

// NewNonceStore creates a new Redis-backed nonce store.
func NewNonceStore(client *goredis.Client) *NonceStore {
	return &NonceStore{client: client}
}

// CheckAndSet claims nonce within scope. It reports false when the nonce was
// already claimed and has not yet expired.
func (s *NonceStore) CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error) {
	if ttl < minNonceTTL {
		ttl = minNonceTTL
	}
	claimed, err := s.client.SetNX(ctx, nonceKey(scope, nonce), time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim nonce %s/%s: %w", scope, nonce, err)
	}
	return claimed, nil
}

// Release removes a claim so the same signed request can be retried.
func (s *NonceStore) Release(ctx context.Context, scope string, nonce string) error {
	if err := s.client.Del(ctx, nonceKey(scope, nonce)).Err(); err != nil {
		return fmt.Errorf("release nonce %s/%s: %w", scope, nonce, err)
	}
	return nil
}

func nonceKey(scope, nonce string) string {
	return noncePrefix + scope + ":" + nonce
}
