package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const healthCheckKey = "health:check"

// HealthCheck reports Redis as healthy when it accepts writes. A read-only
// replica would silently disable the nonce and receipt fast paths.
type HealthCheck struct {
	client *goredis.Client
}

// NewHealthCheck creates a Redis health checker.
func NewHealthCheck(client *goredis.Client) *HealthCheck {
	return &HealthCheck{client: client}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.client.Set(ctx, healthCheckKey, time.Now().UnixMilli(), 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write check: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string { return "redis" }
