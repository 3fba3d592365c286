package postgres

import (
	"context"
	"errors"
	"fmt"
)

// HealthCheck reports PostgreSQL as healthy once it answers and the schema
// has been migrated. An unmigrated database would fail every mint.
type HealthCheck struct {
	pool Pool
}

// NewHealthCheck creates a PostgreSQL health checker.
func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

var errSchemaNotMigrated = errors.New("schema not migrated")

func (h *HealthCheck) Ping(ctx context.Context) error {
	var applied int
	if err := h.pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if applied == 0 {
		return errSchemaNotMigrated
	}
	return nil
}

func (h *HealthCheck) Name() string { return "postgresql" }
