package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"credit-mint-engine/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository. Events are append-only.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a new AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Create(ctx context.Context, e *domain.AuditEvent) error {
	meta, err := marshalMeta(e.Meta)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_events (id, actor_id, action, entity_type, entity_id, hash, meta, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ActorID, string(e.Action), e.EntityType, e.EntityID, e.Hash, meta, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByEntity returns an entity's events in the order they were recorded.
func (r *AuditRepo) ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, actor_id, action, entity_type, entity_id, hash, meta, created_at
		 FROM audit_events WHERE entity_type = $1 AND entity_id = $2 ORDER BY created_at, id`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.AuditEvent, 0)
	for rows.Next() {
		var (
			e    domain.AuditEvent
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.EntityType, &e.EntityID, &e.Hash, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, fmt.Errorf("decode audit meta: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return events, nil
}
