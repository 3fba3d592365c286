package service

import (
	"context"

	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit events are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Record writes the event before returning so lifecycle order is preserved.
// A failed write is logged and swallowed.
func (s *auditService) Record(ctx context.Context, event *domain.AuditEvent) {
	s.log.Info().
		Str("action", string(event.Action)).
		Str("actor_id", event.ActorID).
		Str("entity_type", event.EntityType).
		Str("entity_id", event.EntityID).
		Str("hash", event.Hash).
		Msg("audit")

	if s.repo == nil {
		return
	}
	if err := s.repo.Create(context.WithoutCancel(ctx), event); err != nil {
		s.log.Warn().Err(err).Str("action", string(event.Action)).Msg("failed to persist audit event")
	}
}
