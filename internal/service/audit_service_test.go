package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Record_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	event := domain.NewAuditEvent("u1", domain.AuditMintInitiated, "mint_request", "r1", nil)
	mockRepo.EXPECT().Create(gomock.Any(), event).Return(nil)

	svc.Record(context.Background(), event)
}

func TestAuditService_Record_SurvivesCancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ *domain.AuditEvent) error {
			assert.NoError(t, ctx.Err())
			return nil
		},
	)

	svc.Record(ctx, domain.NewAuditEvent("u1", domain.AuditMintFailed, "mint_request", "r1", nil))
}

func TestAuditService_Record_RepoErrorIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockRepo := mocks.NewMockAuditRepository(ctrl)
	var buf bytes.Buffer
	svc := NewAuditService(mockRepo, zerolog.New(&buf))

	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	svc.Record(context.Background(), domain.NewAuditEvent("u1", domain.AuditDeposit, "wallet", "u1", nil))

	assert.Contains(t, buf.String(), "failed to persist audit event")
}

func TestAuditService_Record_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), domain.NewAuditEvent("svc", domain.AuditSupplyMint, "supply_mint", "m1", nil))
	})
}
