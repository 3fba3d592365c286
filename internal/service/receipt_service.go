package service

import (
	"context"
	"strings"

	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"
)

type receiptService struct {
	receipts ports.ReceiptRepository
}

// NewReceiptService creates a new receipt service.
func NewReceiptService(receipts ports.ReceiptRepository) ports.ReceiptService {
	return &receiptService{receipts: receipts}
}

// List returns an owner's receipts, most recent first, with the total count.
func (s *receiptService) List(ctx context.Context, params ports.ReceiptListParams) ([]domain.Receipt, int64, error) {
	params.OwnerID = strings.TrimSpace(params.OwnerID)
	if params.OwnerID == "" {
		return nil, 0, apperror.Validation("ownerId is required")
	}
	params.Normalize()

	receipts, total, err := s.receipts.ListByOwner(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return receipts, total, nil
}
