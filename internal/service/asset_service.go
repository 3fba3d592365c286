package service

import (
	"context"
	"strings"

	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"
)

type assetService struct {
	assets ports.AssetRepository
}

// NewAssetService creates a new asset service.
func NewAssetService(assets ports.AssetRepository) ports.AssetService {
	return &assetService{assets: assets}
}

// Serve returns a stored asset. Burned drafts are reported as missing.
func (s *assetService) Serve(ctx context.Context, tokenID string) (*domain.Asset, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, apperror.ErrNotFound("Asset")
	}

	asset, err := s.assets.GetByTokenID(ctx, tokenID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if asset == nil || !asset.Servable() {
		return nil, apperror.ErrNotFound("Asset")
	}
	return asset, nil
}
