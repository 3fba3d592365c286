package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"credit-mint-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const assetColumns = `id, token_id, owner_id, mint_request_id, collection_id, chain, title, description,
	content, content_type, attributes, status, metadata_uri, created_at`

// AssetRepo implements ports.AssetRepository.
type AssetRepo struct {
	pool Pool
}

// NewAssetRepo creates a new AssetRepo.
func NewAssetRepo(pool Pool) *AssetRepo {
	return &AssetRepo{pool: pool}
}

// Create inserts a new asset.
func (r *AssetRepo) Create(ctx context.Context, a *domain.Asset) error {
	attrs, err := json.Marshal(a.Attributes)
	if err != nil {
		return fmt.Errorf("marshal asset attributes: %w", err)
	}
	if a.Attributes == nil {
		attrs = []byte("[]")
	}

	query := `INSERT INTO assets (` + assetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = r.pool.Exec(ctx, query,
		a.ID, a.TokenID, a.OwnerID, a.MintRequestID, a.CollectionID, a.Chain, a.Title, a.Description,
		a.Content, a.ContentType, attrs, string(a.Status), a.MetadataURI, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// GetByID fetches an asset by its id. Returns nil, nil if absent.
func (r *AssetRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return a, nil
}

// GetByTokenID fetches an asset with its content. Returns nil, nil if absent.
func (r *AssetRepo) GetByTokenID(ctx context.Context, tokenID string) (*domain.Asset, error) {
	a, err := scanAsset(r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE token_id = $1`, tokenID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return a, nil
}

func scanAsset(row pgx.Row) (*domain.Asset, error) {
	var (
		a     domain.Asset
		attrs []byte
	)
	err := row.Scan(
		&a.ID, &a.TokenID, &a.OwnerID, &a.MintRequestID, &a.CollectionID, &a.Chain, &a.Title, &a.Description,
		&a.Content, &a.ContentType, &attrs, &a.Status, &a.MetadataURI, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &a.Attributes); err != nil {
			return nil, fmt.Errorf("decode asset attributes: %w", err)
		}
	}
	return &a, nil
}

// UpdateStatus moves an asset to a new status. MINTED assets can only be
// burned; setting the current status again succeeds.
func (r *AssetRepo) UpdateStatus(ctx context.Context, tokenID string, status domain.AssetStatus) error {
	query := `UPDATE assets SET status = $1
		WHERE token_id = $2 AND (status = 'DRAFT' OR status = $1 OR $1 = 'BURNED')`

	tag, err := r.pool.Exec(ctx, query, string(status), tokenID)
	if err != nil {
		return fmt.Errorf("update asset status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("asset not found or not updatable: %s", tokenID)
	}
	return nil
}
