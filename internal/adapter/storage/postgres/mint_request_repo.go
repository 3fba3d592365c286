package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"credit-mint-engine/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const mintRequestColumns = `id, owner_id, idempotency_key, draft_asset_id, description, price_credits,
	nonce, request_timestamp, status, stage, error_kind, attempts, created_at, updated_at`

// MintRequestRepo implements ports.MintRequestRepository.
type MintRequestRepo struct {
	pool Pool
}

// NewMintRequestRepo creates a new MintRequestRepo.
func NewMintRequestRepo(pool Pool) *MintRequestRepo {
	return &MintRequestRepo{pool: pool}
}

// Claim inserts the request as PROCESSING. When the (owner, key) pair exists
// and the previous attempt FAILED, the row is re-armed for a new attempt.
// Any other existing row wins and nil is returned.
func (r *MintRequestRepo) Claim(ctx context.Context, m *domain.MintRequest) (*domain.MintRequest, error) {
	query := `INSERT INTO mint_requests (` + mintRequestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PROCESSING', 'RECEIVED', NULL, 1, $9, $9)
		ON CONFLICT (owner_id, idempotency_key) DO UPDATE
		SET status = 'PROCESSING', stage = 'RECEIVED', error_kind = NULL,
			attempts = mint_requests.attempts + 1,
			price_credits = EXCLUDED.price_credits,
			draft_asset_id = EXCLUDED.draft_asset_id,
			description = EXCLUDED.description,
			nonce = EXCLUDED.nonce,
			request_timestamp = EXCLUDED.request_timestamp,
			updated_at = EXCLUDED.updated_at
		WHERE mint_requests.status = 'FAILED'
		RETURNING ` + mintRequestColumns

	claimed, err := scanMintRequest(r.pool.QueryRow(ctx, query,
		m.ID, m.OwnerID, m.IdempotencyKey, m.DraftAssetID, m.Description,
		m.PriceCredits, m.Nonce, m.RequestTimestamp, m.CreatedAt,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim mint request: %w", err)
	}
	return claimed, nil
}

// GetByKey fetches a request by owner and idempotency key. Returns nil, nil if absent.
func (r *MintRequestRepo) GetByKey(ctx context.Context, ownerID, idempotencyKey string) (*domain.MintRequest, error) {
	query := `SELECT ` + mintRequestColumns + ` FROM mint_requests WHERE owner_id = $1 AND idempotency_key = $2`

	m, err := scanMintRequest(r.pool.QueryRow(ctx, query, ownerID, idempotencyKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get mint request: %w", err)
	}
	return m, nil
}

// UpdateStage records progress of a PROCESSING request.
func (r *MintRequestRepo) UpdateStage(ctx context.Context, id uuid.UUID, stage domain.MintStage) error {
	query := `UPDATE mint_requests SET stage = $1, updated_at = $2 WHERE id = $3`

	tag, err := r.pool.Exec(ctx, query, string(stage), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update mint stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mint request not found: %s", id)
	}
	return nil
}

// MarkFailed moves a request to FAILED at the given stage.
func (r *MintRequestRepo) MarkFailed(ctx context.Context, id uuid.UUID, stage domain.MintStage, errorKind string) error {
	query := `UPDATE mint_requests SET status = 'FAILED', stage = $1, error_kind = $2, updated_at = $3 WHERE id = $4`

	tag, err := r.pool.Exec(ctx, query, string(stage), errorKind, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark mint failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mint request not found: %s", id)
	}
	return nil
}

// MarkCompleted moves a request to COMPLETED.
func (r *MintRequestRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE mint_requests SET status = 'COMPLETED', stage = 'COMPLETE', error_kind = NULL, updated_at = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark mint completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mint request not found: %s", id)
	}
	return nil
}

func scanMintRequest(row pgx.Row) (*domain.MintRequest, error) {
	m := &domain.MintRequest{}
	err := row.Scan(
		&m.ID, &m.OwnerID, &m.IdempotencyKey, &m.DraftAssetID, &m.Description, &m.PriceCredits,
		&m.Nonce, &m.RequestTimestamp, &m.Status, &m.Stage, &m.ErrorKind, &m.Attempts,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}
