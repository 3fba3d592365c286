package postgres

import (
	"context"
	"errors"
	"fmt"

	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const receiptColumns = `id, mint_request_id, owner_id, token_id, transaction_hash, price_credits,
	ledger_entry_id, metadata_uri, chain, created_at`

// ReceiptRepo implements ports.ReceiptRepository.
type ReceiptRepo struct {
	pool Pool
}

// NewReceiptRepo creates a new ReceiptRepo.
func NewReceiptRepo(pool Pool) *ReceiptRepo {
	return &ReceiptRepo{pool: pool}
}

// Create inserts a receipt. mint_request_id is unique, so a request keeps the
// first receipt written for it; later calls report false.
func (r *ReceiptRepo) Create(ctx context.Context, rc *domain.Receipt) (bool, error) {
	query := `INSERT INTO mint_receipts (` + receiptColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (mint_request_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		rc.ID, rc.MintRequestID, rc.OwnerID, rc.TokenID, rc.TransactionHash, rc.PriceCredits,
		rc.LedgerEntryID, rc.MetadataURI, rc.Chain, rc.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert receipt: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetByMintRequestID fetches the receipt of a mint request. Returns nil, nil if absent.
func (r *ReceiptRepo) GetByMintRequestID(ctx context.Context, mintRequestID uuid.UUID) (*domain.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM mint_receipts WHERE mint_request_id = $1`

	rc, err := scanReceipt(r.pool.QueryRow(ctx, query, mintRequestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return rc, nil
}

// ListByOwner returns a page of the owner's receipts, newest first, and the total count.
func (r *ReceiptRepo) ListByOwner(ctx context.Context, params ports.ReceiptListParams) ([]domain.Receipt, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM mint_receipts WHERE owner_id = $1`, params.OwnerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count receipts: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	query := `SELECT ` + receiptColumns + ` FROM mint_receipts
		WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, params.OwnerID, params.PageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]domain.Receipt, 0)
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan receipt row: %w", err)
		}
		receipts = append(receipts, *rc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate receipt rows: %w", err)
	}
	return receipts, total, nil
}

func scanReceipt(row pgx.Row) (*domain.Receipt, error) {
	rc := &domain.Receipt{}
	err := row.Scan(
		&rc.ID, &rc.MintRequestID, &rc.OwnerID, &rc.TokenID, &rc.TransactionHash, &rc.PriceCredits,
		&rc.LedgerEntryID, &rc.MetadataURI, &rc.Chain, &rc.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rc, nil
}
