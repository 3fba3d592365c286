package ports

import (
	"context"

	"credit-mint-engine/internal/core/domain"

	"github.com/google/uuid"
)

// WalletRepository performs every balance mutation as a single conditional
// update. Methods returning (nil, nil) signal that the precondition failed.
type WalletRepository interface {
	// Ensure creates the wallet with initialBalance if absent and returns it.
	Ensure(ctx context.Context, ownerID string, initialBalance int64) (*domain.Wallet, error)
	Get(ctx context.Context, ownerID string) (*domain.Wallet, error)
	// Lock moves amount from balance to locked when balance >= amount.
	Lock(ctx context.Context, ownerID string, amount int64) (*domain.Wallet, error)
	// Settle removes amount from locked when locked >= amount.
	Settle(ctx context.Context, ownerID string, amount int64) (*domain.Wallet, error)
	// Release moves amount from locked back to balance when locked >= amount.
	Release(ctx context.Context, ownerID string, amount int64) (*domain.Wallet, error)
	// Deposit appends a DEPOSIT entry and credits the balance in one statement.
	// Returns (nil, nil) when the entry's idempotency key was already used.
	Deposit(ctx context.Context, entry *domain.LedgerEntry) (*domain.Wallet, error)
	// Transfer appends out and in, debits out.OwnerID and credits in.OwnerID
	// in one transaction. Returns (nil, nil, nil) when the sender's balance is
	// short and domain.ErrDuplicateLedgerKey when either key was already used.
	Transfer(ctx context.Context, out, in *domain.LedgerEntry) (from, to *domain.Wallet, err error)
}

// LedgerRepository appends and reads the ledger. Entries are never updated.
type LedgerRepository interface {
	// Append inserts entry; it returns false if the idempotency key already exists.
	Append(ctx context.Context, entry *domain.LedgerEntry) (bool, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.LedgerEntry, error)
}

// MintRequestRepository persists mint requests keyed by (owner, idempotency key).
type MintRequestRepository interface {
	// Claim inserts req as PROCESSING, or re-arms an existing FAILED request.
	// Returns the claimed row, or nil if another request holds the key.
	Claim(ctx context.Context, req *domain.MintRequest) (*domain.MintRequest, error)
	GetByKey(ctx context.Context, ownerID, idempotencyKey string) (*domain.MintRequest, error)
	UpdateStage(ctx context.Context, id uuid.UUID, stage domain.MintStage) error
	MarkFailed(ctx context.Context, id uuid.UUID, stage domain.MintStage, errorKind string) error
	MarkCompleted(ctx context.Context, id uuid.UUID) error
}

// AssetRepository stores generated artifacts.
type AssetRepository interface {
	Create(ctx context.Context, asset *domain.Asset) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Asset, error)
	GetByTokenID(ctx context.Context, tokenID string) (*domain.Asset, error)
	// UpdateStatus is a no-op success when the asset already has status.
	UpdateStatus(ctx context.Context, tokenID string, status domain.AssetStatus) error
}

// ReceiptRepository stores mint receipts.
type ReceiptRepository interface {
	// Create inserts receipt unless its mint request already has one. It
	// reports whether this call inserted it.
	Create(ctx context.Context, receipt *domain.Receipt) (bool, error)
	GetByMintRequestID(ctx context.Context, mintRequestID uuid.UUID) (*domain.Receipt, error)
	ListByOwner(ctx context.Context, params ReceiptListParams) ([]domain.Receipt, int64, error)
}

// ReceiptListParams holds filter + pagination for listing receipts.
type ReceiptListParams struct {
	OwnerID  string
	Page     int
	PageSize int
}

const (
	DefaultReceiptPageSize = 20
	MaxReceiptPageSize     = 100
)

// Normalize defaults a missing page or page size and clamps the size to
// MaxReceiptPageSize.
func (p *ReceiptListParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultReceiptPageSize
	}
	if p.PageSize > MaxReceiptPageSize {
		p.PageSize = MaxReceiptPageSize
	}
}

// AuditRepository appends audit events.
type AuditRepository interface {
	Create(ctx context.Context, event *domain.AuditEvent) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]domain.AuditEvent, error)
}

// SupplyRepository manages the supply counter and its mint events.
type SupplyRepository interface {
	// CreateCounter inserts the counter if it does not exist yet.
	CreateCounter(ctx context.Context, id string, cap int64) error
	GetCounter(ctx context.Context, id string) (*domain.SupplyCounter, error)
	RaiseCap(ctx context.Context, id string, cap int64) error
	// Increment adds amount only if total_issued still equals expectedTotal and
	// the result stays within the cap. Returns the new counter or nil.
	Increment(ctx context.Context, id string, expectedTotal, amount int64) (*domain.SupplyCounter, error)
	// Decrement compensates an increment whose event could not be recorded.
	Decrement(ctx context.Context, id string, amount int64) error
	GetEvent(ctx context.Context, mintID string) (*domain.SupplyMintEvent, error)
	// CreateEvent returns domain.ErrDuplicateMintID or domain.ErrDuplicateNonce on conflict.
	CreateEvent(ctx context.Context, event *domain.SupplyMintEvent) error
}

// NonceRepository durably records signed-request nonces. A nonce is accepted once, forever.
type NonceRepository interface {
	Claim(ctx context.Context, nonce, caller string) (bool, error)
}
