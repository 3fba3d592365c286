package ports

import (
	"context"
	"time"

	"credit-mint-engine/internal/core/domain"

	"github.com/google/uuid"
)

// --- Infrastructure Ports ---

// HealthChecker is a dependency checked by GET /health under Name.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}

// ArtifactPrompt is the input to artifact generation.
type ArtifactPrompt struct {
	Description  string
	StyleHint    string
	CategoryHint string
}

// Artifact is generated binary content.
type Artifact struct {
	Data        []byte
	ContentType string
}

// ArtifactGenerator produces an image from a text description. Implementations
// must honour ctx cancellation; callers bound every call with a deadline.
type ArtifactGenerator interface {
	Generate(ctx context.Context, prompt ArtifactPrompt) (*Artifact, error)
}

// ReceiptCache is the Redis-layer idempotency check (fast path).
type ReceiptCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached receipt JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore is the fast-path nonce check for signed requests.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
	// Release drops a claim whose request was never accepted.
	Release(ctx context.Context, scope string, nonce string) error
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secret string, payload string) string
	Verify(secret string, payload string, signature string) bool
	CanonicalPayload(timestamp, nonce string, body []byte) string
}

// TokenService handles owner JWT operations.
type TokenService interface {
	Generate(ownerID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OwnerID string
}

// AuditService records lifecycle events. Recording failures are logged, never returned.
type AuditService interface {
	Record(ctx context.Context, event *domain.AuditEvent)
}

// --- Service Ports (Business Logic) ---

// MintService runs the credit mint flow.
type MintService interface {
	Mint(ctx context.Context, req MintRequest) (*MintResult, error)
	// Preview generates an artifact without charging or storing anything.
	Preview(ctx context.Context, req PreviewRequest) (*Artifact, error)
}

// PreviewRequest is the input to an uncharged preview generation.
type PreviewRequest struct {
	OwnerID      string
	Description  string
	StyleHint    string
	CategoryHint string
}

// MintRequest holds validated input for a credit mint.
type MintRequest struct {
	OwnerID        string
	Description    string
	StyleHint      string
	CategoryHint   string
	PriceCredits   *int64 // nil = configured default price
	IdempotencyKey string // empty = generated, never replayed
	Attributes     []domain.Attribute
}

// MintResult is the outcome returned to the caller, original or replayed.
type MintResult struct {
	MintRequestID   uuid.UUID
	TokenID         string
	ArtifactRef     string
	TransactionHash string
	PriceCredits    int64
	MintedAt        time.Time
	Replayed        bool
}

// AssetService serves stored artifacts.
type AssetService interface {
	Serve(ctx context.Context, tokenID string) (*domain.Asset, error)
}

// WalletService exposes wallet reads, signed deposits and signed transfers.
type WalletService interface {
	GetWallet(ctx context.Context, ownerID string) (*domain.Wallet, error)
	ListLedger(ctx context.Context, ownerID string, limit int) ([]domain.LedgerEntry, error)
	Deposit(ctx context.Context, req DepositRequest) (*DepositResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// DepositRequest holds validated input for a deposit.
type DepositRequest struct {
	OwnerID        string
	Amount         int64
	IdempotencyKey string
	Caller         string
	Note           string
}

// DepositResult carries the deposit ledger entry and the wallet after it.
type DepositResult struct {
	Entry    *domain.LedgerEntry
	Wallet   *domain.Wallet
	Replayed bool
}

// TransferRequest moves spendable credits between two owners.
type TransferRequest struct {
	FromOwnerID    string
	ToOwnerID      string
	Amount         int64
	IdempotencyKey string
	Caller         string
	Note           string
}

// TransferResult carries both ledger entries. The wallets are the state after
// the transfer, or the current state on a replay.
type TransferResult struct {
	Out        *domain.LedgerEntry
	In         *domain.LedgerEntry
	FromWallet *domain.Wallet
	ToWallet   *domain.Wallet
	Replayed   bool
}

// ReceiptService lists an owner's receipts.
type ReceiptService interface {
	List(ctx context.Context, params ReceiptListParams) ([]domain.Receipt, int64, error)
}

// SupplyService runs the supply-capped mint.
type SupplyService interface {
	Mint(ctx context.Context, req SupplyMintRequest) (*SupplyMintResult, error)
}

// SupplyMintRequest holds validated input plus the signed-request context.
type SupplyMintRequest struct {
	MintID           string
	RecipientID      string
	Amount           int64
	Reason           domain.MintReason
	Category         string
	ExternalRef      string
	Caller           string
	Nonce            string
	RequestTimestamp time.Time
}

// SupplyMintResult is the recorded event and the counter after it.
type SupplyMintResult struct {
	Event            *domain.SupplyMintEvent
	SupplyCap        int64
	TotalIssuedAfter int64
	Replayed         bool
}
