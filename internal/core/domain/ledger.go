package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerKind classifies a balance-changing event.
type LedgerKind string

const (
	LedgerKindLock    LedgerKind = "LOCK"
	LedgerKindSpend   LedgerKind = "SPEND"
	LedgerKindUnlock  LedgerKind = "UNLOCK"
	LedgerKindDeposit LedgerKind = "DEPOSIT"

	LedgerKindTransferOut LedgerKind = "TRANSFER_OUT"
	LedgerKindTransferIn  LedgerKind = "TRANSFER_IN"
)

// ErrDuplicateLedgerKey is returned when an entry's idempotency key was already used.
var ErrDuplicateLedgerKey = errors.New("ledger idempotency key already used")

// LedgerDirection is the side of the wallet an entry moves.
type LedgerDirection string

const (
	LedgerCredit LedgerDirection = "CREDIT"
	LedgerDebit  LedgerDirection = "DEBIT"
)

// LedgerEntry is an immutable record of one balance-changing event.
type LedgerEntry struct {
	ID             uuid.UUID         `json:"id"`
	OwnerID        string            `json:"ownerId"`
	Kind           LedgerKind        `json:"kind"`
	Amount         int64             `json:"amount"`
	Direction      LedgerDirection   `json:"direction"`
	ReferenceID    string            `json:"referenceId"`
	IdempotencyKey string            `json:"idempotencyKey"`
	Meta           map[string]string `json:"meta,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// DirectionFor returns the fixed direction of a ledger kind.
func DirectionFor(kind LedgerKind) LedgerDirection {
	switch kind {
	case LedgerKindUnlock, LedgerKindDeposit, LedgerKindTransferIn:
		return LedgerCredit
	default:
		return LedgerDebit
	}
}

// NewLedgerEntry builds an entry with its direction derived from kind.
func NewLedgerEntry(ownerID string, kind LedgerKind, amount int64, referenceID, idempotencyKey string, meta map[string]string) *LedgerEntry {
	return &LedgerEntry{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		Kind:           kind,
		Amount:         amount,
		Direction:      DirectionFor(kind),
		ReferenceID:    referenceID,
		IdempotencyKey: idempotencyKey,
		Meta:           meta,
		CreatedAt:      time.Now().UTC(),
	}
}

// Ledger idempotency keys. Lock and unlock keys carry the attempt number
// because a failed mint request may be retried under the same id.

func LockLedgerKey(mintRequestID uuid.UUID, attempt int) string {
	return fmt.Sprintf("lock-%s-%d", mintRequestID, attempt)
}

func UnlockLedgerKey(mintRequestID uuid.UUID, attempt int) string {
	return fmt.Sprintf("unlock-%s-%d", mintRequestID, attempt)
}

func SpendLedgerKey(mintRequestID uuid.UUID) string {
	return "spend-" + mintRequestID.String()
}

func DepositLedgerKey(key string) string {
	return "deposit-" + key
}

func TransferOutLedgerKey(key string) string {
	return "transfer-out-" + key
}

func TransferInLedgerKey(key string) string {
	return "transfer-in-" + key
}
