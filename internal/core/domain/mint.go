package domain

import (
	"time"

	"github.com/google/uuid"
)

// MintStatus is the persisted lifecycle status of a mint request.
type MintStatus string

const (
	MintStatusPending    MintStatus = "PENDING"
	MintStatusProcessing MintStatus = "PROCESSING"
	MintStatusCompleted  MintStatus = "COMPLETED"
	MintStatusFailed     MintStatus = "FAILED"
)

// MintStage is the orchestrator state a request last reached.
type MintStage string

const (
	StageReceived         MintStage = "RECEIVED"
	StageLocked           MintStage = "LOCKED"
	StageGenerating       MintStage = "GENERATING"
	StagePersisted        MintStage = "PERSISTED"
	StageSettled          MintStage = "SETTLED"
	StageComplete         MintStage = "COMPLETE"
	StageLockFailed       MintStage = "LOCK_FAILED"
	StageGenerationFailed MintStage = "GENERATION_FAILED"
	StagePersistFailed    MintStage = "PERSIST_FAILED"
)

// ErrorKindFundsStuck marks a request whose locked credits could not be released.
const ErrorKindFundsStuck = "FUNDS_STUCK"

// IsFailure reports whether the stage is a terminal failure.
func (s MintStage) IsFailure() bool {
	return s == StageLockFailed || s == StageGenerationFailed || s == StagePersistFailed
}

// MintRequest records one attempt to mint under an idempotency key.
// (OwnerID, IdempotencyKey) is unique.
type MintRequest struct {
	ID               uuid.UUID  `json:"id"`
	OwnerID          string     `json:"ownerId"`
	IdempotencyKey   string     `json:"idempotencyKey"`
	DraftAssetID     uuid.UUID  `json:"draftAssetId"`
	Description      string     `json:"description"`
	PriceCredits     int64      `json:"priceCredits"`
	Nonce            string     `json:"nonce"`
	RequestTimestamp time.Time  `json:"requestTimestamp"`
	Status           MintStatus `json:"status"`
	Stage            MintStage  `json:"stage"`
	ErrorKind        *string    `json:"errorKind,omitempty"`
	Attempts         int        `json:"attempts"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// IsTerminal returns true once the request has completed or failed.
func (m *MintRequest) IsTerminal() bool {
	return m.Status == MintStatusCompleted || m.Status == MintStatusFailed
}

// InFlight returns true while another attempt owns the key.
func (m *MintRequest) InFlight() bool {
	return m.Status == MintStatusPending || m.Status == MintStatusProcessing
}
