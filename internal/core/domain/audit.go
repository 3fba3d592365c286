package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction names a recorded lifecycle transition.
type AuditAction string

const (
	AuditMintInitiated AuditAction = "MINT_INITIATED"
	AuditMintSucceeded AuditAction = "MINT_SUCCEEDED"
	AuditMintFailed    AuditAction = "MINT_FAILED"
	AuditDeposit       AuditAction = "DEPOSIT"
	AuditTransfer      AuditAction = "TRANSFER"
	AuditSupplyMint    AuditAction = "SUPPLY_MINT"
)

// AuditEvent is an append-only record of one action.
type AuditEvent struct {
	ID         uuid.UUID         `json:"id"`
	ActorID    string            `json:"actorId"`
	Action     AuditAction       `json:"action"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Hash       string            `json:"hash"`
	Meta       map[string]string `json:"meta,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// NewAuditEvent builds an event and seals it with a content hash.
func NewAuditEvent(actorID string, action AuditAction, entityType, entityID string, meta map[string]string) *AuditEvent {
	e := &AuditEvent{
		ID:         uuid.New(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Meta:       meta,
		CreatedAt:  time.Now().UTC(),
	}
	e.Hash = e.ComputeHash()
	return e
}

// ComputeHash returns sha256 over the event's identifying content.
// encoding/json sorts map keys, so the hash is stable for equal meta.
func (e *AuditEvent) ComputeHash() string {
	metaJSON, _ := json.Marshal(e.Meta)
	h := sha256.New()
	for _, part := range []string{
		e.ID.String(), e.ActorID, string(e.Action), e.EntityType, e.EntityID,
		string(metaJSON), e.CreatedAt.Format(time.RFC3339Nano),
	} {
		h.Write([]byte(part))
		h.Write([]byte{'|'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
