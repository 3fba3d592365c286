package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the millisecond ISO-8601 form used in checksums and responses.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// MintReason classifies why supply was issued.
type MintReason string

const (
	ReasonReportReward    MintReason = "REPORT_REWARD"
	ReasonBadgeReward     MintReason = "BADGE_REWARD"
	ReasonAdminAdjustment MintReason = "ADMIN_ADJUSTMENT"
	ReasonMigration       MintReason = "MIGRATION"
	ReasonOther           MintReason = "OTHER"
)

// ParseMintReason normalizes and validates a reason string.
func ParseMintReason(s string) (MintReason, bool) {
	r := MintReason(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case ReasonReportReward, ReasonBadgeReward, ReasonAdminAdjustment, ReasonMigration, ReasonOther:
		return r, true
	}
	return "", false
}

// Storage conflicts raised when recording a supply mint event.
var (
	ErrDuplicateMintID = errors.New("supply mint event already exists for mint id")
	ErrDuplicateNonce  = errors.New("supply mint event already exists for nonce")
)

// SupplyCounter tracks issuance against a hard cap. TotalIssued never exceeds Cap.
type SupplyCounter struct {
	ID          string    `json:"id"`
	Cap         int64     `json:"cap"`
	TotalIssued int64     `json:"totalIssued"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Remaining returns how much may still be issued.
func (c *SupplyCounter) Remaining() int64 {
	return c.Cap - c.TotalIssued
}

// Fits reports whether amount can be issued without exceeding the cap.
func (c *SupplyCounter) Fits(amount int64) bool {
	return amount > 0 && c.TotalIssued+amount <= c.Cap
}

// SupplyMintEvent is the durable record of one supply-capped mint.
type SupplyMintEvent struct {
	MintID           string     `json:"mintId"`
	RecipientID      string     `json:"recipientId"`
	Amount           int64      `json:"amount"`
	Reason           MintReason `json:"reason"`
	Category         string     `json:"category,omitempty"`
	ExternalRef      string     `json:"externalRef,omitempty"`
	Caller           string     `json:"caller,omitempty"`
	RequestTimestamp time.Time  `json:"requestTimestamp"`
	Nonce            string     `json:"nonce"`
	Checksum         string     `json:"checksum"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ComputeChecksum hashes the event's business fields joined by dots.
func (e *SupplyMintEvent) ComputeChecksum() string {
	payload := strings.Join([]string{
		e.MintID,
		e.CreatedAt.UTC().Format(TimestampLayout),
		e.RecipientID,
		strconv.FormatInt(e.Amount, 10),
		string(e.Reason),
		e.Category,
		e.ExternalRef,
	}, ".")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
