package domain

import (
	"time"

	"github.com/google/uuid"
)

// Receipt is proof of a completed mint. One per completed mint request.
type Receipt struct {
	ID              uuid.UUID  `json:"id"`
	MintRequestID   uuid.UUID  `json:"mintRequestId"`
	OwnerID         string     `json:"ownerId"`
	TokenID         string     `json:"tokenId"`
	TransactionHash string     `json:"transactionHash"`
	PriceCredits    int64      `json:"priceCredits"`
	LedgerEntryID   *uuid.UUID `json:"ledgerEntryId,omitempty"`
	MetadataURI     string     `json:"metadataUri"`
	Chain           string     `json:"chain"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ArtifactRef is the public path serving the receipt's asset.
func (r *Receipt) ArtifactRef() string {
	return AssetPath(r.TokenID)
}
