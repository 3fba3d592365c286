package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssetStatus tracks whether an asset is visible as minted.
type AssetStatus string

const (
	AssetStatusDraft  AssetStatus = "DRAFT"
	AssetStatusMinted AssetStatus = "MINTED"
	AssetStatusBurned AssetStatus = "BURNED"
)

// Attribute is a trait_type/value pair carried in asset metadata.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// Asset is a persisted generated artifact. Content never changes after creation.
type Asset struct {
	ID            uuid.UUID   `json:"id"`
	TokenID       string      `json:"tokenId"`
	OwnerID       string      `json:"ownerId"`
	MintRequestID uuid.UUID   `json:"mintRequestId"`
	CollectionID  string      `json:"collectionId"`
	Chain         string      `json:"chain"`
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Content       []byte      `json:"-"`
	ContentType   string      `json:"contentType"`
	Attributes    []Attribute `json:"attributes,omitempty"`
	Status        AssetStatus `json:"status"`
	MetadataURI   string      `json:"metadataUri"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// Servable reports whether the asset may be returned by token id.
func (a *Asset) Servable() bool {
	return a.Status != AssetStatusBurned
}

// Immutable reports whether clients may cache the asset forever.
func (a *Asset) Immutable() bool {
	return a.Status == AssetStatusMinted
}
