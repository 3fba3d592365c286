package dto

// MintRequest is the request body for a credit mint.
type MintRequest struct {
	OwnerID        string         `json:"ownerId" binding:"required,max=128,safe_id"`
	Description    string         `json:"description" binding:"required,max=2000"`
	StyleHint      string         `json:"styleHint,omitempty" binding:"omitempty,max=200"`
	CategoryHint   string         `json:"categoryHint,omitempty" binding:"omitempty,max=64"`
	PriceCredits   *int64         `json:"priceCredits,omitempty" binding:"omitempty,gte=0"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty" binding:"omitempty,max=128,safe_id"`
	Attributes     []AttributeDTO `json:"attributes,omitempty" binding:"omitempty,max=20,dive"`
}

// PreviewRequest is the request body for an uncharged preview.
type PreviewRequest struct {
	OwnerID      string `json:"ownerId" binding:"required,max=128,safe_id"`
	Description  string `json:"description" binding:"required,max=2000"`
	StyleHint    string `json:"styleHint,omitempty" binding:"omitempty,max=200"`
	CategoryHint string `json:"categoryHint,omitempty" binding:"omitempty,max=64"`
}

// PreviewResponse carries the generated image as a data URL.
type PreviewResponse struct {
	ImageURL    string `json:"imageUrl"`
	ContentType string `json:"contentType"`
}

// AttributeDTO is one trait_type/value pair.
type AttributeDTO struct {
	TraitType string `json:"trait_type" binding:"required,max=64"`
	Value     string `json:"value" binding:"required,max=256"`
}

// MintResponse is the flat success body of a credit mint.
type MintResponse struct {
	OK              bool   `json:"ok"`
	TokenID         string `json:"tokenId"`
	ArtifactRef     string `json:"artifactRef"`
	TransactionHash string `json:"transactionHash"`
	PriceCredits    int64  `json:"priceCredits"`
	MintedAt        string `json:"mintedAt"`
}

// DepositRequest is the request body for a signed deposit.
type DepositRequest struct {
	OwnerID        string `json:"ownerId" binding:"required,max=128,safe_id"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey" binding:"required,max=128,safe_id"`
	Note           string `json:"note,omitempty" binding:"omitempty,max=280"`
}

// DepositResponse is the response body for a deposit, fresh or replayed.
type DepositResponse struct {
	Entry    LedgerEntryResponse `json:"entry"`
	Wallet   WalletResponse      `json:"wallet"`
	Replayed bool                `json:"replayed"`
}

// TransferRequest is the request body for a signed transfer.
type TransferRequest struct {
	FromOwnerID    string `json:"fromOwnerId" binding:"required,max=128,safe_id"`
	ToOwnerID      string `json:"toOwnerId" binding:"required,max=128,safe_id,nefield=FromOwnerID"`
	Amount         int64  `json:"amount" binding:"required,gt=0"`
	IdempotencyKey string `json:"idempotencyKey" binding:"required,max=128,safe_id"`
	Note           string `json:"note,omitempty" binding:"omitempty,max=280"`
}

// TransferResponse is the response body for a transfer, fresh or replayed.
type TransferResponse struct {
	Out        LedgerEntryResponse `json:"out"`
	In         LedgerEntryResponse `json:"in"`
	FromWallet WalletResponse      `json:"fromWallet"`
	ToWallet   WalletResponse      `json:"toWallet"`
	Replayed   bool                `json:"replayed"`
}

// WalletResponse is the response for a wallet view.
type WalletResponse struct {
	OwnerID       string `json:"ownerId"`
	Balance       int64  `json:"balance"`
	LockedBalance int64  `json:"lockedBalance"`
	UpdatedAt     string `json:"updatedAt"`
}

// LedgerEntryResponse is one ledger entry.
type LedgerEntryResponse struct {
	ID             string            `json:"id"`
	Kind           string            `json:"kind"`
	Amount         int64             `json:"amount"`
	Direction      string            `json:"direction"`
	ReferenceID    string            `json:"referenceId"`
	IdempotencyKey string            `json:"idempotencyKey"`
	Meta           map[string]string `json:"meta,omitempty"`
	CreatedAt      string            `json:"createdAt"`
}

// LedgerListResponse wraps an owner's most recent entries.
type LedgerListResponse struct {
	OwnerID string                `json:"ownerId"`
	Entries []LedgerEntryResponse `json:"entries"`
}

// ReceiptResponse is one mint receipt.
type ReceiptResponse struct {
	ID              string  `json:"id"`
	MintRequestID   string  `json:"mintRequestId"`
	TokenID         string  `json:"tokenId"`
	ArtifactRef     string  `json:"artifactRef"`
	TransactionHash string  `json:"transactionHash"`
	PriceCredits    int64   `json:"priceCredits"`
	LedgerEntryID   *string `json:"ledgerEntryId"`
	MetadataURI     string  `json:"metadataUri"`
	Chain           string  `json:"chain"`
	CreatedAt       string  `json:"createdAt"`
}

// ReceiptListResponse wraps a page of receipts.
type ReceiptListResponse struct {
	Receipts   []ReceiptResponse `json:"receipts"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

// SupplyMintRequest is the request body for a supply-capped mint.
type SupplyMintRequest struct {
	MintID      string `json:"mintId" binding:"required,mint_id"`
	RecipientID string `json:"recipientId" binding:"required,recipient_id"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Reason      string `json:"reason" binding:"required,mint_reason"`
	Category    string `json:"category,omitempty" binding:"omitempty,max=64"`
	ExternalRef string `json:"externalRef,omitempty" binding:"omitempty,max=128"`
}

// SupplyMintResponse is the flat success body of a supply-capped mint.
type SupplyMintResponse struct {
	OK               bool   `json:"ok"`
	MintID           string `json:"mintId"`
	Timestamp        string `json:"timestamp"`
	RecipientID      string `json:"recipientId"`
	Amount           int64  `json:"amount"`
	Reason           string `json:"reason"`
	Category         string `json:"category,omitempty"`
	ExternalRef      string `json:"externalRef,omitempty"`
	Checksum         string `json:"checksum"`
	SupplyCap        int64  `json:"supplyCap"`
	TotalIssuedAfter int64  `json:"totalIssuedAfter"`
	Replayed         bool   `json:"replayed"`
}
