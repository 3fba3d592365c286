package handler

import (
	"strconv"
	"time"

	"credit-mint-engine/internal/adapter/http/dto"
	"credit-mint-engine/internal/adapter/http/middleware"
	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"
	"credit-mint-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet views, signed deposits and signed transfers.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// GetWallet handles GET /api/v1/wallets/:ownerId.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	ownerID := c.Param("ownerId")
	if err := middleware.RequireOwner(c, ownerID); err != nil {
		response.Error(c, err)
		return
	}

	w, err := h.walletSvc.GetWallet(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toWalletResponse(w))
}

// ListLedger handles GET /api/v1/wallets/:ownerId/ledger.
func (h *WalletHandler) ListLedger(c *gin.Context) {
	ownerID := c.Param("ownerId")
	if err := middleware.RequireOwner(c, ownerID); err != nil {
		response.Error(c, err)
		return
	}

	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			response.Error(c, apperror.Validation("limit must be an integer"))
			return
		}
		limit = n
	}

	entries, err := h.walletSvc.ListLedger(c.Request.Context(), ownerID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.LedgerEntryResponse, 0, len(entries))
	for i := range entries {
		items = append(items, toLedgerEntryResponse(&entries[i]))
	}
	response.OK(c, dto.LedgerListResponse{OwnerID: ownerID, Entries: items})
}

// Deposit handles POST /api/v1/wallets/deposit. Requires a signed request.
func (h *WalletHandler) Deposit(c *gin.Context) {
	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.walletSvc.Deposit(c.Request.Context(), ports.DepositRequest{
		OwnerID:        req.OwnerID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Caller:         c.GetString(middleware.CtxCaller),
		Note:           req.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	body := dto.DepositResponse{
		Entry:    toLedgerEntryResponse(result.Entry),
		Wallet:   toWalletResponse(result.Wallet),
		Replayed: result.Replayed,
	}
	if result.Replayed {
		c.Header(HeaderReplayed, "true")
		response.OK(c, body)
		return
	}
	response.Created(c, body)
}

// Transfer handles POST /api/v1/wallets/transfer. Requires a signed request.
func (h *WalletHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.walletSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		FromOwnerID:    req.FromOwnerID,
		ToOwnerID:      req.ToOwnerID,
		Amount:         req.Amount,
		IdempotencyKey: req.IdempotencyKey,
		Caller:         c.GetString(middleware.CtxCaller),
		Note:           req.Note,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	body := dto.TransferResponse{
		Out:        toLedgerEntryResponse(result.Out),
		In:         toLedgerEntryResponse(result.In),
		FromWallet: toWalletResponse(result.FromWallet),
		ToWallet:   toWalletResponse(result.ToWallet),
		Replayed:   result.Replayed,
	}
	if result.Replayed {
		c.Header(HeaderReplayed, "true")
		response.OK(c, body)
		return
	}
	response.Created(c, body)
}

func toWalletResponse(w *domain.Wallet) dto.WalletResponse {
	return dto.WalletResponse{
		OwnerID:       w.OwnerID,
		Balance:       w.Balance,
		LockedBalance: w.LockedBalance,
		UpdatedAt:     w.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toLedgerEntryResponse(e *domain.LedgerEntry) dto.LedgerEntryResponse {
	return dto.LedgerEntryResponse{
		ID:             e.ID.String(),
		Kind:           string(e.Kind),
		Amount:         e.Amount,
		Direction:      string(e.Direction),
		ReferenceID:    e.ReferenceID,
		IdempotencyKey: e.IdempotencyKey,
		Meta:           e.Meta,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

