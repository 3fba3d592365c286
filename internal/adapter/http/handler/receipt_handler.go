package handler

import (
	"math"
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

// ReceiptHandler lists mint receipts.
type ReceiptHandler struct {
	receiptSvc ports.ReceiptService
}

// NewReceiptHandler creates a new ReceiptHandler.
func NewReceiptHandler(receiptSvc ports.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptSvc: receiptSvc}
}

// List handles GET /api/v1/receipts.
func (h *ReceiptHandler) List(c *gin.Context) {
	ownerID := c.Query("ownerId")
	if ownerID == "" {
		response.Error(c, apperror.Validation("ownerId is required"))
		return
	}
	if err := middleware.RequireOwner(c, ownerID); err != nil {
		response.Error(c, err)
		return
	}

	params := ports.ReceiptListParams{OwnerID: ownerID}
	params.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	params.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	params.Normalize()

	receipts, total, err := h.receiptSvc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.ReceiptResponse, 0, len(receipts))
	for i := range receipts {
		items = append(items, toReceiptResponse(&receipts[i]))
	}

	response.OK(c, dto.ReceiptListResponse{
		Receipts:   items,
		Total:      total,
		Page:       params.Page,
		PageSize:   params.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(params.PageSize))),
	})
}

func toReceiptResponse(r *domain.Receipt) dto.ReceiptResponse {
	resp := dto.ReceiptResponse{
		ID:              r.ID.String(),
		MintRequestID:   r.MintRequestID.String(),
		TokenID:         r.TokenID,
		ArtifactRef:     r.ArtifactRef(),
		TransactionHash: r.TransactionHash,
		PriceCredits:    r.PriceCredits,
		MetadataURI:     r.MetadataURI,
		Chain:           r.Chain,
		CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if r.LedgerEntryID != nil {
		id := r.LedgerEntryID.String()
		resp.LedgerEntryID = &id
	}
	return resp
}
