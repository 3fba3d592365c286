package handler

import (
	"net/http"
	"time"

	"credit-mint-engine/internal/adapter/http/dto"
	"credit-mint-engine/internal/adapter/http/middleware"
	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/apperror"
	"credit-mint-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// SupplyHandler handles the supply-capped mint.
type SupplyHandler struct {
	supplySvc ports.SupplyService
}

// NewSupplyHandler creates a new SupplyHandler.
func NewSupplyHandler(supplySvc ports.SupplyService) *SupplyHandler {
	return &SupplyHandler{supplySvc: supplySvc}
}

// Mint handles POST /api/v1/supply/mint. Requires a signed request.
func (h *SupplyHandler) Mint(c *gin.Context) {
	var req dto.SupplyMintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	reason, ok := domain.ParseMintReason(req.Reason)
	if !ok {
		response.Error(c, apperror.Validation("reason is not supported"))
		return
	}

	var requestTime time.Time
	if v, exists := c.Get(middleware.CtxRequestTimestamp); exists {
		requestTime, _ = v.(time.Time)
	}

	result, err := h.supplySvc.Mint(c.Request.Context(), ports.SupplyMintRequest{
		MintID:           req.MintID,
		RecipientID:      req.RecipientID,
		Amount:           req.Amount,
		Reason:           reason,
		Category:         req.Category,
		ExternalRef:      req.ExternalRef,
		Caller:           c.GetString(middleware.CtxCaller),
		Nonce:            c.GetString(middleware.CtxNonce),
		RequestTimestamp: requestTime,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	e := result.Event
	if result.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	c.JSON(http.StatusOK, dto.SupplyMintResponse{
		OK:               true,
		MintID:           e.MintID,
		Timestamp:        e.CreatedAt.UTC().Format(domain.TimestampLayout),
		RecipientID:      e.RecipientID,
		Amount:           e.Amount,
		Reason:           string(e.Reason),
		Category:         e.Category,
		ExternalRef:      e.ExternalRef,
		Checksum:         e.Checksum,
		SupplyCap:        result.SupplyCap,
		TotalIssuedAfter: result.TotalIssuedAfter,
		Replayed:         result.Replayed,
	})
}
