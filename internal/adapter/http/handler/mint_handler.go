package handler

import (
	"encoding/base64"
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

// HeaderReplayed marks a response served from a stored receipt.
const HeaderReplayed = "Idempotent-Replayed"

// MintHandler handles credit mint requests.
type MintHandler struct {
	mintSvc ports.MintService
}

// NewMintHandler creates a new MintHandler.
func NewMintHandler(mintSvc ports.MintService) *MintHandler {
	return &MintHandler{mintSvc: mintSvc}
}

// Mint handles POST /api/v1/mint.
func (h *MintHandler) Mint(c *gin.Context) {
	var req dto.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if err := middleware.RequireOwner(c, req.OwnerID); err != nil {
		response.Error(c, err)
		return
	}

	var attrs []domain.Attribute
	for _, a := range req.Attributes {
		attrs = append(attrs, domain.Attribute{TraitType: a.TraitType, Value: a.Value})
	}

	result, err := h.mintSvc.Mint(c.Request.Context(), ports.MintRequest{
		OwnerID:        req.OwnerID,
		Description:    req.Description,
		StyleHint:      req.StyleHint,
		CategoryHint:   req.CategoryHint,
		PriceCredits:   req.PriceCredits,
		IdempotencyKey: req.IdempotencyKey,
		Attributes:     attrs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Replayed {
		c.Header(HeaderReplayed, "true")
	}
	c.JSON(http.StatusOK, dto.MintResponse{
		OK:              true,
		TokenID:         result.TokenID,
		ArtifactRef:     result.ArtifactRef,
		TransactionHash: result.TransactionHash,
		PriceCredits:    result.PriceCredits,
		MintedAt:        result.MintedAt.UTC().Format(time.RFC3339Nano),
	})
}

// Preview handles POST /api/v1/mint/preview. Nothing is charged or stored.
func (h *MintHandler) Preview(c *gin.Context) {
	var req dto.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	if err := middleware.RequireOwner(c, req.OwnerID); err != nil {
		response.Error(c, err)
		return
	}

	artifact, err := h.mintSvc.Preview(c.Request.Context(), ports.PreviewRequest{
		OwnerID:      req.OwnerID,
		Description:  req.Description,
		StyleHint:    req.StyleHint,
		CategoryHint: req.CategoryHint,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	response.OK(c, dto.PreviewResponse{
		ImageURL:    "data:" + artifact.ContentType + ";base64," + base64.StdEncoding.EncodeToString(artifact.Data),
		ContentType: artifact.ContentType,
	})
}
