package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

const immutableCacheControl = "public, max-age=31536000, immutable"

// AssetHandler serves generated artifacts.
type AssetHandler struct {
	assetSvc ports.AssetService
}

// NewAssetHandler creates a new AssetHandler.
func NewAssetHandler(assetSvc ports.AssetService) *AssetHandler {
	return &AssetHandler{assetSvc: assetSvc}
}

// Serve handles GET /api/assets/:tokenId. A trailing .png is optional.
func (h *AssetHandler) Serve(c *gin.Context) {
	tokenID := strings.TrimSuffix(c.Param("tokenId"), ".png")

	asset, err := h.assetSvc.Serve(c.Request.Context(), tokenID)
	if err != nil {
		response.Error(c, err)
		return
	}

	if asset.Immutable() {
		sum := sha256.Sum256(asset.Content)
		etag := `"` + hex.EncodeToString(sum[:]) + `"`
		c.Header("Cache-Control", immutableCacheControl)
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.AbortWithStatus(http.StatusNotModified)
			return
		}
	} else {
		c.Header("Cache-Control", "no-store")
	}

	c.Data(http.StatusOK, asset.ContentType, asset.Content)
}
