package middleware

import (
	"net/http"
	"time"

	"credit-mint-engine/pkg/apperror"
	"credit-mint-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// MaxBodySize limits the request body size. A declared Content-Length over
// the limit is rejected up front with 413; otherwise the reader fails once
// the limit is crossed and binding reports a validation error.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, response.ErrorResponse{
				ErrorKind: string(apperror.KindValidation),
				Message:   "Request body too large",
				RequestID: response.RequestID(c),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
