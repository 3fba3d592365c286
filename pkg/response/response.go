package response

import (
	"errors"
	"net/http"
	"time"

	"credit-mint-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CtxRequestID is the gin context key holding the per-request ID.
const CtxRequestID = "request_id"

// SuccessResponse is the standard success envelope.
type SuccessResponse struct {
	OK        bool        `json:"ok"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"requestId"`
	Timestamp string      `json:"timestamp"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	OK        bool   `json:"ok"`
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) {
	success(c, http.StatusOK, data)
}

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) {
	success(c, http.StatusCreated, data)
}

// Error writes err as a failure envelope. *apperror.AppError values keep their
// kind, status and message; any other error becomes INTERNAL without its text.
func Error(c *gin.Context, err error) {
	status, kind, msg := http.StatusInternalServerError, string(apperror.KindInternal), "Internal server error"

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status, kind, msg = appErr.HTTPStatus, string(appErr.Kind), appErr.Message
	}

	c.JSON(status, ErrorResponse{
		ErrorKind: kind,
		Message:   msg,
		RequestID: RequestID(c),
		Timestamp: stamp(),
	})
}

// RequestID returns the ID set by the request ID middleware, or a fresh one
// when the handler runs without it.
func RequestID(c *gin.Context) string {
	if id := c.GetString(CtxRequestID); id != "" {
		return id
	}
	return uuid.New().String()
}

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, SuccessResponse{
		OK:        true,
		Data:      data,
		RequestID: RequestID(c),
		Timestamp: stamp(),
	})
}

func stamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
