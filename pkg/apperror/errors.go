package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the closed set of failure classes surfaced to clients.
type Kind string

const (
	KindValidation          Kind = "VALIDATION_ERROR"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindForbidden           Kind = "FORBIDDEN"
	KindInsufficientBalance Kind = "INSUFFICIENT_BALANCE"
	KindNotFound            Kind = "NOT_FOUND"
	KindAlreadyInProgress   Kind = "ALREADY_IN_PROGRESS"
	KindReplayDetected      Kind = "REPLAY_DETECTED"
	KindSupplyCapExceeded   Kind = "SUPPLY_CAP_EXCEEDED"
	KindConcurrentRetry     Kind = "CONCURRENT_RETRY"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindGenerationFailed    Kind = "GENERATION_FAILED"
	KindServerMisconfigured Kind = "SERVER_MISCONFIGURED"
	KindInternal            Kind = "INTERNAL"
)

// statusByKind is the single mapping from error kind to HTTP status.
var statusByKind = map[Kind]int{
	KindValidation:          http.StatusBadRequest,
	KindUnauthorized:        http.StatusUnauthorized,
	KindForbidden:           http.StatusForbidden,
	KindInsufficientBalance: http.StatusPaymentRequired,
	KindNotFound:            http.StatusNotFound,
	KindAlreadyInProgress:   http.StatusConflict,
	KindReplayDetected:      http.StatusConflict,
	KindSupplyCapExceeded:   http.StatusConflict,
	KindConcurrentRetry:     http.StatusConflict,
	KindRateLimited:         http.StatusTooManyRequests,
	KindGenerationFailed:    http.StatusBadGateway,
	KindServerMisconfigured: http.StatusInternalServerError,
	KindInternal:            http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for a kind. Unknown kinds map to 500.
func StatusFor(kind Kind) int {
	if s, ok := statusByKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Kind       Kind   `json:"errorKind"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(kind Kind, message string) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    message,
		HTTPStatus: StatusFor(kind),
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{
		Kind:       kind,
		Message:    message,
		HTTPStatus: StatusFor(kind),
		Err:        err,
	}
}

// KindOf extracts the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// ---- Request validation & authentication ----

// Validation returns a VALIDATION_ERROR with the given message.
func Validation(message string) *AppError {
	return New(KindValidation, message)
}

func ErrUnauthorized(message string) *AppError {
	return New(KindUnauthorized, message)
}

func ErrInvalidSignature() *AppError {
	return New(KindUnauthorized, "Invalid signature")
}

func ErrTimestampExpired() *AppError {
	return New(KindUnauthorized, "Request timestamp outside allowed window")
}

func ErrInvalidToken() *AppError {
	return New(KindUnauthorized, "Invalid or expired token")
}

func ErrForbidden(message string) *AppError {
	return New(KindForbidden, message)
}

func ErrReplayDetected() *AppError {
	return New(KindReplayDetected, "Nonce has already been used")
}

// ---- Minting ----

func ErrInsufficientBalance() *AppError {
	return New(KindInsufficientBalance, "Insufficient credit balance")
}

func ErrNotFound(entity string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s not found", entity))
}

func ErrAlreadyInProgress() *AppError {
	return New(KindAlreadyInProgress, "A mint with this idempotency key is already in progress")
}

func ErrGenerationFailed(err error) *AppError {
	return Wrap(KindGenerationFailed, "Artifact generation failed", err)
}

// ---- Supply ----

func ErrSupplyCapExceeded() *AppError {
	return New(KindSupplyCapExceeded, "Mint would exceed the supply cap")
}

func ErrConcurrentRetry() *AppError {
	return New(KindConcurrentRetry, "Supply changed concurrently, retry the request")
}

// ---- Rate limiting ----

func ErrRateLimitExceeded() *AppError {
	return New(KindRateLimited, "Rate limit exceeded")
}

// ---- System ----

func ErrServerMisconfigured(message string, err error) *AppError {
	return Wrap(KindServerMisconfigured, message, err)
}

// ErrConfigMissing reports a required setting that is absent at call time.
func ErrConfigMissing(setting string) *AppError {
	return New(KindServerMisconfigured, fmt.Sprintf("CONFIG_MISSING: %s is not configured", setting))
}

// InternalError wraps an internal error as an INTERNAL error.
func InternalError(err error) *AppError {
	return Wrap(KindInternal, "Internal server error", err)
}
