package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New(KindInsufficientBalance, "Insufficient credit balance"),
			expected: "[INSUFFICIENT_BALANCE] Insufficient credit balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap(KindInternal, "DB error", fmt.Errorf("connection refused")),
			expected: "[INTERNAL] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap(KindInternal, "wrapped", inner)

	assert.True(t, errors.Is(appErr, inner))
	assert.Nil(t, New(KindNotFound, "x").Unwrap())
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		kind       Kind
		httpStatus int
	}{
		{"Validation", Validation("bad"), KindValidation, 400},
		{"InvalidSignature", ErrInvalidSignature(), KindUnauthorized, 401},
		{"TimestampExpired", ErrTimestampExpired(), KindUnauthorized, 401},
		{"Forbidden", ErrForbidden("owner mismatch"), KindForbidden, 403},
		{"InsufficientBalance", ErrInsufficientBalance(), KindInsufficientBalance, 402},
		{"NotFound", ErrNotFound("Asset"), KindNotFound, 404},
		{"AlreadyInProgress", ErrAlreadyInProgress(), KindAlreadyInProgress, 409},
		{"ReplayDetected", ErrReplayDetected(), KindReplayDetected, 409},
		{"SupplyCapExceeded", ErrSupplyCapExceeded(), KindSupplyCapExceeded, 409},
		{"ConcurrentRetry", ErrConcurrentRetry(), KindConcurrentRetry, 409},
		{"RateLimited", ErrRateLimitExceeded(), KindRateLimited, 429},
		{"GenerationFailed", ErrGenerationFailed(nil), KindGenerationFailed, 502},
		{"ServerMisconfigured", ErrServerMisconfigured("stuck", nil), KindServerMisconfigured, 500},
		{"ConfigMissing", ErrConfigMissing("generator.api_key"), KindServerMisconfigured, 500},
		{"Internal", InternalError(nil), KindInternal, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.err.Kind)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestStatusFor_UnknownKind(t *testing.T) {
	assert.Equal(t, 500, StatusFor(Kind("SOMETHING_ELSE")))
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", ErrInsufficientBalance())
	assert.Equal(t, KindInsufficientBalance, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.True(t, Is(wrapped, KindInsufficientBalance))
	assert.False(t, Is(wrapped, KindNotFound))
}

func TestConfigMissing_NamesSetting(t *testing.T) {
	err := ErrConfigMissing("signing.secret")
	assert.Contains(t, err.Message, "signing.secret")
	assert.Contains(t, err.Message, "CONFIG_MISSING")
}
