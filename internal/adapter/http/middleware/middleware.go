package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"credit-mint-engine/config"
	"credit-mint-engine/internal/core/domain"
	"credit-mint-engine/internal/core/ports"
	"credit-mint-engine/internal/service"
	"credit-mint-engine/pkg/apperror"
	"credit-mint-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Context keys
	CtxOwnerID          = "owner_id"
	CtxCaller           = "caller"
	CtxNonce            = "nonce"
	CtxRequestTimestamp = "request_timestamp"

	nonceScope = "signed"
)

var signatureRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// timeNow is replaced in tests.
var timeNow = time.Now

// RequestID assigns every request an ID, honouring a client-supplied one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(response.CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// SignedRequestAuth verifies service-to-service requests signed with the
// shared secret. Pipeline: headers -> caller -> timestamp -> signature -> nonce.
// The nonce is claimed only after the signature checks out, so forged
// requests cannot burn nonces.
func SignedRequestAuth(
	cfg config.SigningConfig,
	sigSvc ports.SignatureService,
	nonceStore ports.NonceStore,
	nonceRepo ports.NonceRepository,
	log zerolog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.Secret == "" {
			log.Error().Msg("signing.secret is not configured, rejecting signed request")
			abort(c, apperror.ErrConfigMissing("signing.secret"))
			return
		}

		timestamp := c.GetHeader(service.HeaderTimestamp)
		nonce := c.GetHeader(service.HeaderNonce)
		signature := c.GetHeader(service.HeaderSignature)
		caller := strings.TrimSpace(c.GetHeader(service.HeaderCaller))

		if timestamp == "" || nonce == "" || signature == "" {
			abort(c, apperror.ErrUnauthorized("Missing signature headers"))
			return
		}
		if !domain.ValidTimestamp(timestamp) || !domain.ValidNonce(nonce) || !signatureRe.MatchString(signature) {
			abort(c, apperror.ErrUnauthorized("Malformed signature headers"))
			return
		}

		if len(cfg.AllowedCallers) > 0 && !slices.Contains(cfg.AllowedCallers, caller) {
			abort(c, apperror.ErrUnauthorized("Caller is not allowed"))
			return
		}

		// Step 1: Timestamp check
		sent, err := parseTimestamp(timestamp)
		if err != nil {
			abort(c, apperror.ErrTimestampExpired())
			return
		}
		if skew := timeNow().Sub(sent); skew > cfg.MaxSkew || skew < -cfg.MaxSkew {
			abort(c, apperror.ErrTimestampExpired())
			return
		}

		// Step 2: Signature over the raw body
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abort(c, apperror.Validation("cannot read request body"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		if !sigSvc.Verify(cfg.Secret, sigSvc.CanonicalPayload(timestamp, nonce, body), signature) {
			abort(c, apperror.ErrInvalidSignature())
			return
		}

		// Step 3: Nonce, Redis first, then the durable record
		ctx := c.Request.Context()
		fastClaimed := false
		if nonceStore != nil {
			isNew, err := nonceStore.CheckAndSet(ctx, nonceScope, nonce, 2*cfg.MaxSkew)
			if err != nil {
				log.Warn().Err(err).Msg("nonce store error, falling back to database")
			} else if !isNew {
				abort(c, apperror.ErrReplayDetected())
				return
			}
			fastClaimed = err == nil
		}
		claimed, err := nonceRepo.Claim(ctx, nonce, caller)
		if err != nil {
			log.Error().Err(err).Msg("failed to record request nonce")
			if fastClaimed {
				if relErr := nonceStore.Release(context.WithoutCancel(ctx), nonceScope, nonce); relErr != nil {
					log.Warn().Err(relErr).Msg("failed to release request nonce")
				}
			}
			abort(c, apperror.InternalError(err))
			return
		}
		if !claimed {
			abort(c, apperror.ErrReplayDetected())
			return
		}

		c.Set(CtxCaller, caller)
		c.Set(CtxNonce, nonce)
		c.Set(CtxRequestTimestamp, sent.UTC())
		c.Next()
	}
}

// parseTimestamp accepts unix seconds (10 digits) or milliseconds (13 digits).
func parseTimestamp(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if len(s) == 13 {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}

// OwnerAuth validates owner bearer tokens. A nil token service disables it.
func OwnerAuth(tokenSvc ports.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenSvc == nil {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			abort(c, apperror.ErrInvalidToken())
			return
		}

		claims, err := tokenSvc.Validate(authHeader[7:])
		if err != nil {
			abort(c, apperror.ErrInvalidToken())
			return
		}

		c.Set(CtxOwnerID, claims.OwnerID)
		c.Next()
	}
}

// RequireOwner rejects the request when an authenticated owner differs from
// ownerID. Without owner auth every ownerID is accepted.
func RequireOwner(c *gin.Context, ownerID string) error {
	v, ok := c.Get(CtxOwnerID)
	if !ok {
		return nil
	}
	if authed, _ := v.(string); authed != ownerID {
		return apperror.ErrForbidden("Token does not belong to this owner")
	}
	return nil
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(response.CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				abort(c, apperror.InternalError(nil))
			}
		}()
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
