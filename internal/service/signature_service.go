package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"credit-mint-engine/internal/core/domain"
)

// Signed request headers.
const (
	HeaderTimestamp = "X-Mint-Timestamp"
	HeaderNonce     = "X-Mint-Nonce"
	HeaderSignature = "X-Mint-Signature"
	HeaderCaller    = "X-Mint-Caller"
)

// HMACSignatureService implements ports.SignatureService using HMAC-SHA256.
type HMACSignatureService struct{}

// NewHMACSignatureService creates a new HMAC-SHA256 signature service.
func NewHMACSignatureService() *HMACSignatureService {
	return &HMACSignatureService{}
}

// Sign computes HMAC-SHA256 of payload using secret.
// Returns lowercase hex-encoded signature.
func (s *HMACSignatureService) Sign(secret string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against HMAC-SHA256(secret, payload) in constant time.
func (s *HMACSignatureService) Verify(secret string, payload string, signature string) bool {
	expected := s.Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// CanonicalPayload builds the signed string: TIMESTAMP.NONCE.SHA256HEX(BODY).
func (s *HMACSignatureService) CanonicalPayload(timestamp, nonce string, body []byte) string {
	sum := sha256.Sum256(body)
	return timestamp + "." + nonce + "." + hex.EncodeToString(sum[:])
}

// SignRequest produces the headers a caller sends with body. An empty nonce is generated.
func SignRequest(secret, caller, nonce string, body []byte, now time.Time) map[string]string {
	if nonce == "" {
		nonce = domain.NewNonce()
	}
	sig := NewHMACSignatureService()
	ts := strconv.FormatInt(now.UnixMilli(), 10)

	headers := map[string]string{
		HeaderTimestamp: ts,
		HeaderNonce:     nonce,
		HeaderSignature: sig.Sign(secret, sig.CanonicalPayload(ts, nonce, body)),
	}
	if caller != "" {
		headers[HeaderCaller] = caller
	}
	return headers
}
