package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"
)

// AssetPathPrefix is where assets are served over HTTP.
const AssetPathPrefix = "/api/assets/"

// AssetPath returns the public artifact reference for a token id.
func AssetPath(tokenID string) string {
	return AssetPathPrefix + tokenID + ".png"
}

// MetadataURI returns the metadata reference for a token id.
func MetadataURI(tokenID string) string {
	return "mint://metadata/" + tokenID
}

// NewTokenID returns "MINT-<unix ms>-<16 hex>", unique without coordination.
func NewTokenID(now time.Time) string {
	return fmt.Sprintf("MINT-%d-%s", now.UnixMilli(), randomHex(8))
}

// NewIdempotencyKey generates a key for requests that did not supply one.
// Such requests are never replayed.
func NewIdempotencyKey(ownerID string, now time.Time) string {
	return fmt.Sprintf("mint-%s-%d-%s", ownerID, now.UnixMilli(), randomHex(6))
}

// NewNonce returns a random request nonce.
func NewNonce() string {
	return randomHex(16)
}

// SyntheticTxHash derives a 0x-prefixed keccak-256 hash from the mint inputs.
// No chain is involved; the hash only gives receipts a stable, unique handle.
func SyntheticTxHash(ownerID, tokenID string, price int64, at time.Time) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(ownerID))
	h.Write([]byte{0})
	h.Write([]byte(tokenID))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(price, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms.
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	return hex.EncodeToString(b)
}
