package domain

import "regexp"

var (
	mintIDPattern      = regexp.MustCompile(`^[A-Za-z0-9._:-]{20,96}$`)
	recipientIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]{6,128}$`)
	noncePattern       = regexp.MustCompile(`^[A-Za-z0-9._:-]{16,128}$`)
	timestampPattern   = regexp.MustCompile(`^(\d{10}|\d{13})$`)
)

// Input limits shared by the HTTP layer and services.
const (
	MaxCategoryLen    = 64
	MaxExternalRefLen = 128
	MaxDescriptionLen = 2000
	MaxOwnerIDLen     = 128
	MaxIdempotencyLen = 128
)

func ValidMintID(s string) bool      { return mintIDPattern.MatchString(s) }
func ValidRecipientID(s string) bool { return recipientIDPattern.MatchString(s) }
func ValidNonce(s string) bool       { return noncePattern.MatchString(s) }

// ValidTimestamp accepts unix seconds (10 digits) or milliseconds (13 digits).
func ValidTimestamp(s string) bool { return timestampPattern.MatchString(s) }
