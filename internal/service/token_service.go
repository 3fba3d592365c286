package service

import (
	"errors"
	"fmt"
	"time"

	"credit-mint-engine/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
)

const (
	ownerAudience = "mint-owner"
	tokenLeeway   = 30 * time.Second
)

var errMissingSubject = errors.New("token has no subject")

// JWTTokenService issues and checks HS256 owner tokens. The subject is the
// owner id the bearer may act for.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
	parser *jwt.Parser
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithAudience(ownerAudience),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(tokenLeeway),
		),
	}
}

// Generate signs a token for ownerID and returns it with its expiry.
func (s *JWTTokenService) Generate(ownerID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   ownerID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{ownerAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign owner token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks signature, issuer, audience and expiry.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	var claims jwt.RegisteredClaims
	if _, err := s.parser.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("parse owner token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errMissingSubject
	}
	return &ports.TokenClaims{OwnerID: claims.Subject}, nil
}
