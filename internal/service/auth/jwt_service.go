// Package auth issues and validates the bearer tokens that identify callers
// of the HTTP API. Tokens are HS256-signed JWTs carrying the user ID in a
// "uid" claim; issuing them to end users belongs to the login flow, which
// lives outside this service.
package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TokenTypeAccess is the only token type this service issues.
const TokenTypeAccess = "access"

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed JWT access token for the user.
	GenerateToken(ctx context.Context, userID uuid.UUID) (string, error)

	// ValidateToken validates the provided access token string and extracts the claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid, ErrWrongTokenType or
	// ErrInvalidToken when validation fails.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims represents the custom claims structure for the JWT tokens.
type Claims struct {
	// UserID is the unique identifier of the user the token was issued for.
	UserID uuid.UUID `json:"uid,omitempty"`

	// TokenType indicates the purpose of the token.
	TokenType string `json:"type,omitempty"`

	Subject   string    `json:"sub,omitempty"`
	IssuedAt  time.Time `json:"iat,omitempty"`
	ExpiresAt time.Time `json:"exp,omitempty"`
	ID        string    `json:"jti,omitempty"`
}
