package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/config"
)

// DefaultJWTConfig returns a standard configuration for JWT authentication suitable for testing.
func DefaultJWTConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            "test-jwt-secret-that-is-32-chars-long",
		TokenLifetimeMinutes: 60,
	}
}

// NewTestJWTService creates a JWT service with DefaultJWTConfig.
func NewTestJWTService(t *testing.T) JWTService {
	t.Helper()

	svc, err := NewJWTService(DefaultJWTConfig())
	if err != nil {
		t.Fatalf("failed to create test JWT service: %v", err)
	}
	return svc
}

// GenerateAuthHeader returns an "Authorization" header value for userID.
func GenerateAuthHeader(t *testing.T, svc JWTService, userID uuid.UUID) string {
	t.Helper()

	token, err := svc.GenerateToken(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return "Bearer " + token
}
