package shared

import (
	"context"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/platform/logger"
)

// ContextKey is the key type for request-scoped values.
type ContextKey string

// UserIDContextKey is the context key for the authenticated user ID.
const UserIDContextKey ContextKey = "userID"

// SetTraceID adds a fresh trace ID to the context and to its logger.
func SetTraceID(ctx context.Context) context.Context {
	return logger.WithTraceID(ctx, generateTraceID())
}

// GetTraceID retrieves the trace ID from the context, or "" if none was set.
func GetTraceID(ctx context.Context) string {
	return logger.TraceIDFromContext(ctx)
}

// WithUserID returns a copy of ctx carrying the authenticated user ID.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDContextKey, userID)
}

// UserIDFromContext returns the user ID stored by WithUserID.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDContextKey).(uuid.UUID)
	if !ok || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}

// generateTraceID returns 32 hex characters.
func generateTraceID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
