package api

import (
	"context"
	"net/http"
	"time"

	"github.com/phrazzld/microblog/internal/api/shared"
)

// Pinger checks a backing dependency. *sqlx.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the database is reachable.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "database unavailable", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}
