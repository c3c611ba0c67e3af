package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/microblog/internal/api/shared"
	"github.com/phrazzld/microblog/internal/platform/logger"
)

// Trace returns middleware that gives every request a trace ID and a
// request-scoped logger derived from base, and logs each completed request.
// Apply it before any handler that logs.
func Trace(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := logger.WithLogger(r.Context(), base)
			ctx = shared.SetTraceID(ctx)
			log := logger.FromContext(ctx)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Header().Set("X-Trace-ID", shared.GetTraceID(ctx))
			next.ServeHTTP(ww, r.WithContext(ctx))

			log.Info("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}
