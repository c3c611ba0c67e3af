package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/microblog/internal/api/middleware"
)

// RouterDeps holds the handlers and middleware mounted by NewRouter.
type RouterDeps struct {
	Auth          *middleware.AuthMiddleware
	Tasks         *TaskHandler
	Notifications *NotificationHandler
	Health        *HealthHandler
	Logger        *slog.Logger
}

// NewRouter builds the HTTP routes:
//
//	POST /api/tasks
//	GET  /api/tasks/{id}
//	GET  /api/notifications
//	GET  /health
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Trace(deps.Logger))
	r.Use(chimw.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.Authenticate)

			r.Post("/tasks", deps.Tasks.LaunchTask)
			r.Get("/tasks/{id}", deps.Tasks.GetTask)
			r.Get("/notifications", deps.Notifications.ListNotifications)
		})
	})

	r.Get("/health", deps.Health.Health)

	return r
}
