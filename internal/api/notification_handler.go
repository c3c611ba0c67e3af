package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/api/shared"
	"github.com/phrazzld/microblog/internal/domain"
)

// NotificationLister reads one page of a user's feed.
type NotificationLister interface {
	List(ctx context.Context, recipient uuid.UUID, cursor float64, limit int) ([]domain.Notification, error)
}

// NotificationWaiter signals when a user's feed may have grown.
type NotificationWaiter interface {
	Subscribe(userID uuid.UUID) (<-chan struct{}, func())
}

// NotificationHandlerConfig bounds long-polling.
type NotificationHandlerConfig struct {
	// MaxWait caps the wait query parameter.
	MaxWait time.Duration
	// RecheckInterval re-reads the feed while waiting, catching notifications
	// appended by other processes that never reach the local waiter.
	RecheckInterval time.Duration
}

// NotificationHandler serves the notification feed.
type NotificationHandler struct {
	feed   NotificationLister
	waiter NotificationWaiter
	config NotificationHandlerConfig
}

// NewNotificationHandler creates a NotificationHandler. waiter may be nil,
// in which case long-polls rely on RecheckInterval alone.
func NewNotificationHandler(
	feed NotificationLister,
	waiter NotificationWaiter,
	config NotificationHandlerConfig,
) *NotificationHandler {
	if config.RecheckInterval <= 0 {
		config.RecheckInterval = time.Second
	}
	return &NotificationHandler{feed: feed, waiter: waiter, config: config}
}

// ListNotifications handles GET /api/notifications?since=&wait=&limit=.
// It returns notifications newer than since. When there are none and wait
// is positive, it holds the request for up to wait seconds.
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	since, err := getQueryFloat(r, "since")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	limit, err := getQueryInt(r, "limit")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	wait, err := getQueryWait(r, h.config.MaxWait)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	page, err := h.poll(r.Context(), userID, since, limit, wait)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		HandleAPIError(w, r, err)
		return
	}

	resp := NotificationsResponse{Notifications: page, Cursor: since}
	if resp.Notifications == nil {
		resp.Notifications = []domain.Notification{}
	}
	if n := len(page); n > 0 {
		resp.Cursor = page[n-1].Timestamp
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

func (h *NotificationHandler) poll(
	ctx context.Context,
	userID uuid.UUID,
	since float64,
	limit int,
	wait time.Duration,
) ([]domain.Notification, error) {
	if wait <= 0 {
		return h.feed.List(ctx, userID, since, limit)
	}

	// Subscribe before the first read so an append in between still wakes us.
	var signal <-chan struct{}
	if h.waiter != nil {
		var unsubscribe func()
		signal, unsubscribe = h.waiter.Subscribe(userID)
		defer unsubscribe()
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	recheck := time.NewTicker(h.config.RecheckInterval)
	defer recheck.Stop()

	for {
		page, err := h.feed.List(ctx, userID, since, limit)
		if err != nil || len(page) > 0 {
			return page, err
		}

		select {
		case <-signal:
		case <-recheck.C:
		case <-deadline.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
