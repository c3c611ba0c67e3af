// Package client is an HTTP client for the task and notification API. It
// launches tasks and follows the notification feed until they complete.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/api"
	"github.com/phrazzld/microblog/internal/api/shared"
	"github.com/phrazzld/microblog/internal/domain"
)

// ErrTaskNotFound is returned when the server does not know the task.
var ErrTaskNotFound = errors.New("task not found")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	TraceID    string
}

func (e *APIError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("api error %d: %s (trace %s)", e.StatusCode, e.Message, e.TraceID)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	// RequestTimeout bounds each request on top of any long-poll wait.
	RequestTimeout time.Duration
	RetryCount     int
}

// Client talks to the task API.
type Client struct {
	http    *resty.Client
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Client. Requests are retried on 429 and 5xx responses.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return false
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})

	return &Client{
		http:    httpClient,
		timeout: cfg.RequestTimeout,
		logger:  logger.With("component", "feed_client"),
	}
}

// LaunchTask starts a task of kind and returns its ID.
func (c *Client) LaunchTask(ctx context.Context, kind, description string, args any) (uuid.UUID, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := api.LaunchTaskRequest{Kind: kind, Description: description}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to encode task args: %w", err)
		}
		body.Args = raw
	}

	var out api.LaunchTaskResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&shared.ErrorResponse{}).
		Post("/api/tasks")
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to launch task: %w", err)
	}
	if err := responseError(resp); err != nil {
		return uuid.Nil, fmt.Errorf("failed to launch task: %w", err)
	}
	return out.ID, nil
}

// GetTask returns the current state of a task.
func (c *Client) GetTask(ctx context.Context, id uuid.UUID) (*api.TaskResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var out api.TaskResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id.String()).
		SetResult(&out).
		SetError(&shared.ErrorResponse{}).
		Get("/api/tasks/{id}")
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, ErrTaskNotFound
	}
	if err := responseError(resp); err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &out, nil
}

// Notifications returns notifications newer than since, waiting up to wait
// for one to arrive.
func (c *Client) Notifications(ctx context.Context, since float64, wait time.Duration) (*api.NotificationsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout+wait)
	defer cancel()

	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("since", strconv.FormatFloat(since, 'f', -1, 64)).
		SetResult(&api.NotificationsResponse{}).
		SetError(&shared.ErrorResponse{})
	if wait > 0 {
		req.SetQueryParam("wait", strconv.FormatFloat(wait.Seconds(), 'f', -1, 64))
	}

	resp, err := req.Get("/api/notifications")
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	if err := responseError(resp); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return resp.Result().(*api.NotificationsResponse), nil
}

// WatchTask follows the feed from since until the task_complete notification
// for taskID arrives, calling onNotification for every notification seen.
// A non-positive wait defaults to 30 seconds.
func (c *Client) WatchTask(
	ctx context.Context,
	taskID uuid.UUID,
	since float64,
	wait time.Duration,
	onNotification func(domain.Notification),
) (*domain.TaskCompletePayload, error) {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	cursor := since
	for {
		page, err := c.Notifications(ctx, cursor, wait)
		if err != nil {
			return nil, err
		}

		for _, n := range page.Notifications {
			if onNotification != nil {
				onNotification(n)
			}
			if n.Name != domain.NotificationTaskComplete {
				continue
			}
			var done domain.TaskCompletePayload
			if err := n.DecodePayload(&done); err != nil {
				c.logger.Warn("skipping undecodable completion", "notification_id", n.ID, "error", err)
				continue
			}
			if done.TaskID == taskID {
				return &done, nil
			}
		}
		cursor = page.Cursor

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func responseError(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode(), Message: resp.Status()}
	if body, ok := resp.Error().(*shared.ErrorResponse); ok && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.TraceID = body.TraceID
	}
	return apiErr
}
