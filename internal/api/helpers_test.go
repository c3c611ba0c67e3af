package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/api/middleware"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/events"
	"github.com/phrazzld/microblog/internal/service/auth"
	"github.com/phrazzld/microblog/internal/store"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type mockTaskService struct {
	LaunchFunc func(ctx context.Context, ownerID uuid.UUID, kind, description string, args any) (uuid.UUID, error)
	GetFunc    func(ctx context.Context, ownerID, id uuid.UUID) (*domain.TaskRecord, error)
}

func (m *mockTaskService) Launch(
	ctx context.Context,
	ownerID uuid.UUID,
	kind, description string,
	args any,
) (uuid.UUID, error) {
	return m.LaunchFunc(ctx, ownerID, kind, description, args)
}

func (m *mockTaskService) Get(ctx context.Context, ownerID, id uuid.UUID) (*domain.TaskRecord, error) {
	if m.GetFunc == nil {
		return nil, store.ErrTaskNotFound
	}
	return m.GetFunc(ctx, ownerID, id)
}

type mockLister struct {
	ListFunc func(ctx context.Context, recipient uuid.UUID, cursor float64, limit int) ([]domain.Notification, error)
}

func (m *mockLister) List(
	ctx context.Context,
	recipient uuid.UUID,
	cursor float64,
	limit int,
) ([]domain.Notification, error) {
	if m.ListFunc == nil {
		return nil, nil
	}
	return m.ListFunc(ctx, recipient, cursor, limit)
}

type mockPinger struct{ err error }

func (m mockPinger) PingContext(context.Context) error { return m.err }

type apiFixture struct {
	handler http.Handler
	jwt     auth.JWTService
	tasks   *mockTaskService
	feed    *mockLister
	broker  *events.Broker
	userID  uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWithConfig(t, NotificationHandlerConfig{
		MaxWait:         2 * time.Second,
		RecheckInterval: time.Hour,
	})
}

func newAPIFixtureWithConfig(t *testing.T, cfg NotificationHandlerConfig) *apiFixture {
	t.Helper()

	f := &apiFixture{
		jwt:    auth.NewTestJWTService(t),
		tasks:  &mockTaskService{},
		feed:   &mockLister{},
		broker: events.NewBroker(),
		userID: uuid.New(),
	}
	f.handler = NewRouter(RouterDeps{
		Auth:  middleware.NewAuthMiddleware(f.jwt),
		Tasks: NewTaskHandler(f.tasks),
		Notifications: NewNotificationHandler(f.feed, f.broker, cfg),
		Health: NewHealthHandler(mockPinger{}),
		Logger: setupTestLogger(),
	})
	return f
}

func (f *apiFixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Authorization", auth.GenerateAuthHeader(t, f.jwt, f.userID))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}
