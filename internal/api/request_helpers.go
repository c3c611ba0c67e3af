package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/api/shared"
)

// getUserIDFromContext returns the user placed in the context by the auth middleware.
func getUserIDFromContext(r *http.Request) (uuid.UUID, error) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, ErrUnauthenticated
	}
	return userID, nil
}

// getPathUUID parses the chi path parameter paramName as a UUID.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", ErrInvalidRequest, paramName)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", ErrInvalidRequest, paramName)
	}
	return id, nil
}

// getQueryFloat parses an optional non-negative float query parameter.
func getQueryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidRequest, name)
	}
	return v, nil
}

// getQueryInt parses an optional non-negative integer query parameter.
func getQueryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidRequest, name)
	}
	return v, nil
}

// getQueryWait reads the wait parameter as seconds and caps it at max.
func getQueryWait(r *http.Request, max time.Duration) (time.Duration, error) {
	secs, err := getQueryFloat(r, "wait")
	if err != nil {
		return 0, err
	}
	wait := time.Duration(secs * float64(time.Second))
	if wait > max {
		wait = max
	}
	return wait, nil
}
