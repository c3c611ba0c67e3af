package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/microblog/internal/api/shared"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/service/auth"
	"github.com/phrazzld/microblog/internal/store"
	"github.com/phrazzld/microblog/internal/task"
)

var (
	// ErrInvalidRequest is returned for malformed query or path parameters.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnauthenticated is returned when a protected handler runs without a user.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing their text.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.Is(err, ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	case store.IsNotFoundError(err):
		return http.StatusNotFound

	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, task.ErrUnknownKind),
		errors.Is(err, task.ErrInvalidArgs),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, shared.ErrEmptyBody),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	case store.IsDuplicateError(err):
		return http.StatusConflict

	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed),
		errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a user-facing message for err.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		return SanitizeValidationError(validationErrs)
	case errors.Is(err, ErrUnauthenticated):
		return "Authentication required"
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"
	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"
	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"
	case store.IsNotFoundError(err):
		return "Not found"
	case errors.Is(err, task.ErrUnknownKind):
		return "Unknown task kind"
	case errors.Is(err, task.ErrInvalidArgs),
		errors.Is(err, domain.ErrInvalidPayload):
		return "Invalid task arguments"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, ErrInvalidRequest):
		return "Invalid request"
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation):
		return "Invalid entity data"
	case store.IsDuplicateError(err):
		return "Resource already exists"
	case errors.Is(err, task.ErrQueueFull),
		errors.Is(err, task.ErrQueueClosed),
		errors.Is(err, store.ErrUnavailable):
		return "Service temporarily unavailable"
	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError describes the first failing field without echoing
// the submitted value.
func SanitizeValidationError(errs validator.ValidationErrors) string {
	if len(errs) == 0 {
		return "Validation error"
	}
	fe := errs[0]
	return fmt.Sprintf("Invalid %s: %s", strings.ToLower(fe.Field()), getValidationTagMessage(fe.Tag()))
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted detail.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
