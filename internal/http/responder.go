package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/team-attendance/internal/application"
	"github.com/example/team-attendance/internal/occurrence"
)

var (
	errBadRequestBody      = errors.New("request body is not valid JSON")
	errInvalidEventID      = errors.New("event id is missing or invalid")
	errInvalidDate         = errors.New("occurrence date is missing or invalid")
	errInvalidUserID       = errors.New("user id is missing or invalid")
	errMissingSessionToken = errors.New("a session token is required")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := http.StatusText(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError translates application errors into HTTP responses. The
// error kind travels as a stable error_code so clients can branch without
// parsing messages.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	status := statusForServiceError(err)
	if status >= http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err, "error_kind", application.ErrorKind(err))
		r.writeJSON(ctx, w, status, errorResponse{
			ErrorCode: "internal",
			Message:   "an internal error occurred",
		})
		return
	}

	resp := errorResponse{
		ErrorCode: application.ErrorKind(err),
		Message:   err.Error(),
	}
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		resp.Message = "the request contains invalid fields"
		resp.Errors = vErr.FieldErrors
	}
	r.writeJSON(ctx, w, status, resp)
}

func statusForServiceError(err error) int {
	switch {
	case errors.Is(err, application.ErrInvalidCredentials),
		errors.Is(err, application.ErrSessionExpired),
		errors.Is(err, application.ErrSessionRevoked),
		errors.Is(err, application.ErrTokenExpired),
		errors.Is(err, application.ErrTokenInvalidSignature),
		errors.Is(err, application.ErrTokenScopeMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, application.ErrUnauthorized),
		errors.Is(err, application.ErrNotEligible),
		errors.Is(err, application.ErrAccountDisabled),
		errors.Is(err, application.ErrOutOfRadius):
		return http.StatusForbidden
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrAlreadyCheckedIn),
		errors.Is(err, application.ErrNotCheckedIn),
		errors.Is(err, application.ErrTokenReplayed),
		errors.Is(err, application.ErrEventLocked),
		errors.Is(err, application.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, application.ErrLocationUnavailable),
		errors.Is(err, application.ErrEventLocationNotSet),
		errors.Is(err, occurrence.ErrInvalidRecurrenceRule):
		return http.StatusUnprocessableEntity
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

type errorResponse struct {
	ErrorCode string            `json:"error_code,omitempty"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors,omitempty"`
}
