package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/team-attendance/internal/logging"
	"github.com/example/team-attendance/internal/occurrence"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
// The same labels double as wire-level error codes.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenInvalidSignature):
		return "token_invalid_signature"
	case errors.Is(err, ErrTokenScopeMismatch):
		return "token_scope_mismatch"
	case errors.Is(err, ErrTokenReplayed):
		return "token_replayed"
	case errors.Is(err, ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, ErrEventLocationNotSet):
		return "event_location_not_set"
	case errors.Is(err, ErrOutOfRadius):
		return "out_of_radius"
	case errors.Is(err, ErrAlreadyCheckedIn):
		return "already_checked_in"
	case errors.Is(err, ErrNotCheckedIn):
		return "not_checked_in"
	case errors.Is(err, ErrEventLocked):
		return "event_locked"
	case errors.Is(err, occurrence.ErrInvalidRecurrenceRule):
		return "invalid_recurrence_rule"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrAccountDisabled):
		return "account_disabled"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrSessionRevoked):
		return "session_revoked"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
