package http

import (
	"context"
	"log/slog"

	"github.com/example/team-attendance/internal/application"
	"github.com/example/team-attendance/internal/logging"
)

type contextKey string

const (
	principalContextKey  contextKey = "principal"
	eventIDContextKey    contextKey = "event_id"
	dateContextKey       contextKey = "date"
	targetUserContextKey contextKey = "target_user_id"
)

// ContextWithPrincipal returns a derived context containing the authenticated principal.
func ContextWithPrincipal(ctx context.Context, principal application.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from context if available.
func PrincipalFromContext(ctx context.Context) (application.Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(application.Principal)
	return principal, ok
}

// ContextWithEventID injects the event identifier resolved from the request path.
func ContextWithEventID(ctx context.Context, eventID string) context.Context {
	return context.WithValue(ctx, eventIDContextKey, eventID)
}

// EventIDFromContext extracts an event identifier previously associated with the context.
func EventIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(eventIDContextKey).(string)
	return id, ok
}

// ContextWithDate injects the occurrence date resolved from the request path.
func ContextWithDate(ctx context.Context, date string) context.Context {
	return context.WithValue(ctx, dateContextKey, date)
}

// DateFromContext extracts an occurrence date previously associated with the context.
func DateFromContext(ctx context.Context) (string, bool) {
	date, ok := ctx.Value(dateContextKey).(string)
	return date, ok
}

// ContextWithTargetUserID injects the target user identifier resolved from the
// request path.
func ContextWithTargetUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, targetUserContextKey, userID)
}

// TargetUserIDFromContext extracts a target user identifier previously
// associated with the context.
func TargetUserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(targetUserContextKey).(string)
	return id, ok
}

// ContextWithLogger attaches a request-scoped logger to the context.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return logging.ContextWithLogger(ctx, logger)
}

// LoggerFromContext extracts a request-scoped logger from the context.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx)
}
