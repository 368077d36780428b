package context

import (
	"context"

	"github.com/epiwatch/epiwatch-api/internal/repository"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserKey is the context key for the authenticated user
	UserKey ContextKey = "user"
	// SessionTokenKey is the context key for the presented session token
	SessionTokenKey ContextKey = "session_token"
)

// WithUser stores the authenticated user in the context
func WithUser(ctx context.Context, user *repository.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// ExtractUser extracts the authenticated user from the request context
func ExtractUser(ctx context.Context) (*repository.User, bool) {
	user, ok := ctx.Value(UserKey).(*repository.User)
	return user, ok
}

// WithSessionToken stores the presented session token in the context
func WithSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, SessionTokenKey, token)
}

// ExtractSessionToken extracts the presented session token from the context
func ExtractSessionToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(SessionTokenKey).(string)
	return token, ok
}
