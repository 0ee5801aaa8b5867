// Package userctx stores and retrieves the authenticated user id carried by a
// request context. The session middleware injects it and handlers or the
// event emitter read it back.
package userctx

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SystemUser is the pseudo user that owns events for unknown conversations
// and the identity used by background workers. It is never rate limited.
const SystemUser = "system"

var (
	// ErrNoUser is returned when a context carries no authenticated user.
	ErrNoUser = errors.New("user not found in context")
	// ErrInvalidUser is returned for user ids that cannot name a queue key.
	ErrInvalidUser = errors.New("invalid user id")
)

// ValidateUserID rejects empty ids and ids containing the key separator or
// whitespace. User ids are embedded in queue keys next to conversation ids.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidUser)
	}
	if strings.ContainsAny(userID, ": \t\r\n") {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidUser, userID)
	}
	return nil
}

type userKey struct{}

// WithUserID adds the authenticated user id to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userKey{}, userID)
}

// UserIDFromContext extracts the authenticated user id.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(userKey{}).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// MustUserID returns the user id or ErrNoUser.
// Only use this in handlers that are protected by the session middleware.
func MustUserID(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", ErrNoUser
	}
	return id, nil
}

// IsSystem reports whether userID is the system identity.
func IsSystem(userID string) bool {
	return userID == SystemUser
}
