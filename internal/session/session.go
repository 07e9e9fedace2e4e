package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated user context. Its absence disables every
// remote mirror operation: the sync engine checks the context and silently
// skips the remote leg when no session is present.
type Session struct {
	UserID    uuid.UUID
	Role      string
	StartedAt time.Time
}

// IsAdmin reports whether the session may mutate the catalog.
func (s Session) IsAdmin() bool {
	return s.Role == "admin"
}

type contextKey struct{}

// NewContext returns a context carrying the session.
func NewContext(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext extracts the session, if any.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}
