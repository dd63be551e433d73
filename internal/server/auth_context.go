package server

import (
	"context"

	"scfingest/internal/store"
)

type sessionContextKey struct{}

// Session is the authentication state of one request.
type Session struct {
	Authenticated bool
	User          *store.User
}

// Identity returns the username of an authenticated session.
func (s Session) Identity() string {
	if !s.Authenticated || s.User == nil {
		return ""
	}
	return s.User.Username
}

func contextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

func sessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	session, ok := ctx.Value(sessionContextKey{}).(Session)
	return session, ok
}
