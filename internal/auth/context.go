package auth

import (
	"context"

	"github.com/dukerupert/marks/internal/model"
)

type contextKey struct{}

// WithSession attaches the resolved session to the request context.
func WithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, contextKey{}, sess)
}

// SessionFromContext returns the request's session, if one was resolved.
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	sess, ok := ctx.Value(contextKey{}).(*model.Session)
	return sess, ok && sess != nil
}

// UserID returns the authenticated user identifier, or "" when absent.
func UserID(ctx context.Context) string {
	sess, ok := SessionFromContext(ctx)
	if !ok {
		return ""
	}
	return sess.UserID
}
