package interceptors

import (
	"context"

	"orgscope/internal/access"
	"orgscope/internal/security"
)

type contextKey struct{ name string }

var (
	userIDKey    = contextKey{"user_id"}
	orgIDKey     = contextKey{"org_id"}
	sessionIDKey = contextKey{"session_id"}
	sessionKey   = contextKey{"session"}
)

// WithIdentity returns a context with user_id, org_id, and session_id set.
// Handlers read these via GetUserID, GetOrgID, GetSessionID.
func WithIdentity(ctx context.Context, userID, orgID, sessionID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	ctx = context.WithValue(ctx, orgIDKey, orgID)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// WithPrincipal is WithIdentity for a validated token.
func WithPrincipal(ctx context.Context, p security.Principal) context.Context {
	return WithIdentity(ctx, p.UserID, p.OrgID, p.SessionID)
}

// WithSession stores the request's access session and overrides org_id with its current organization.
func WithSession(ctx context.Context, s *access.Session) context.Context {
	ctx = context.WithValue(ctx, sessionKey, s)
	if id := s.Organizations().Snapshot().CurrentID(); id != "" {
		ctx = context.WithValue(ctx, orgIDKey, id)
	}
	return ctx
}

// SessionFrom returns the access session set by AccessUnary.
func SessionFrom(ctx context.Context) (*access.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*access.Session)
	return s, ok && s != nil
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	return v, ok
}

// GetOrgID returns the org_id from context and true if set; otherwise "", false.
func GetOrgID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(orgIDKey).(string)
	return v, ok
}

// GetSessionID returns the session_id from context and true if set; otherwise "", false.
func GetSessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}
