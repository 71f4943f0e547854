// Package identity tracks whether the session has an authenticated user.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"orgscope/internal/security"
	userdomain "orgscope/internal/user/domain"
)

var (
	// ErrUnauthenticated is returned when no valid credential was presented.
	ErrUnauthenticated = errors.New("identity: unauthenticated")
	// ErrUserDisabled is returned when the token is valid but the user may not sign in.
	ErrUserDisabled = errors.New("identity: user disabled or unknown")
)

// State is the authentication state.
type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// TokenValidator validates an access token.
type TokenValidator interface {
	ValidateAccess(token string) (security.Principal, error)
}

// UserLookup returns a user by id, or nil when it does not exist.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Snapshot is a point-in-time copy of the authentication state.
type Snapshot struct {
	State     State
	Principal security.Principal
	Err       error
}

// UserID returns the authenticated user id, or "".
func (s Snapshot) UserID() string {
	if s.State != StateAuthenticated {
		return ""
	}
	return s.Principal.UserID
}

// Authenticator holds the authentication state of one session. It starts in StateLoading
// until the first Authenticate, SetPrincipal or Logout call.
type Authenticator struct {
	tokens TokenValidator
	users  UserLookup
	log    *zap.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// NewAuthenticator returns an Authenticator in StateLoading. users may be nil to skip the user check.
func NewAuthenticator(tokens TokenValidator, users UserLookup, log *zap.Logger) *Authenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{tokens: tokens, users: users, log: log}
}

// Authenticated returns an Authenticator already holding p. Used where the token was
// validated upstream, e.g. by a gRPC interceptor.
func Authenticated(p security.Principal) *Authenticator {
	a := NewAuthenticator(nil, nil, nil)
	a.snap = Snapshot{State: StateAuthenticated, Principal: p}
	return a
}

// Snapshot returns the current state.
func (a *Authenticator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

// Authenticate validates token and moves to StateAuthenticated, or to StateUnauthenticated
// on any failure. A store error from the user check is returned but still leaves the
// session unauthenticated.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (security.Principal, error) {
	p, err := a.authenticate(ctx, token)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.snap = Snapshot{State: StateUnauthenticated, Err: err}
		a.log.Info("identity: authentication failed", zap.Error(err))
		return security.Principal{}, err
	}
	a.snap = Snapshot{State: StateAuthenticated, Principal: p}
	return p, nil
}

func (a *Authenticator) authenticate(ctx context.Context, token string) (security.Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" || a.tokens == nil {
		return security.Principal{}, ErrUnauthenticated
	}
	p, err := a.tokens.ValidateAccess(token)
	if err != nil {
		return security.Principal{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if a.users == nil {
		return p, nil
	}
	u, err := a.users.GetByID(ctx, p.UserID)
	if err != nil {
		return security.Principal{}, fmt.Errorf("look up user %s: %w", p.UserID, err)
	}
	if !u.Active() {
		return security.Principal{}, ErrUserDisabled
	}
	return p, nil
}

// SetPrincipal marks the session authenticated as p without validating a token.
func (a *Authenticator) SetPrincipal(p security.Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if p.UserID == "" {
		a.snap = Snapshot{State: StateUnauthenticated, Err: ErrUnauthenticated}
		return
	}
	a.snap = Snapshot{State: StateAuthenticated, Principal: p}
}

// Logout moves to StateUnauthenticated.
func (a *Authenticator) Logout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snap = Snapshot{State: StateUnauthenticated}
}
