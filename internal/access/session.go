// Package access composes authentication, organization state and role data into a
// session, and builds the guard chain that protects operations on it.
package access

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orgscope/internal/audit"
	auditdomain "orgscope/internal/audit/domain"
	"orgscope/internal/guard"
	"orgscope/internal/identity"
	"orgscope/internal/orgcontext"
	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/permission"
	"orgscope/internal/permission/domain"
)

// DefaultAwaitTimeout bounds Authorize when the chain keeps reporting Loading.
const DefaultAwaitTimeout = 5 * time.Second

// Session is one user's view of organizations and capabilities.
type Session struct {
	auth  *identity.Authenticator
	orgs  *orgcontext.Context
	perms *permission.Context

	cfg   Config
	audit audit.AuditLogger
	log   *zap.Logger
}

func newSession(auth *identity.Authenticator, orgs *orgcontext.Context, perms *permission.Context, cfg Config, auditLog audit.AuditLogger, log *zap.Logger) *Session {
	return &Session{auth: auth, orgs: orgs, perms: perms, cfg: cfg, audit: auditLog, log: log}
}

// Identity returns the authentication state holder.
func (s *Session) Identity() *identity.Authenticator { return s.auth }

// Organizations returns the organization context.
func (s *Session) Organizations() *orgcontext.Context { return s.orgs }

// Permissions returns the role data holder.
func (s *Session) Permissions() *permission.Context { return s.perms }

// Bootstrap authenticates token and loads the session. An authentication failure is
// returned as is and leaves the session unauthenticated.
func (s *Session) Bootstrap(ctx context.Context, token string) error {
	p, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		return err
	}
	return s.Start(ctx, p.UserID)
}

// Start loads memberships and roles for userID. With global role scope both loads run
// concurrently; roles are then bound to the selected organization. Load failures are
// recorded in the contexts and also returned.
func (s *Session) Start(ctx context.Context, userID string) error {
	var g errgroup.Group
	g.Go(func() error { return s.orgs.SetIdentity(ctx, userID) })
	if !s.cfg.tenantScoped() {
		g.Go(func() error { return s.perms.Load(ctx, userID, nil) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.bindPermissions(ctx)
}

// Refresh reloads memberships and rebinds roles.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.orgs.Refresh(ctx); err != nil {
		return err
	}
	return s.bindPermissions(ctx)
}

// Switch changes the current organization and rebinds roles to it.
func (s *Session) Switch(ctx context.Context, orgID string) error {
	if err := s.orgs.Switch(ctx, orgID); err != nil {
		return err
	}
	return s.bindPermissions(ctx)
}

// Create creates an organization owned by the session user.
func (s *Session) Create(ctx context.Context, name, description string) (*orgdomain.Org, error) {
	org, err := s.orgs.Create(ctx, name, description)
	if err != nil {
		return org, err
	}
	return org, s.bindPermissions(ctx)
}

// bindPermissions reloads role data when it was loaded for another organization than the current one.
func (s *Session) bindPermissions(ctx context.Context) error {
	osnap := s.orgs.Snapshot()
	if osnap.State != orgcontext.StateReady {
		return nil
	}
	psnap := s.perms.Snapshot()
	if psnap.UserID == osnap.UserID && psnap.OrgID == osnap.CurrentID() &&
		(psnap.State == permission.StateReady || psnap.State == permission.StateLoading) {
		return nil
	}
	err := s.perms.Load(ctx, osnap.UserID, osnap.Current)
	if errors.Is(err, permission.ErrSuperseded) {
		return nil
	}
	return err
}

// Chain returns the guard chain for req.
func (s *Session) Chain(req Requirement) *guard.Chain {
	guards := []guard.Guard{guard.AuthGuard{Source: s.auth, LoginPath: s.cfg.LoginPath}}
	if req.Level >= LevelTenant {
		guards = append(guards, guard.TenantGuard{Source: s.orgs, CreatePath: s.cfg.OrgCreatePath})
	}
	if req.Level >= LevelCapability {
		guards = append(guards, guard.PermissionGuard{Source: s.perms, Capability: req.Capability, Fallback: req.Fallback})
	}
	return guard.NewChain(guards, s.cfg.chainOptions()...)
}

// Authorize waits for the chain of req to settle and audits denials. The error is only
// non-nil when the chain was still loading when ctx or the await timeout expired.
func (s *Session) Authorize(ctx context.Context, req Requirement) (guard.Decision, error) {
	timeout := s.cfg.AwaitTimeout
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	d, err := s.Chain(req).Await(waitCtx, s.cfg.AwaitInterval)
	if err != nil {
		return d, err
	}
	if d.Outcome == guard.OutcomeDeny {
		meta := map[string]string{
			"stage":  d.Stage.String(),
			"reason": string(d.Reason),
		}
		if req.Level == LevelCapability {
			meta["capability"] = req.Capability.String()
		}
		s.audit.LogEvent(ctx, s.orgs.Snapshot().CurrentID(), s.auth.Snapshot().UserID(),
			auditdomain.ActionAccessDenied, auditdomain.ResourceCapability, meta)
	}
	return d, nil
}

// Capabilities returns the effective capabilities for the current organization.
func (s *Session) Capabilities() domain.CapabilitySet {
	return s.perms.Snapshot().Capabilities
}

// Logout clears the session. The persisted selection is kept.
func (s *Session) Logout(ctx context.Context) {
	s.auth.Logout()
	if err := s.orgs.SetIdentity(ctx, ""); err != nil {
		s.log.Warn("access: clear organizations on logout", zap.Error(err))
	}
	s.perms.Clear()
}

// Close cancels in-flight loads.
func (s *Session) Close() {
	s.orgs.Close()
	s.perms.Close()
}
