package access

import (
	"context"
	"time"

	"go.uber.org/zap"

	"orgscope/internal/audit"
	"orgscope/internal/guard"
	"orgscope/internal/identity"
	"orgscope/internal/orgcontext"
	"orgscope/internal/permission"
	rolerepo "orgscope/internal/role/repository"
	"orgscope/internal/security"
	"orgscope/internal/selection"
)

// Config holds session behaviour settings.
type Config struct {
	FetchTimeout   time.Duration
	RoleScope      rolerepo.Scope
	SwitchOnCreate bool
	LoginPath      string
	OrgCreatePath  string
	// AwaitTimeout and AwaitInterval control Session.Authorize while the chain is loading.
	AwaitTimeout  time.Duration
	AwaitInterval time.Duration
	Observers     []guard.Observer
}

func (c Config) tenantScoped() bool { return c.RoleScope == rolerepo.ScopeTenant }

func (c Config) chainOptions() []guard.Option {
	opts := make([]guard.Option, 0, len(c.Observers))
	for _, o := range c.Observers {
		opts = append(opts, guard.WithObserver(o))
	}
	return opts
}

// Deps are the stores a Manager builds sessions from. Restrictor, Store, Audit and Users may be nil.
type Deps struct {
	Memberships orgcontext.MembershipLister
	Orgs        orgcontext.OrganizationCreator
	Roles       permission.RoleSource
	Restrictor  permission.Restrictor
	Tokens      identity.TokenValidator
	Users       identity.UserLookup
	// Store persists the current selection. Nil keeps it in memory per session.
	Store  selection.Store
	Audit  audit.AuditLogger
	Logger *zap.Logger
}

// Manager creates sessions that share stores and configuration.
type Manager struct {
	deps Deps
	cfg  Config
}

// NewManager returns a Manager.
func NewManager(deps Deps, cfg Config) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = audit.Nop{}
	}
	return &Manager{deps: deps, cfg: cfg}
}

// Config returns the session configuration.
func (m *Manager) Config() Config { return m.cfg }

// NewSession returns an unauthenticated session persisting its selection to store.
// A nil store falls back to Deps.Store.
func (m *Manager) NewSession(store selection.Store) *Session {
	auth := identity.NewAuthenticator(m.deps.Tokens, m.deps.Users, m.deps.Logger)
	return m.build(auth, store)
}

// Open returns a loaded session for a principal authenticated upstream. hintOrgID is
// tried ahead of the persisted selection; p.OrgID is used only when nothing is persisted.
// Either is ignored when p is not a member of it. Load failures are reflected in the
// session state; the returned error is informational.
func (m *Manager) Open(ctx context.Context, p security.Principal, hintOrgID string) (*Session, error) {
	store := selection.WithHint(selection.WithDefault(m.deps.Store, p.OrgID), hintOrgID)
	s := m.build(identity.Authenticated(p), store)
	return s, s.Start(ctx, p.UserID)
}

func (m *Manager) build(auth *identity.Authenticator, store selection.Store) *Session {
	if store == nil {
		store = m.deps.Store
	}
	orgs := orgcontext.New(m.deps.Memberships, m.deps.Orgs, store, orgcontext.Options{
		Timeout:        m.cfg.FetchTimeout,
		SwitchOnCreate: m.cfg.SwitchOnCreate,
		Logger:         m.deps.Logger,
		Audit:          m.deps.Audit,
	})
	perms := permission.NewContext(m.deps.Roles, permission.Options{
		Timeout:    m.cfg.FetchTimeout,
		Restrictor: m.deps.Restrictor,
		Logger:     m.deps.Logger,
	})
	return newSession(auth, orgs, perms, m.cfg, m.deps.Audit, m.deps.Logger)
}
