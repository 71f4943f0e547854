// Package orgcontext holds the session's organization state: the active memberships,
// the current organization, and the operations that change them.
package orgcontext

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"orgscope/internal/audit"
	auditdomain "orgscope/internal/audit/domain"
	membershipdomain "orgscope/internal/membership/domain"
	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/selection"
)

// DefaultTimeout bounds a single membership load when Options.Timeout is unset.
const DefaultTimeout = 10 * time.Second

var (
	// ErrFetchFailure wraps membership store failures. It is never reported as "no organizations".
	ErrFetchFailure = errors.New("organization: fetch failed")
	// ErrInvalidSwitchTarget is returned by Switch when the id is not in the active membership list.
	ErrInvalidSwitchTarget = errors.New("organization: switch target is not an active membership")
	// ErrNoIdentity is returned when an operation needs a user and none is set.
	ErrNoIdentity = errors.New("organization: no identity")
	// ErrNotReady is returned by Switch before memberships have loaded.
	ErrNotReady = errors.New("organization: memberships not loaded")
	// ErrSuperseded is returned by a load whose result was discarded because a newer load started.
	ErrSuperseded = errors.New("organization: load superseded")
)

// State is the lifecycle state of a Context.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MembershipLister loads a user's active memberships with organizations attached.
type MembershipLister interface {
	ListActiveByUser(ctx context.Context, userID string) ([]*membershipdomain.Membership, error)
}

// OrganizationCreator persists a new organization together with its owner membership.
type OrganizationCreator interface {
	CreateWithOwner(ctx context.Context, o *orgdomain.Org, owner *membershipdomain.Membership) error
}

// Snapshot is a point-in-time copy of the context state.
type Snapshot struct {
	State              State
	UserID             string
	Organizations      []*membershipdomain.Membership
	Current            *orgdomain.Org
	HasNoOrganizations bool
	Err                error
}

// CurrentID returns the current organization id or "".
func (s Snapshot) CurrentID() string {
	if s.Current == nil {
		return ""
	}
	return s.Current.ID
}

// Options configures a Context. Zero values select defaults.
type Options struct {
	// Timeout bounds each membership load.
	Timeout time.Duration
	// SwitchOnCreate makes Create select the new organization.
	SwitchOnCreate bool
	Logger         *zap.Logger
	Audit          audit.AuditLogger
	Tracer         trace.Tracer
	Now            func() time.Time
}

// Context is the session-scoped organization state. It is safe for concurrent use.
type Context struct {
	memberships MembershipLister
	orgs        OrganizationCreator
	store       selection.Store

	timeout        time.Duration
	switchOnCreate bool
	log            *zap.Logger
	audit          audit.AuditLogger
	tracer         trace.Tracer
	now            func() time.Time

	mu        sync.RWMutex
	userID    string
	state     State
	list      []*membershipdomain.Membership
	current   *orgdomain.Org
	err       error
	gen       uint64
	cancel    context.CancelFunc
	listeners []func(Snapshot)
}

// New returns an uninitialized Context.
func New(memberships MembershipLister, orgs OrganizationCreator, store selection.Store, opts Options) *Context {
	c := &Context{
		memberships:    memberships,
		orgs:           orgs,
		store:          store,
		timeout:        opts.Timeout,
		switchOnCreate: opts.SwitchOnCreate,
		log:            opts.Logger,
		audit:          opts.Audit,
		tracer:         opts.Tracer,
		now:            opts.Now,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.audit == nil {
		c.audit = audit.Nop{}
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("orgscope/orgcontext")
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.store == nil {
		c.store = selection.NewMemoryStore()
	}
	return c
}

// OnChange registers fn to be called after every state change. fn runs outside the lock.
func (c *Context) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Context) snapshotLocked() Snapshot {
	list := make([]*membershipdomain.Membership, len(c.list))
	copy(list, c.list)
	return Snapshot{
		State:              c.state,
		UserID:             c.userID,
		Organizations:      list,
		Current:            c.current,
		HasNoOrganizations: c.state == StateReady && len(c.list) == 0,
		Err:                c.err,
	}
}

// SetIdentity binds the context to userID and loads its memberships. Calling it with the
// already-bound user is a no-op unless the last load failed. An empty userID (logout) cancels any load and
// clears in-memory state; the persisted selection is left in place.
func (c *Context) SetIdentity(ctx context.Context, userID string) error {
	c.mu.Lock()
	if userID == c.userID && (c.state == StateReady || c.state == StateLoading) {
		c.mu.Unlock()
		return nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.userID = userID
	c.state = StateUninitialized
	c.list = nil
	c.current = nil
	c.err = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if userID == "" {
		c.notify(snap)
		return nil
	}
	return c.Refresh(ctx)
}

// Refresh reloads the memberships and re-derives the current organization. A refresh
// started while another is in flight cancels the older one, whose result is discarded.
func (c *Context) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.userID == "" {
		c.mu.Unlock()
		return ErrNoIdentity
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	userID := c.userID
	loadCtx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancel = cancel
	c.state = StateLoading
	c.err = nil
	snap := c.snapshotLocked()
	c.mu.Unlock()
	defer cancel()
	c.notify(snap)

	loadCtx, span := c.tracer.Start(loadCtx, "orgcontext.Refresh",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	list, err := c.memberships.ListActiveByUser(loadCtx, userID)
	if err == nil {
		list, err = activeOnly(list)
	}
	var persisted string
	if err == nil {
		var loadErr error
		persisted, loadErr = c.store.Load(loadCtx, userID)
		if loadErr != nil {
			c.log.Warn("orgcontext: could not read persisted selection", zap.String("user_id", userID), zap.Error(loadErr))
			persisted = ""
		}
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		span.SetStatus(codes.Error, "superseded")
		return ErrSuperseded
	}
	c.cancel = nil
	if err != nil {
		c.state = StateFailed
		c.list = nil
		c.current = nil
		c.err = fmt.Errorf("%w: %w", ErrFetchFailure, err)
		failed := c.err
		snap := c.snapshotLocked()
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, "membership fetch failed")
		c.log.Error("orgcontext: membership load failed", zap.String("user_id", userID), zap.Error(err))
		c.notify(snap)
		return failed
	}
	selected := Select(list, persisted)
	c.state = StateReady
	c.list = list
	c.current = selected
	snap = c.snapshotLocked()
	c.mu.Unlock()

	span.SetAttributes(attribute.Int("memberships", len(list)))
	if selected != nil {
		if err := c.store.Save(ctx, userID, selected.ID); err != nil {
			c.log.Warn("orgcontext: could not persist selection", zap.String("org_id", selected.ID), zap.Error(err))
		}
		if persisted != "" && persisted != selected.ID {
			c.log.Info("orgcontext: persisted selection no longer valid",
				zap.String("user_id", userID),
				zap.String("stale_org_id", persisted),
				zap.String("org_id", selected.ID),
			)
		}
	}
	c.notify(snap)
	return nil
}

// Switch makes orgID the current organization. If orgID is not one of the active
// memberships the selection is left unchanged and ErrInvalidSwitchTarget is returned.
func (c *Context) Switch(ctx context.Context, orgID string) error {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return ErrNotReady
	}
	userID := c.userID
	m := membershipdomain.FindByOrg(c.list, orgID)
	if !selectable(m) {
		prev := ""
		if c.current != nil {
			prev = c.current.ID
		}
		c.mu.Unlock()
		c.audit.LogEvent(ctx, prev, userID, auditdomain.ActionOrganizationSwitchRejected, auditdomain.ResourceOrganization,
			map[string]string{"target_org_id": orgID})
		return fmt.Errorf("%w: %q", ErrInvalidSwitchTarget, orgID)
	}
	prev := ""
	if c.current != nil {
		prev = c.current.ID
	}
	c.current = m.Organization
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if err := c.store.Save(ctx, userID, orgID); err != nil {
		c.log.Warn("orgcontext: could not persist selection", zap.String("org_id", orgID), zap.Error(err))
	}
	c.audit.LogEvent(ctx, orgID, userID, auditdomain.ActionOrganizationSwitched, auditdomain.ResourceOrganization,
		map[string]string{"previous_org_id": prev})
	c.notify(snap)
	return nil
}

// Create inserts a new organization owned by the bound user, with an owner membership,
// then refreshes the membership list. The current selection only changes when
// Options.SwitchOnCreate is set. The created organization is returned even if the
// follow-up refresh fails.
func (c *Context) Create(ctx context.Context, name, description string) (*orgdomain.Org, error) {
	c.mu.RLock()
	userID := c.userID
	c.mu.RUnlock()
	if userID == "" {
		return nil, ErrNoIdentity
	}
	now := c.now()
	org := &orgdomain.Org{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Settings:    map[string]any{},
		OwnerID:     userID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := org.Validate(); err != nil {
		return nil, err
	}
	owner := &membershipdomain.Membership{
		ID:       uuid.New().String(),
		UserID:   userID,
		OrgID:    org.ID,
		Active:   true,
		JoinedAt: now,
	}
	if err := c.orgs.CreateWithOwner(ctx, org, owner); err != nil {
		return nil, fmt.Errorf("create organization: %w", err)
	}
	c.audit.LogEvent(ctx, org.ID, userID, auditdomain.ActionOrganizationCreated, auditdomain.ResourceOrganization,
		map[string]string{"name": org.Name})

	if err := c.Refresh(ctx); err != nil {
		return org, err
	}
	if c.switchOnCreate {
		if err := c.Switch(ctx, org.ID); err != nil {
			return org, err
		}
	}
	return org, nil
}

// Close cancels any in-flight load.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

func (c *Context) notify(s Snapshot) {
	c.mu.RLock()
	listeners := make([]func(Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// activeOnly drops inactive memberships and rejects ones without a loaded organization.
func activeOnly(list []*membershipdomain.Membership) ([]*membershipdomain.Membership, error) {
	out := make([]*membershipdomain.Membership, 0, len(list))
	for _, m := range list {
		if m == nil || !m.Active {
			continue
		}
		if m.Organization == nil || m.Organization.ID != m.OrgID {
			return nil, fmt.Errorf("membership %s: organization %s not loaded", m.ID, m.OrgID)
		}
		out = append(out, m)
	}
	return out, nil
}
