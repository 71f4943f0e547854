package permission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	orgdomain "orgscope/internal/organization/domain"
	"orgscope/internal/permission/domain"
)

// DefaultTimeout bounds a role load when Options.Timeout is unset.
const DefaultTimeout = 10 * time.Second

var (
	// ErrFetchFailure wraps role store failures.
	ErrFetchFailure = errors.New("permission: fetch failed")
	// ErrSuperseded is returned by a load whose result was discarded for a newer one.
	ErrSuperseded = errors.New("permission: load superseded")
)

// State is the lifecycle state of a Context.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
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

// RoleSource returns the active roles of a user.
type RoleSource interface {
	ActiveRoles(ctx context.Context, userID, orgID string) (domain.RoleSet, error)
}

// Restrictor narrows a resolved capability set for an organization. It must never
// grant a flag that caps does not already hold. On error the returned set is used as is,
// unless the error wraps ErrFetchFailure: then the load fails like a role store failure.
type Restrictor interface {
	Restrict(ctx context.Context, org *orgdomain.Org, userID string, roles domain.RoleSet, caps domain.CapabilitySet) (domain.CapabilitySet, error)
}

// Snapshot is a point-in-time copy of the role data. Capabilities is all-false unless State is StateReady.
type Snapshot struct {
	State        State
	UserID       string
	OrgID        string
	Roles        domain.RoleSet
	Capabilities domain.CapabilitySet
	Err          error
}

// Options configures a Context.
type Options struct {
	Timeout    time.Duration
	Restrictor Restrictor
	Logger     *zap.Logger
	Tracer     trace.Tracer
}

// Context holds the roles and effective capabilities of the session user.
type Context struct {
	roles      RoleSource
	restrictor Restrictor
	timeout    time.Duration
	log        *zap.Logger
	tracer     trace.Tracer

	mu     sync.RWMutex
	snap   Snapshot
	gen    uint64
	cancel context.CancelFunc
}

// NewContext returns an idle Context.
func NewContext(roles RoleSource, opts Options) *Context {
	c := &Context{
		roles:      roles,
		restrictor: opts.Restrictor,
		timeout:    opts.Timeout,
		log:        opts.Logger,
		tracer:     opts.Tracer,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer("orgscope/permission")
	}
	return c
}

// Snapshot returns a copy of the current role data.
func (c *Context) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Load fetches the roles of userID and resolves them. org may be nil; it scopes
// tenant-bound roles and selects the capability policy. A newer Load cancels an
// in-flight one.
func (c *Context) Load(ctx context.Context, userID string, org *orgdomain.Org) error {
	orgID := ""
	if org != nil {
		orgID = org.ID
	}

	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	loadCtx, cancel := context.WithTimeout(ctx, c.timeout)
	c.cancel = cancel
	c.snap = Snapshot{State: StateLoading, UserID: userID, OrgID: orgID}
	c.mu.Unlock()
	defer cancel()

	loadCtx, span := c.tracer.Start(loadCtx, "permission.Load", trace.WithAttributes(
		attribute.String("user_id", userID),
		attribute.String("org_id", orgID),
	))
	defer span.End()

	roles, err := c.roles.ActiveRoles(loadCtx, userID, orgID)
	var caps domain.CapabilitySet
	if err == nil {
		caps = Resolve(roles)
		if c.restrictor != nil && org != nil {
			restricted, rerr := c.restrictor.Restrict(loadCtx, org, userID, roles, caps)
			switch {
			case errors.Is(rerr, ErrFetchFailure):
				err = rerr
			case rerr != nil:
				c.log.Error("permission: capability policy failed",
					zap.String("org_id", orgID), zap.Error(rerr))
				span.RecordError(rerr)
			}
			caps = restricted
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		span.SetStatus(codes.Error, "superseded")
		return ErrSuperseded
	}
	c.cancel = nil
	if err != nil {
		if !errors.Is(err, ErrFetchFailure) {
			err = fmt.Errorf("%w: %w", ErrFetchFailure, err)
		}
		c.snap = Snapshot{
			State:  StateFailed,
			UserID: userID,
			OrgID:  orgID,
			Err:    err,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "role fetch failed")
		c.log.Error("permission: role load failed", zap.String("user_id", userID), zap.Error(err))
		return c.snap.Err
	}
	c.snap = Snapshot{
		State:        StateReady,
		UserID:       userID,
		OrgID:        orgID,
		Roles:        roles,
		Capabilities: caps,
	}
	span.SetAttributes(attribute.String("roles", roles.String()))
	return nil
}

// Clear cancels any load and resets to the idle, all-false state.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	c.snap = Snapshot{}
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
