package guard

import (
	"context"

	"orgscope/internal/identity"
	"orgscope/internal/orgcontext"
	"orgscope/internal/permission"
	"orgscope/internal/permission/domain"
)

// Default redirect targets.
const (
	DefaultLoginPath     = "/login"
	DefaultOrgCreatePath = "/organizations/new"
)

// Guard evaluates one stage of the access chain.
type Guard interface {
	Stage() Stage
	Evaluate(ctx context.Context) Decision
}

// AuthSource exposes authentication state.
type AuthSource interface {
	Snapshot() identity.Snapshot
}

// TenantSource exposes organization state.
type TenantSource interface {
	Snapshot() orgcontext.Snapshot
}

// PermissionSource exposes role data.
type PermissionSource interface {
	Snapshot() permission.Snapshot
}

// AuthGuard allows authenticated sessions and sends the rest to LoginPath.
type AuthGuard struct {
	Source    AuthSource
	LoginPath string
}

func (g AuthGuard) Stage() Stage { return StageAuth }

func (g AuthGuard) Evaluate(context.Context) Decision {
	snap := g.Source.Snapshot()
	switch snap.State {
	case identity.StateAuthenticated:
		return allow(StageAuth)
	case identity.StateLoading:
		return loading(StageAuth)
	default:
		return Decision{
			Stage:    StageAuth,
			Outcome:  OutcomeDeny,
			Reason:   ReasonAuthRequired,
			Redirect: orDefault(g.LoginPath, DefaultLoginPath),
			Err:      snap.Err,
		}
	}
}

// TenantGuard allows sessions with a current organization. Users without any
// membership are sent to CreatePath; a failed membership load is reported as a
// retryable FetchFailure, never as "no organization".
type TenantGuard struct {
	Source     TenantSource
	CreatePath string
}

func (g TenantGuard) Stage() Stage { return StageTenant }

func (g TenantGuard) Evaluate(context.Context) Decision {
	snap := g.Source.Snapshot()
	switch snap.State {
	case orgcontext.StateFailed:
		return Decision{Stage: StageTenant, Outcome: OutcomeDeny, Reason: ReasonFetchFailure, Err: snap.Err}
	case orgcontext.StateReady:
		if snap.HasNoOrganizations {
			return Decision{
				Stage:    StageTenant,
				Outcome:  OutcomeDeny,
				Reason:   ReasonNoOrganization,
				Redirect: orDefault(g.CreatePath, DefaultOrgCreatePath),
			}
		}
		if snap.Current == nil {
			// selection for a non-empty list is still being derived
			return loading(StageTenant)
		}
		return allow(StageTenant)
	default:
		return loading(StageTenant)
	}
}

// PermissionGuard allows sessions whose effective capabilities include Capability.
type PermissionGuard struct {
	Source     PermissionSource
	Capability domain.Capability
	// Fallback replaces DefaultDeniedMessage in denials.
	Fallback string
}

func (g PermissionGuard) Stage() Stage { return StagePermission }

func (g PermissionGuard) Evaluate(context.Context) Decision {
	snap := g.Source.Snapshot()
	switch snap.State {
	case permission.StateFailed:
		return Decision{Stage: StagePermission, Outcome: OutcomeDeny, Reason: ReasonFetchFailure, Err: snap.Err}
	case permission.StateReady:
		if snap.Capabilities.Has(g.Capability) {
			return allow(StagePermission)
		}
		return Decision{
			Stage:   StagePermission,
			Outcome: OutcomeDeny,
			Reason:  ReasonPermissionDenied,
			Message: orDefault(g.Fallback, DefaultDeniedMessage),
		}
	default:
		return loading(StagePermission)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
