// Package guard decides whether a protected operation may run for the current session.
//
// Three guards run in a fixed order: authentication, tenant, permission. Each one
// reports Loading, Deny or Allow; a Chain stops at the first guard that does not allow.
package guard

import "fmt"

// Stage identifies the guard that produced a decision.
type Stage int

const (
	StageAuth Stage = iota
	StageTenant
	StagePermission
)

func (s Stage) String() string {
	switch s {
	case StageAuth:
		return "auth"
	case StageTenant:
		return "tenant"
	case StagePermission:
		return "permission"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Outcome is the result of one guard.
type Outcome int

const (
	// OutcomeLoading means the data the guard needs is not available yet. Callers wait.
	OutcomeLoading Outcome = iota
	OutcomeDeny
	OutcomeAllow
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoading:
		return "loading"
	case OutcomeDeny:
		return "deny"
	case OutcomeAllow:
		return "allow"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Reason explains a denial.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonAuthRequired     Reason = "auth_required"
	ReasonNoOrganization   Reason = "no_organization"
	ReasonFetchFailure     Reason = "fetch_failure"
	ReasonPermissionDenied Reason = "permission_denied"
)

// DefaultDeniedMessage is shown when a permission guard has no fallback message.
const DefaultDeniedMessage = "insufficient permission"

// Decision is what a guard, or a whole chain, concluded.
type Decision struct {
	Stage   Stage
	Outcome Outcome
	Reason  Reason
	// Redirect is the destination for AuthRequired and NoOrganization denials.
	Redirect string
	// Message is the user-facing text of a permission denial.
	Message string
	// Err is the underlying load error of a FetchFailure denial.
	Err error
}

// Allowed reports whether the decision lets the operation run.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllow }

// Retryable reports whether re-evaluating after a refresh may change a denial.
func (d Decision) Retryable() bool { return d.Reason == ReasonFetchFailure }

func (d Decision) String() string {
	if d.Reason == ReasonNone {
		return d.Stage.String() + ": " + d.Outcome.String()
	}
	return d.Stage.String() + ": " + d.Outcome.String() + " (" + string(d.Reason) + ")"
}

func allow(s Stage) Decision   { return Decision{Stage: s, Outcome: OutcomeAllow} }
func loading(s Stage) Decision { return Decision{Stage: s, Outcome: OutcomeLoading} }
