// Package repository loads active role assignments for a user.
package repository

import (
	"context"
	"errors"
	"fmt"

	"orgscope/internal/permission/domain"
)

// Scope decides whether role assignments are global to the user or bound to an organization.
type Scope string

const (
	// ScopeGlobal ignores the organization: every active assignment of the user applies.
	ScopeGlobal Scope = "global"
	// ScopeTenant applies assignments bound to the current organization plus unbound ones.
	ScopeTenant Scope = "tenant"
)

// ParseScope returns the scope for s; empty means ScopeGlobal.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeTenant:
		return ScopeTenant, nil
	default:
		return "", fmt.Errorf("role scope must be %q or %q, got %q", ScopeGlobal, ScopeTenant, s)
	}
}

// Repository returns the set of active roles held by a user.
type Repository interface {
	// ActiveRoles returns the user's active roles. orgID is only consulted by tenant-scoped stores.
	ActiveRoles(ctx context.Context, userID, orgID string) (domain.RoleSet, error)
}

// Granter stores role assignments.
type Granter interface {
	Grant(ctx context.Context, a *domain.RoleAssignment) error
}

// ErrReadOnly is returned by Grant when the underlying store cannot write assignments.
var ErrReadOnly = errors.New("role store is read-only")
