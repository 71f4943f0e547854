package access

import "orgscope/internal/permission/domain"

// Level selects how much of the guard chain a Requirement runs.
type Level int

const (
	// LevelAuth only requires an authenticated user.
	LevelAuth Level = iota
	// LevelTenant also requires a current organization.
	LevelTenant
	// LevelCapability also requires Requirement.Capability.
	LevelCapability
)

// Requirement describes what an operation needs from the session.
type Requirement struct {
	Level      Level
	Capability domain.Capability
	// Fallback is the denial message for a missing capability.
	Fallback string
}

// Authenticated requires a signed-in user only.
func Authenticated() Requirement { return Requirement{Level: LevelAuth} }

// Tenant requires a signed-in user with a current organization.
func Tenant() Requirement { return Requirement{Level: LevelTenant} }

// Capability requires the full chain ending in capability c.
func Capability(c domain.Capability, fallback string) Requirement {
	return Requirement{Level: LevelCapability, Capability: c, Fallback: fallback}
}
