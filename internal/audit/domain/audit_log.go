package domain

import "time"

// Actions recorded by the organization and access layers.
const (
	ActionOrganizationCreated        = "organization_created"
	ActionOrganizationSwitched       = "organization_switched"
	ActionOrganizationSwitchRejected = "organization_switch_rejected"
	ActionAccessDenied               = "access_denied"
	ActionRPC                        = "rpc"
)

// Resources referenced by audit entries.
const (
	ResourceOrganization = "organization"
	ResourceCapability   = "capability"
	ResourceRPC          = "rpc"
)

// AuditLog represents an audit event. Metadata is a free-form JSON document or "".
type AuditLog struct {
	ID        string
	OrgID     string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
