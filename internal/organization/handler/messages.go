package handler

import "time"

// Organization is one entry of the caller's active memberships.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id,omitempty"`
	JoinedAt    time.Time `json:"joined_at,omitzero"`
}

type ListOrganizationsRequest struct{}

type ListOrganizationsResponse struct {
	Organizations         []Organization `json:"organizations"`
	CurrentOrganizationID string         `json:"current_organization_id,omitempty"`
	HasNoOrganizations    bool           `json:"has_no_organizations"`
}

type SwitchOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

type SwitchOrganizationResponse struct {
	CurrentOrganizationID string `json:"current_organization_id"`
}

type CreateOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CreateOrganizationResponse struct {
	Organization          Organization `json:"organization"`
	CurrentOrganizationID string       `json:"current_organization_id,omitempty"`
}

type GetCapabilitiesRequest struct{}

type GetCapabilitiesResponse struct {
	OrganizationID string          `json:"organization_id"`
	Roles          []string        `json:"roles"`
	Capabilities   map[string]bool `json:"capabilities"`
}

type CheckCapabilityRequest struct {
	Capability string `json:"capability"`
}

// CheckCapabilityResponse reports the guard decision without failing the call.
type CheckCapabilityResponse struct {
	Allowed  bool   `json:"allowed"`
	Stage    string `json:"stage"`
	Reason   string `json:"reason,omitempty"`
	Message  string `json:"message,omitempty"`
	Redirect string `json:"redirect,omitempty"`
}
