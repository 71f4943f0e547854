package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SettingCapabilityPolicy is the settings key holding an optional Rego policy that restricts capabilities in the org.
const SettingCapabilityPolicy = "capability_policy"

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid organization")

// Org represents an organization/tenant.
type Org struct {
	ID          string
	Name        string
	Description string
	Settings    map[string]any
	OwnerID     string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if o.OwnerID == "" {
		return fmt.Errorf("%w: owner is required", ErrInvalid)
	}
	if o.Settings == nil {
		o.Settings = map[string]any{}
	}
	return nil
}

// CapabilityPolicy returns the Rego source stored under SettingCapabilityPolicy, or "".
func (o *Org) CapabilityPolicy() string {
	if o == nil || o.Settings == nil {
		return ""
	}
	s, _ := o.Settings[SettingCapabilityPolicy].(string)
	return strings.TrimSpace(s)
}
