package domain

import "strings"

// Capability names one boolean flag of a capability set.
type Capability uint8

// Capabilities, grouped by business module. The order is part of the
// CapabilitySet layout; append new flags before capabilityCount.
const (
	CanViewProducts Capability = iota
	CanCreateProducts
	CanEditProducts
	CanDeleteProducts

	CanViewInventory
	CanEditInventory

	CanViewOrders
	CanCreateOrders
	CanEditOrders
	CanDeleteOrders

	CanViewPurchases
	CanCreatePurchases
	CanEditPurchases

	CanViewShipping
	CanCreateShipping
	CanEditShipping

	CanViewCustomers
	CanCreateCustomers
	CanEditCustomers

	CanViewFactories
	CanCreateFactories
	CanEditFactories

	CanViewUsers
	CanCreateUsers
	CanEditUsers

	CanManagePermissions

	CanViewSystemSettings
	CanEditSystemSettings

	capabilityCount
)

// CapabilityCount is the number of flags in every CapabilitySet.
const CapabilityCount = int(capabilityCount)

var capabilityNames = [capabilityCount]string{
	CanViewProducts:       "canViewProducts",
	CanCreateProducts:     "canCreateProducts",
	CanEditProducts:       "canEditProducts",
	CanDeleteProducts:     "canDeleteProducts",
	CanViewInventory:      "canViewInventory",
	CanEditInventory:      "canEditInventory",
	CanViewOrders:         "canViewOrders",
	CanCreateOrders:       "canCreateOrders",
	CanEditOrders:         "canEditOrders",
	CanDeleteOrders:       "canDeleteOrders",
	CanViewPurchases:      "canViewPurchases",
	CanCreatePurchases:    "canCreatePurchases",
	CanEditPurchases:      "canEditPurchases",
	CanViewShipping:       "canViewShipping",
	CanCreateShipping:     "canCreateShipping",
	CanEditShipping:       "canEditShipping",
	CanViewCustomers:      "canViewCustomers",
	CanCreateCustomers:    "canCreateCustomers",
	CanEditCustomers:      "canEditCustomers",
	CanViewFactories:      "canViewFactories",
	CanCreateFactories:    "canCreateFactories",
	CanEditFactories:      "canEditFactories",
	CanViewUsers:          "canViewUsers",
	CanCreateUsers:        "canCreateUsers",
	CanEditUsers:          "canEditUsers",
	CanManagePermissions:  "canManagePermissions",
	CanViewSystemSettings: "canViewSystemSettings",
	CanEditSystemSettings: "canEditSystemSettings",
}

// String returns the flag name (e.g. "canViewOrders").
func (c Capability) String() string {
	if !c.Valid() {
		return "unknown"
	}
	return capabilityNames[c]
}

// Valid reports whether c is one of the defined capabilities.
func (c Capability) Valid() bool {
	return c < capabilityCount
}

// ParseCapability returns the capability for a flag name. Matching is case-insensitive.
func ParseCapability(name string) (Capability, bool) {
	name = strings.TrimSpace(name)
	for i, n := range capabilityNames {
		if strings.EqualFold(n, name) {
			return Capability(i), true
		}
	}
	return 0, false
}

// AllCapabilities returns every capability in layout order.
func AllCapabilities() []Capability {
	out := make([]Capability, capabilityCount)
	for i := range out {
		out[i] = Capability(i)
	}
	return out
}

// CapabilitySet is a fully defined set of capability flags. The zero value denies everything.
type CapabilitySet [capabilityCount]bool

// Has reports whether flag c is set. Unknown capabilities are never set.
func (s CapabilitySet) Has(c Capability) bool {
	if !c.Valid() {
		return false
	}
	return s[c]
}

// With returns a copy of s with the given flags set.
func (s CapabilitySet) With(caps ...Capability) CapabilitySet {
	for _, c := range caps {
		if c.Valid() {
			s[c] = true
		}
	}
	return s
}

// Without returns a copy of s with the given flags cleared.
func (s CapabilitySet) Without(caps ...Capability) CapabilitySet {
	for _, c := range caps {
		if c.Valid() {
			s[c] = false
		}
	}
	return s
}

// Union returns the per-flag OR of s and o.
func (s CapabilitySet) Union(o CapabilitySet) CapabilitySet {
	for i := range s {
		s[i] = s[i] || o[i]
	}
	return s
}

// Granted returns the set flags in layout order.
func (s CapabilitySet) Granted() []Capability {
	var out []Capability
	for i, v := range s {
		if v {
			out = append(out, Capability(i))
		}
	}
	return out
}

// Map returns the set keyed by flag name, with every flag present.
func (s CapabilitySet) Map() map[string]bool {
	out := make(map[string]bool, capabilityCount)
	for i, v := range s {
		out[capabilityNames[i]] = v
	}
	return out
}

// FullAccess returns a set with every flag granted.
func FullAccess() CapabilitySet {
	var s CapabilitySet
	for i := range s {
		s[i] = true
	}
	return s
}
