package auth

import (
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of roles known to the system. Role strings arriving
// from tokens or request bodies are normalized through ParseRole; code past
// the boundary only ever compares Role values.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDoctor         Role = "doctor"
	RoleNurse          Role = "nurse"
	RoleBillingStaff   Role = "billing_staff"
	RoleInsuranceStaff Role = "insurance_staff"
	RoleReceptionist   Role = "receptionist"
	RolePatient        Role = "patient"
)

var knownRoles = map[Role]bool{
	RoleAdmin:          true,
	RoleDoctor:         true,
	RoleNurse:          true,
	RoleBillingStaff:   true,
	RoleInsuranceStaff: true,
	RoleReceptionist:   true,
	RolePatient:        true,
}

// ParseRole normalizes a free-form role string to a Role. Comparison is
// case-insensitive and tolerates dash/space separators ("Billing Staff",
// "billing-staff"). The second return is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, "-", "_")
	norm = strings.ReplaceAll(norm, " ", "_")
	r := Role(norm)
	return r, knownRoles[r]
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool { return knownRoles[r] }

func (r Role) String() string { return string(r) }

// Identity is the authenticated actor supplied by the upstream auth layer.
type Identity struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role Role      `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}
