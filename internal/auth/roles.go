package auth

import (
	"fmt"
	"strings"
)

// Role is a back-office user role.
type Role string

const (
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleCEO        Role = "CEO"
	RoleDeputyCEO  Role = "DEPUTY_CEO"
	RoleAdmin      Role = "ADMIN"
	RoleUser       Role = "USER"
	RoleTeller     Role = "TELLER"
	RoleFinance    Role = "FINANCE"
)

// AllRoles lists every known role, most senior first.
var AllRoles = []Role{RoleSuperAdmin, RoleCEO, RoleDeputyCEO, RoleAdmin, RoleFinance, RoleTeller, RoleUser}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// RoleSet is an immutable set of roles.
type RoleSet struct {
	roles []Role
}

// NewRoleSet builds a set from the given roles; duplicates are dropped.
func NewRoleSet(roles ...Role) RoleSet {
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if !containsRole(out, r) {
			out = append(out, r)
		}
	}
	return RoleSet{roles: out}
}

// Has reports membership.
func (s RoleSet) Has(r Role) bool {
	return containsRole(s.roles, r)
}

// Roles returns a copy of the members in insertion order.
func (s RoleSet) Roles() []Role {
	out := make([]Role, len(s.roles))
	copy(out, s.roles)
	return out
}

// Strings returns member names, handy for SQL array parameters and logs.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s.roles))
	for i, r := range s.roles {
		out[i] = string(r)
	}
	return out
}

func containsRole(roles []Role, r Role) bool {
	for _, existing := range roles {
		if existing == r {
			return true
		}
	}
	return false
}

// Capability role sets used by the rate approval workflow. The submission and
// escalation sets differ on purpose and must not be unified.
var (
	// RateDeciders may approve or reject a pending rate.
	RateDeciders = NewRoleSet(RoleSuperAdmin, RoleCEO, RoleDeputyCEO)
	// RateSubmissionRecipients receive the immediate SMS when an exchange rate is submitted.
	RateSubmissionRecipients = NewRoleSet(RoleSuperAdmin, RoleCEO)
	// RateEscalationRecipients receive the reminder when a rate stays pending.
	RateEscalationRecipients = NewRoleSet(RoleDeputyCEO, RoleSuperAdmin)
	// Operators may inspect scheduler and notification diagnostics.
	Operators = NewRoleSet(RoleSuperAdmin)
)
