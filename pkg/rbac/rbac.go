// Package rbac implements the three-role authorization model. Checks are
// pure and side-effect-free; every mutating service operation calls its
// guard before validating input or touching storage.
package rbac

import "github.com/platinummonkey/workbench/pkg/errs"

// Role is an organization-scoped role
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// RequireRole fails with a forbidden error when role is not in allowed.
func RequireRole(role Role, allowed ...Role) error {
	for _, a := range allowed {
		if role == a {
			return nil
		}
	}
	return errs.ErrForbidden
}

// RequireAdmin allows OWNER and ADMIN.
func RequireAdmin(role Role) error {
	return RequireRole(role, RoleOwner, RoleAdmin)
}

// RequireOwner allows OWNER only.
func RequireOwner(role Role) error {
	return RequireRole(role, RoleOwner)
}
