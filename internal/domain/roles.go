// Package domain defines shared domain constants and types.
package domain

// Role classifies a user for command gating.
type Role string

const (
	// RoleOwner represents the statically configured bot owner.
	RoleOwner Role = "owner"
	// RoleAdmin represents users with the persisted admin flag set.
	RoleAdmin Role = "admin"
	// RoleUser represents a standard user with no elevated privileges.
	RoleUser Role = "user"
)

// IsElevated reports whether the role may use admin commands.
func (r Role) IsElevated() bool {
	return r == RoleOwner || r == RoleAdmin
}
