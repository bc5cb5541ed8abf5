package domain

import "time"

// Role enumerates operator roles. Roles form a total order, see Rank.
type Role string

const (
	RoleAuditor       Role = "auditor"
	RoleSecurityStaff Role = "security_staff"
	RoleAdmin         Role = "admin"
)

var roleRank = map[Role]int{
	RoleAuditor:       1,
	RoleSecurityStaff: 2,
	RoleAdmin:         3,
}

// Rank returns the position of the role in the hierarchy; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRank[r]
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Satisfies reports whether r is at or above the required role.
func (r Role) Satisfies(required Role) bool {
	return r.Valid() && r.Rank() >= required.Rank()
}

// User is an operator account that authenticates against the service.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	IsActive     bool
	TwoFAEnabled bool
	TwoFASecret  *string
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	UserID string
	Role   Role
}
