package domain

import "time"

// OperatorRole is the permission level carried in an operator token.
type OperatorRole string

const (
	RoleViewer     OperatorRole = "viewer"
	RoleDispatcher OperatorRole = "dispatcher"
	RoleAdmin      OperatorRole = "admin"
)

var roleRank = map[OperatorRole]int{
	RoleViewer:     1,
	RoleDispatcher: 2,
	RoleAdmin:      3,
}

// Valid reports whether r is a known role.
func (r OperatorRole) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants at least the permissions of required.
func (r OperatorRole) AtLeast(required OperatorRole) bool {
	return r.Valid() && roleRank[r] >= roleRank[required]
}

// Token describes an issued operator token.
type Token struct {
	Subject   string
	Role      OperatorRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
