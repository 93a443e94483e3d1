package domain

// Role is an admin API role carried in access tokens.
type Role string

// Roles, lowest to highest.
const (
	RoleUser     Role = "user"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleUser:     1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// HasPermission reports whether r is at least minRole.
func (r Role) HasPermission(minRole Role) bool {
	return roleRank[r] >= roleRank[minRole] && roleRank[r] > 0
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}
