package domain

// Role enumerates caller roles resolved by the identity provider.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

// IsStaff reports whether the role may act on any report or ticket.
func (r Role) IsStaff() bool {
	return r == RoleStaff || r == RoleAdmin
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller. The core trusts it as given.
type Principal struct {
	ID   string
	Name string
	Role Role
}
