package domain

// Actor is the verified identity of the caller. It is built from a validated
// token and passed explicitly into every lifecycle operation.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
