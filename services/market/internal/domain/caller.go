package domain

import "github.com/sakashimaa/book-market/pkg/auth"

// Caller is the authenticated identity behind a request.
type Caller struct {
	UserID int64
	Email  string
	Role   auth.Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == auth.RoleAdmin
}

func (c Caller) IsSeller() bool {
	return c.Role == auth.RoleSeller
}
