package domain

import (
	"context"
	"time"
)

// Role codes recognized by the API.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// User represents a registered member. Only the fields the notifier needs are loaded.
// swagger:model User
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns "Name LastName".
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.Name
	}
	return u.Name + " " + u.LastName
}

// Identity is the authenticated caller as supplied by the identity provider.
type Identity struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// TokenVerifier verifies a token and returns the authenticated identity.
type TokenVerifier interface {
	Verify(token string) (Identity, error)
}

// UserRepository defines read access to user storage.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
}
