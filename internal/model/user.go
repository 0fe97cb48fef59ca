// Package model defines the entities stored by the API.
package model

import "fmt"

// Role is the closed set of user roles. It is parsed once at the store
// boundary so the rest of the code never compares free-form strings.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// ParseRole validates s against the known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleInstructor, RoleStudent:
		return r, nil
	}
	return "", fmt.Errorf("model: unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// User is a pre-registered account. Users are provisioned out of band
// (see cmd/seed) and only their avatar is ever mutated by the API.
//
// Sub is the identity provider's subject identifier; the bearer token's
// "sub" claim is matched against it to find the acting user.
type User struct {
	ID     int64  `json:"id"`
	Sub    string `json:"sub"`
	Role   Role   `json:"role"`
	Avatar string `json:"-"` // blob name, empty when no avatar is set
}

func (u User) HasAvatar() bool { return u.Avatar != "" }
