package models

import (
	"github.com/google/uuid"
)

// User is the actor a permission check or mutation is evaluated for.
// A nil *User is an anonymous actor.
type User struct {
	UserID uuid.UUID `json:"user_id"`
	Roles  []string  `json:"roles,omitempty"`
}

// Role constants for user roles within a project.
const (
	RoleAdmin = "admin"
	RoleData  = "data"
	RoleUser  = "user"
)

// ValidRoles contains all valid role values.
var ValidRoles = []string{RoleAdmin, RoleData, RoleUser}

// IsValidRole checks if the given role is valid.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user holds at least one of roles.
func (u *User) HasAnyRole(roles []string) bool {
	if u == nil {
		return false
	}
	for _, have := range u.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ID returns the user ID, or uuid.Nil for an anonymous actor.
func (u *User) ID() uuid.UUID {
	if u == nil {
		return uuid.Nil
	}
	return u.UserID
}
