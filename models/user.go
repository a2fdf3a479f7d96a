// Package models holds the domain types shared by every layer.
package models

import "time"

// UserRole is the platform-wide role assigned by the authentication service.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// User mirrors the account fields this service needs.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// IsPlatformAdmin reports whether the user may send broadcasts.
func (u *User) IsPlatformAdmin() bool {
	return u.Role == UserRoleAdmin
}
