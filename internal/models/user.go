package models

import (
	"time"
)

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User represents a user in the system.
type User struct {
	Base         `bson:",inline"`
	Name         string     `bson:"name" json:"name"`
	Email        string     `bson:"email" json:"email"`
	PasswordHash string     `bson:"password" json:"-"` // Store hash, not plaintext
	Phone        string     `bson:"phone,omitempty" json:"phone,omitempty"`
	Role         Role       `bson:"role" json:"role"`
	IsActive     bool       `bson:"isActive" json:"isActive"`
	LastLoginAt  *time.Time `bson:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Actor returns the principal u acts as.
func (u *User) Actor() Actor {
	return Actor{UserID: u.ID, Email: u.Email, Role: u.Role}
}
