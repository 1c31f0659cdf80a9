package models

import (
	"time"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleAdmin   UserRole = "admin"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role may author tests and evaluate submissions.
func (r UserRole) IsStaff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// User is owned by the identity service; this service only reads it.
type User struct {
	ID    string   `json:"id" gorm:"primaryKey;size:255"`
	Name  string   `json:"name" gorm:"not null;size:100"`
	Email string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	Role  UserRole `json:"role" gorm:"size:20;index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Caller is the authenticated principal behind a request.
type Caller struct {
	UserID string
	Role   UserRole
}

func (c Caller) IsStudent() bool {
	return c.Role == RoleStudent
}

func (c Caller) IsStaff() bool {
	return c.Role.IsStaff()
}
