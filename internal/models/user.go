package models

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a caller role.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Instructor is an account that uploads lectures and runs polls.
type Instructor struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InstructorPublic is Instructor without sensitive fields for API responses.
type InstructorPublic struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToPublic converts Instructor to InstructorPublic.
func (u *Instructor) ToPublic() InstructorPublic {
	return InstructorPublic{
		ID:        u.ID,
		Username:  u.Username,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}
