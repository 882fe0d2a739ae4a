package auth

import "time"

// Role names recognised by the portal.
const (
	RoleSuperAdmin = "superadmin"
	RoleAdmin      = "admin"
	RoleTeacher    = "teacher"
	RoleParent     = "parent"
	RoleStudent    = "student"
)

// User model.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
	BranchID     int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
