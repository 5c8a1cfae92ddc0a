package identity

import "time"

// User statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// Roles.
const (
	RoleUser       = "user"
	RoleSuperAdmin = "super_admin"
)

// User represents a registered wallet owner.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	Status       string
	PasswordHash []byte
	CreatedAt    time.Time
}

// IsActive reports whether the user may move money.
func (u User) IsActive() bool {
	return u.Status == StatusActive
}

// AccountAge returns how long ago the account was created.
func (u User) AccountAge(now time.Time) time.Duration {
	return now.Sub(u.CreatedAt)
}

// LoginAttempt is one recorded login, successful or not.
type LoginAttempt struct {
	ID        string
	Email     string
	IP        string
	Success   bool
	Reason    string
	CreatedAt time.Time
}
