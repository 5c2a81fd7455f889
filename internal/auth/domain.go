package auth

import "time"

// User represents a panel account.
type User struct {
	ID             int64
	Email          string
	PasswordHash   string
	EmailConfirmed bool
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
