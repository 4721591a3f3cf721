package domain

import "time"

// User represents a registered marketplace account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}

// UserPatch carries the profile fields a caller explicitly supplied.
// Nil fields are left untouched by the store.
type UserPatch struct {
	PasswordHash *string
	FirstName    *string
	LastName     *string
	UpdatedAt    time.Time
}
