package users

import (
	"errors"
	"time"
)

// Role enumerates account roles.
type Role string

const (
	RoleAdmin  Role = "Admin"
	RoleClient Role = "Client"
)

// Status enumerates account states.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// User represents a user account. PasswordHash never leaves the package
// boundary in responses.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	PasswordHash string    `json:"-"`
	RegisteredAt time.Time `json:"registered_at"`
}

// CreateUserInput describes an account registration.
type CreateUserInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     Role   `json:"role" validate:"required,oneof=Admin Client"`
}

// UpdateUserInput describes an account update. Password is optional.
type UpdateUserInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	Role     Role   `json:"role" validate:"required,oneof=Admin Client"`
	Status   Status `json:"status" validate:"required,oneof=Active Inactive"`
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrEmailTaken indicates another account already uses the email.
	ErrEmailTaken = errors.New("users: email already registered")
)
