package auth

import (
	"context"
	"errors"
	"time"

	"rfphub.org/internal/policy"
)

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

/// User is a human or service account. Role assignment is 1:1.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role couples a name with its permission policy document. Immutable except
// through explicit administrative update.
type Role struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Policy      policy.Policy `json:"policy"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

var (
	ErrNotFound = errors.New("auth: not found")
	ErrConflict = errors.New("auth: already exists")
)

// UserStore manages accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	FindUserByEmail(ctx context.Context, email string) (User, error)
}

// RoleStore manages roles and their policy documents.
type RoleStore interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, name string) (Role, error)
	SetRolePolicy(ctx context.Context, name string, p policy.Policy, at time.Time) error
}
