// Package rbac manages users, roles and their abilities.
package rbac

import (
	"context"
	"errors"
	"time"

	"gatewise.org/internal/auth"
	"gatewise.org/internal/pagination"
)

var (
	ErrNotFound     = errors.New("rbac: not found")
	ErrConflict     = errors.New("rbac: resource conflict")
	ErrInvalidInput = errors.New("rbac: invalid input")
	ErrUnauthorized = errors.New("rbac: unauthorized")
)

const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
)

// User is a human account. PasswordHash never leaves the service layer.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	RoleID       string    `json:"roleId"`
	Status       string    `json:"status"`
	Country      string    `json:"country"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Role groups abilities under a role tier.
type Role struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Type      auth.RoleType  `json:"type"`
	Abilities []auth.Ability `json:"abilities"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// UserUpdate carries optional field updates; nil means unchanged.
type UserUpdate struct {
	Email    *string
	Name     *string
	Password *string
	RoleID   *string
	Status   *string
	Country  *string
}

// Store describes the persistence operations the rbac service needs.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, d pagination.Descriptor) ([]*User, int64, error)
	UpdateUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error

	CreateRole(ctx context.Context, r *Role) error
	FindRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context, d pagination.Descriptor) ([]*Role, int64, error)
	UpdateRole(ctx context.Context, r *Role) error
	SetRoleAbilities(ctx context.Context, roleID string, abilities []auth.Ability) error
	DeleteRole(ctx context.Context, id string) error
}
