// Package apikey manages API keys. A key pairs a public lookup identifier
// with a secret; only a bcrypt hash of the secret is persisted, and the
// plaintext secret is shown exactly once at creation or reset.
package apikey

import (
	"context"
	"errors"
	"time"

	"gatewise.org/internal/pagination"
)

// Type partitions keys by the route areas they may call.
type Type string

const (
	TypeDefault Type = "default"
	TypeSystem  Type = "system"
)

// Valid reports whether the type is known.
func (t Type) Valid() bool {
	return t == TypeDefault || t == TypeSystem
}

var (
	ErrNotFound      = errors.New("apikey: not found")
	ErrInactive      = errors.New("apikey: inactive")
	ErrExpired       = errors.New("apikey: expired")
	ErrInvalidSecret = errors.New("apikey: invalid secret")
	ErrTypeForbidden = errors.New("apikey: type forbidden")
	ErrInvalidInput  = errors.New("apikey: invalid input")
)

// APIKey is the stored form of a key. Hash is never serialized.
type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Type      Type       `json:"type"`
	Key       string     `json:"key"`
	Hash      string     `json:"-"`
	IsActive  bool       `json:"isActive"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Store describes API key persistence.
type Store interface {
	Create(ctx context.Context, k *APIKey) error
	FindByID(ctx context.Context, id string) (*APIKey, error)
	FindByKey(ctx context.Context, key string) (*APIKey, error)
	List(ctx context.Context, d pagination.Descriptor) ([]*APIKey, int64, error)
	UpdateName(ctx context.Context, id, name string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	UpdateHash(ctx context.Context, id, hash string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
