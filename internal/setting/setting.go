// Package setting stores typed configuration values and feature flags.
// Values are JSON; a feature flag is a value whose object form carries an
// "enabled" boolean (a bare JSON boolean is also accepted).
package setting

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gatewise.org/internal/pagination"
)

var (
	ErrNotFound     = errors.New("setting: not found")
	ErrInvalidInput = errors.New("setting: invalid input")
)

// Setting is one configuration entry keyed by a unique name.
type Setting struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Enabled interprets the value as a feature flag. Anything that is neither
// a bare true nor an object with "enabled": true counts as disabled.
func (s *Setting) Enabled() bool {
	if s == nil || len(s.Value) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(s.Value, &b); err == nil {
		return b
	}
	var obj struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(s.Value, &obj); err == nil {
		return obj.Enabled
	}
	return false
}

// Store describes setting persistence.
type Store interface {
	Upsert(ctx context.Context, s *Setting) error
	Find(ctx context.Context, key string) (*Setting, error)
	List(ctx context.Context, d pagination.Descriptor) ([]*Setting, int64, error)
	Delete(ctx context.Context, key string) error
}
