// Package activity keeps an append-only log of user-visible actions. Entries
// are persisted for listing through the API and echoed to the structured log.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gatewise.org/internal/pagination"
)

var (
	ErrNotFound     = errors.New("activity: not found")
	ErrInvalidInput = errors.New("activity: invalid input")
)

// Entry is one recorded action. Metadata is free-form JSON supplied by the
// recording call site (resource ids, old/new values, client info).
type Entry struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Event     string          `json:"event"`
	RequestID string          `json:"requestId,omitempty"`
	IPAddress string          `json:"ipAddress,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Store describes activity persistence. The log is append-only: entries are
// never updated and only pruned by retention jobs outside this service.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	ListByUser(ctx context.Context, userID string, d pagination.Descriptor) ([]*Entry, int64, error)
	List(ctx context.Context, d pagination.Descriptor) ([]*Entry, int64, error)
}
