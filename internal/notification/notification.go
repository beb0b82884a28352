// Package notification delivers per-user messages and admin broadcasts.
package notification

import (
	"context"
	"errors"
	"time"

	"gatewise.org/internal/pagination"
)

var (
	ErrNotFound     = errors.New("notification: not found")
	ErrInvalidInput = errors.New("notification: invalid input")
)

// Notification is one message addressed to a single user.
type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Topic     string     `json:"topic,omitempty"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Read reports whether the notification has been marked read.
func (n *Notification) Read() bool {
	return n != nil && n.ReadAt != nil
}

// Store describes notification persistence.
type Store interface {
	Create(ctx context.Context, ns []*Notification) error
	Find(ctx context.Context, id string) (*Notification, error)
	ListByUser(ctx context.Context, userID string, d pagination.Descriptor) ([]*Notification, int64, error)
	MarkRead(ctx context.Context, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) error
	CountUnread(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id string) error
	AllUserIDs(ctx context.Context) ([]string, error)
}
