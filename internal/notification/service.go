package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gatewise.org/internal/ids"
	"gatewise.org/internal/pagination"
)

// Service manages notification delivery and read state.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the notification service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send delivers one notification to one user.
func (s *Service) Send(ctx context.Context, userID, title, body, topic string) (*Notification, error) {
	n, err := s.build(userID, title, body, topic)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, []*Notification{n}); err != nil {
		return nil, err
	}
	return n, nil
}

// Broadcast delivers the same message to every user. Each recipient gets
// their own row so per-user read state stays independent.
func (s *Service) Broadcast(ctx context.Context, title, body, topic string) (int, error) {
	if _, err := s.build("broadcast", title, body, topic); err != nil {
		return 0, err
	}
	userIDs, err := s.store.AllUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	batch := make([]*Notification, 0, len(userIDs))
	for _, userID := range userIDs {
		n, err := s.build(userID, title, body, topic)
		if err != nil {
			return 0, err
		}
		batch = append(batch, n)
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := s.store.Create(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// List returns a user's notifications. Listing supports cursor pagination so
// clients can page a fast-growing inbox without drift.
func (s *Service) List(ctx context.Context, userID string, d pagination.Descriptor) ([]*Notification, int64, error) {
	return s.store.ListByUser(ctx, userID, d)
}

// Unread returns the user's unread count.
func (s *Service) Unread(ctx context.Context, userID string) (int64, error) {
	return s.store.CountUnread(ctx, userID)
}

// MarkRead marks one of the user's notifications read. Marking a foreign
// notification reads as not found.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	n, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return ErrNotFound
	}
	if n.Read() {
		return nil
	}
	return s.store.MarkRead(ctx, id, s.now().UTC())
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.store.MarkAllRead(ctx, userID, s.now().UTC())
}

// Delete removes one of the user's notifications.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	n, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	if n.UserID != userID {
		return ErrNotFound
	}
	return s.store.Delete(ctx, id)
}

func (s *Service) build(userID, title, body, topic string) (*Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	return &Notification{
		ID:        ids.New(),
		UserID:    userID,
		Title:     title,
		Body:      strings.TrimSpace(body),
		Topic:     strings.TrimSpace(topic),
		CreatedAt: s.now().UTC(),
	}, nil
}
