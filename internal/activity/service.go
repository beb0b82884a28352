package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gatewise.org/internal/ids"
	"gatewise.org/internal/obs"
	"gatewise.org/internal/pagination"
)

type ctxKey struct{}

// WithRequestID attaches the request identifier so recorded entries can be
// correlated with the request log.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Service records and lists activity entries.
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

// NewService constructs the activity service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record appends one entry and echoes it to the structured log. The log echo
// never fails the recording.
func (s *Service) Record(ctx context.Context, userID, event, ip string, metadata map[string]any) (*Entry, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return nil, fmt.Errorf("%w: event is required", ErrInvalidInput)
	}

	var raw json.RawMessage
	if len(metadata) > 0 {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: metadata not serializable", ErrInvalidInput)
		}
		raw = data
	}
	e := &Entry{
		ID:        ids.New(),
		UserID:    userID,
		Event:     event,
		RequestID: requestIDFromContext(ctx),
		IPAddress: strings.TrimSpace(ip),
		Metadata:  raw,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Append(ctx, e); err != nil {
		return nil, err
	}

	logEntry := map[string]any{
		"ts":      e.CreatedAt.Format(time.RFC3339Nano),
		"type":    "activity",
		"event":   e.Event,
		"user_id": e.UserID,
	}
	if e.RequestID != "" {
		logEntry["request_id"] = e.RequestID
	}
	obs.LogRequest(logEntry)
	return e, nil
}

// ListByUser returns one user's entries, newest first by default.
func (s *Service) ListByUser(ctx context.Context, userID string, d pagination.Descriptor) ([]*Entry, int64, error) {
	return s.store.ListByUser(ctx, userID, d)
}

// List returns entries across all users for admin review.
func (s *Service) List(ctx context.Context, d pagination.Descriptor) ([]*Entry, int64, error) {
	return s.store.List(ctx, d)
}
