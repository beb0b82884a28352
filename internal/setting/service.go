package setting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gatewise.org/internal/cache"
	"gatewise.org/internal/pagination"
)

// Service manages settings with a read-through cache. Lookups take a bypass
// flag so callers that gate security decisions on a flag can force a
// source-of-truth read.
type Service struct {
	store    Store
	cache    *cache.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithCache enables the read-through cache with the given TTL.
func WithCache(c *cache.Client, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the setting service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns one setting. With bypass set the cache is skipped and the
// fresh value replaces whatever was cached.
func (s *Service) Get(ctx context.Context, key string, bypass bool) (*Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	if s.cache != nil && !bypass {
		if v, ok := s.cache.Get(cacheKey(key)); ok {
			if st, ok := v.(*Setting); ok {
				return st, nil
			}
		}
	}
	st, err := s.store.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(cacheKey(key), st, s.cacheTTL)
	}
	return st, nil
}

// FeatureEnabled reports whether the flag behind key is on. A missing
// setting counts as disabled rather than an error so rollouts can gate on
// flags that do not exist yet.
func (s *Service) FeatureEnabled(ctx context.Context, key string, bypass bool) (bool, error) {
	st, err := s.Get(ctx, key, bypass)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return st.Enabled(), nil
}

// Set creates or replaces a setting and drops the cached copy.
func (s *Service) Set(ctx context.Context, key string, value json.RawMessage, description string) (*Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	if len(value) == 0 || !json.Valid(value) {
		return nil, fmt.Errorf("%w: value must be valid JSON", ErrInvalidInput)
	}
	now := s.now().UTC()
	st := &Setting{
		Key:         key,
		Value:       value,
		Description: strings.TrimSpace(description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Upsert(ctx, st); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Invalidate(cacheKey(key))
	}
	return st, nil
}

// List returns settings with offset pagination.
func (s *Service) List(ctx context.Context, d pagination.Descriptor) ([]*Setting, int64, error) {
	return s.store.List(ctx, d)
}

// Delete removes a setting and drops the cached copy.
func (s *Service) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidInput)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(cacheKey(key))
	}
	return nil
}

func cacheKey(key string) string {
	return "setting:" + key
}
