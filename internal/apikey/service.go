package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gatewise.org/internal/cache"
	"gatewise.org/internal/ids"
	"gatewise.org/internal/pagination"
)

const keyPrefix = "gw_"

// Service verifies and administers API keys. Lookups go through an explicit
// cache client; callers gating security-sensitive routes pass bypass=true to
// force a source-of-truth read.
type Service struct {
	store    Store
	cache    *cache.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithCache enables cached key lookups with the given TTL.
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

// NewService constructs the API key service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a new key and returns it with the one-time plaintext secret.
func (s *Service) Create(ctx context.Context, name string, typ Type, startDate, endDate *time.Time) (*APIKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if typ == "" {
		typ = TypeDefault
	}
	if !typ.Valid() {
		return nil, "", fmt.Errorf("%w: unsupported type %s", ErrInvalidInput, typ)
	}
	if startDate != nil && endDate != nil && endDate.Before(*startDate) {
		return nil, "", fmt.Errorf("%w: endDate precedes startDate", ErrInvalidInput)
	}
	secret, hash, err := newSecret()
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	k := &APIKey{
		ID:        ids.New(),
		Name:      name,
		Type:      typ,
		Key:       keyPrefix + strings.ToLower(ids.New()),
		Hash:      hash,
		IsActive:  true,
		StartDate: startDate,
		EndDate:   endDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, k); err != nil {
		return nil, "", err
	}
	return k, secret, nil
}

// Verify checks a raw "key:secret" credential against the store. Checks run
// in a fixed order: existence, active flag, validity window, secret hash,
// then allowed type.
func (s *Service) Verify(ctx context.Context, raw string, allowed []Type, bypassCache bool) (*APIKey, error) {
	key, secret, ok := splitCredential(raw)
	if !ok {
		return nil, ErrNotFound
	}
	k, err := s.lookup(ctx, key, bypassCache)
	if err != nil {
		return nil, err
	}
	if !k.IsActive {
		return nil, ErrInactive
	}
	now := s.now()
	if k.StartDate != nil && now.Before(*k.StartDate) {
		return nil, ErrExpired
	}
	if k.EndDate != nil && now.After(*k.EndDate) {
		return nil, ErrExpired
	}
	if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(secret)) != nil {
		return nil, ErrInvalidSecret
	}
	if len(allowed) > 0 {
		permitted := false
		for _, t := range allowed {
			if k.Type == t {
				permitted = true
				break
			}
		}
		if !permitted {
			return nil, ErrTypeForbidden
		}
	}
	return k, nil
}

// Get returns one key by id.
func (s *Service) Get(ctx context.Context, id string) (*APIKey, error) {
	return s.store.FindByID(ctx, id)
}

// List returns keys with offset pagination.
func (s *Service) List(ctx context.Context, d pagination.Descriptor) ([]*APIKey, int64, error) {
	return s.store.List(ctx, d)
}

// Rename updates the display name.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := s.store.UpdateName(ctx, id, name, s.now().UTC()); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// SetActive toggles the active flag.
func (s *Service) SetActive(ctx context.Context, id string, active bool) error {
	if err := s.store.SetActive(ctx, id, active, s.now().UTC()); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// ResetSecret replaces the secret and returns the new plaintext once.
func (s *Service) ResetSecret(ctx context.Context, id string) (string, error) {
	secret, hash, err := newSecret()
	if err != nil {
		return "", err
	}
	if err := s.store.UpdateHash(ctx, id, hash, s.now().UTC()); err != nil {
		return "", err
	}
	s.invalidate(ctx, id)
	return secret, nil
}

// Delete removes a key.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) lookup(ctx context.Context, key string, bypass bool) (*APIKey, error) {
	cacheKey := "apikey:" + key
	if s.cache != nil && !bypass {
		if v, ok := s.cache.Get(cacheKey); ok {
			if k, ok := v.(*APIKey); ok {
				return k, nil
			}
		}
	}
	k, err := s.store.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(cacheKey, k, s.cacheTTL)
	}
	return k, nil
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if k, err := s.store.FindByID(ctx, id); err == nil {
		s.cache.Invalidate("apikey:" + k.Key)
	}
}

func newSecret() (secret, hash string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", "", err
	}
	return secret, string(h), nil
}

func splitCredential(raw string) (key, secret string, ok bool) {
	raw = strings.TrimSpace(raw)
	idx := strings.IndexByte(raw, ':')
	if idx <= 0 || idx == len(raw)-1 {
		return "", "", false
	}
	return raw[:idx], raw[idx+1:], true
}
