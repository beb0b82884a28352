package termpolicy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gatewise.org/internal/ids"
	"gatewise.org/internal/pagination"
)

// Service manages policy drafting, publication and user acceptance.
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

// NewService constructs the termpolicy service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Draft creates an unpublished policy with the next version number for its
// (type, country) pair.
func (s *Service) Draft(ctx context.Context, policyType, country, title, body string) (*Policy, error) {
	policyType = strings.TrimSpace(strings.ToLower(policyType))
	switch policyType {
	case TypeTerms, TypePrivacy, TypeCookie:
	default:
		return nil, fmt.Errorf("%w: unsupported policy type %q", ErrInvalidInput, policyType)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidInput)
	}
	country = strings.ToUpper(strings.TrimSpace(country))

	max, err := s.store.MaxVersion(ctx, policyType, country)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p := &Policy{
		ID:        ids.New(),
		Type:      policyType,
		Country:   country,
		Version:   max + 1,
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePolicy(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Publish makes a draft the live version of its type. Publishing is
// idempotent for an already-published policy.
func (s *Service) Publish(ctx context.Context, id string) (*Policy, error) {
	p, err := s.store.FindPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Published() {
		return p, nil
	}
	at := s.now().UTC()
	if err := s.store.Publish(ctx, id, at); err != nil {
		return nil, err
	}
	p.PublishedAt = &at
	p.UpdatedAt = at
	return p, nil
}

// Get returns one policy.
func (s *Service) Get(ctx context.Context, id string) (*Policy, error) {
	return s.store.FindPolicy(ctx, id)
}

// Latest returns the latest published policy for a type and country. When no
// country-specific version exists the global one (empty country) applies.
func (s *Service) Latest(ctx context.Context, policyType, country string) (*Policy, error) {
	policyType = strings.TrimSpace(strings.ToLower(policyType))
	country = strings.ToUpper(strings.TrimSpace(country))
	p, err := s.store.LatestPublished(ctx, policyType, country)
	if err == ErrNotFound && country != "" {
		return s.store.LatestPublished(ctx, policyType, "")
	}
	return p, err
}

// List returns policies with offset pagination.
func (s *Service) List(ctx context.Context, d pagination.Descriptor) ([]*Policy, int64, error) {
	return s.store.ListPolicies(ctx, d)
}

// Delete removes an unpublished policy. Published versions are retained so
// past acceptances keep pointing at the text that was accepted.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.store.FindPolicy(ctx, id)
	if err != nil {
		return err
	}
	if p.Published() {
		return fmt.Errorf("%w: published policies cannot be deleted", ErrInvalidInput)
	}
	return s.store.DeletePolicy(ctx, id)
}

// Accept records that the user accepted the given policy version. Accepting
// the same version twice is a conflict.
func (s *Service) Accept(ctx context.Context, userID, policyID string) (*Acceptance, error) {
	p, err := s.store.FindPolicy(ctx, policyID)
	if err != nil {
		return nil, err
	}
	if !p.Published() {
		return nil, fmt.Errorf("%w: policy is not published", ErrInvalidInput)
	}
	ok, err := s.store.HasAccepted(ctx, userID, policyID)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, ErrAlreadyAccepted
	}
	a := &Acceptance{
		ID:         ids.New(),
		UserID:     userID,
		PolicyID:   policyID,
		AcceptedAt: s.now().UTC(),
	}
	if err := s.store.CreateAcceptance(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CheckAccepted verifies the user has accepted the latest published version
// of the given policy type. Acceptance of an older version does not count.
// When no version is published there is nothing to accept.
func (s *Service) CheckAccepted(ctx context.Context, userID, policyType, country string) error {
	latest, err := s.Latest(ctx, policyType, country)
	if err == ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	ok, err := s.store.HasAccepted(ctx, userID, latest.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAccepted
	}
	return nil
}

// Acceptances lists a user's acceptance history.
func (s *Service) Acceptances(ctx context.Context, userID string, d pagination.Descriptor) ([]*Acceptance, int64, error) {
	return s.store.ListAcceptances(ctx, userID, d)
}
