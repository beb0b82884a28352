// Package termpolicy manages versioned legal documents (terms of service,
// privacy policies) and per-user acceptances. Only the latest published
// version of a policy type counts as accepted.
package termpolicy

import (
	"context"
	"errors"
	"time"

	"gatewise.org/internal/pagination"
)

var (
	ErrNotFound        = errors.New("termpolicy: not found")
	ErrAlreadyAccepted = errors.New("termpolicy: already accepted")
	ErrNotAccepted     = errors.New("termpolicy: latest version not accepted")
	ErrInvalidInput    = errors.New("termpolicy: invalid input")
)

// Policy types mirror the documents a tenant publishes.
const (
	TypeTerms   = "terms"
	TypePrivacy = "privacy"
	TypeCookie  = "cookie"
)

// Policy is one version of a legal document. Versions are monotonically
// increasing per (type, country); only published versions bind users.
type Policy struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Country     string     `json:"country"`
	Version     int        `json:"version"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Published reports whether the policy is live.
func (p *Policy) Published() bool {
	return p != nil && p.PublishedAt != nil
}

// Acceptance records that a user accepted one policy version.
type Acceptance struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	PolicyID   string    `json:"policyId"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Store describes policy and acceptance persistence.
type Store interface {
	CreatePolicy(ctx context.Context, p *Policy) error
	FindPolicy(ctx context.Context, id string) (*Policy, error)
	LatestPublished(ctx context.Context, policyType, country string) (*Policy, error)
	MaxVersion(ctx context.Context, policyType, country string) (int, error)
	ListPolicies(ctx context.Context, d pagination.Descriptor) ([]*Policy, int64, error)
	Publish(ctx context.Context, id string, at time.Time) error
	DeletePolicy(ctx context.Context, id string) error

	CreateAcceptance(ctx context.Context, a *Acceptance) error
	HasAccepted(ctx context.Context, userID, policyID string) (bool, error)
	ListAcceptances(ctx context.Context, userID string, d pagination.Descriptor) ([]*Acceptance, int64, error)
}
