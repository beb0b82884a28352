// Package session manages login sessions. Sessions are soft-deleted only:
// revocation sets revoked_at and is_revoked, rows are never removed.
package session

import (
	"context"
	"errors"
	"time"

	"gatewise.org/internal/pagination"
)

var (
	ErrNotFound        = errors.New("session: not found")
	ErrRevoked         = errors.New("session: revoked")
	ErrExpired         = errors.New("session: expired")
	ErrTokenIDMismatch = errors.New("session: token id mismatch")
	ErrInvalidRefresh  = errors.New("session: invalid refresh token")
)

// Session is one login session. TokenID binds the currently valid access
// token to the row; rotation on refresh invalidates older access tokens.
type Session struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	TokenID     string     `json:"-"`
	RefreshHash string     `json:"-"`
	IPAddress   string     `json:"ipAddress"`
	UserAgent   string     `json:"userAgent"`
	ExpiredAt   time.Time  `json:"expiredAt"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	IsRevoked   bool       `json:"isRevoked"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Store describes session persistence.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Find(ctx context.Context, id string) (*Session, error)
	ListByUser(ctx context.Context, userID string, d pagination.Descriptor) ([]*Session, int64, error)
	Rotate(ctx context.Context, id, tokenID, refreshHash string) error
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllByUser(ctx context.Context, userID string, at time.Time) error
}
