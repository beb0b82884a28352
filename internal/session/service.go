package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"time"

	"gatewise.org/internal/auth"
	"gatewise.org/internal/ids"
	"gatewise.org/internal/pagination"
)

const defaultTTL = 30 * 24 * time.Hour

// Service implements the session lifecycle: open at login, validate per
// request, rotate on refresh, revoke on logout.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithTTL overrides the session lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
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

// NewService constructs the session service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, ttl: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a session for a freshly authenticated user and returns it
// together with the opaque refresh token ("<sessionID>.<secret>"). Only the
// secret's hash is persisted.
func (s *Service) Open(ctx context.Context, userID, ipAddress, userAgent string) (*Session, string, error) {
	secret, hash, err := newRefreshSecret()
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	sess := &Session{
		ID:          ids.New(),
		UserID:      userID,
		TokenID:     ids.New(),
		RefreshHash: hash,
		IPAddress:   ipAddress,
		UserAgent:   userAgent,
		ExpiredAt:   now.Add(s.ttl),
		CreatedAt:   now,
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, "", err
	}
	return sess, sess.ID + "." + secret, nil
}

// Validate checks the claims of an incoming request against the stored
// session. A stored token id that differs from the claims' token id means
// the access token was refreshed away and must not be replayed.
func (s *Service) Validate(ctx context.Context, claims auth.AccessClaims) (*Session, error) {
	if claims.SessionID == "" || claims.TokenID == "" {
		return nil, ErrTokenIDMismatch
	}
	sess, err := s.store.Find(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.IsRevoked {
		return nil, ErrRevoked
	}
	if s.now().After(sess.ExpiredAt) {
		return nil, ErrExpired
	}
	if subtle.ConstantTimeCompare([]byte(sess.TokenID), []byte(claims.TokenID)) != 1 {
		return nil, ErrTokenIDMismatch
	}
	return sess, nil
}

// Refresh verifies a refresh token, rotates the session's token id and
// refresh secret, and returns the updated session plus the new refresh
// token. A hash mismatch revokes the session outright.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, string, error) {
	sessionID, secret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return nil, "", ErrInvalidRefresh
	}
	sess, err := s.store.Find(ctx, sessionID)
	if err != nil {
		return nil, "", ErrInvalidRefresh
	}
	if sess.IsRevoked || s.now().After(sess.ExpiredAt) {
		return nil, "", ErrInvalidRefresh
	}
	if !compareRefreshHash(sess.RefreshHash, secret) {
		_ = s.store.Revoke(ctx, sess.ID, s.now().UTC())
		return nil, "", ErrInvalidRefresh
	}

	newSecret, newHash, err := newRefreshSecret()
	if err != nil {
		return nil, "", err
	}
	newTokenID := ids.New()
	if err := s.store.Rotate(ctx, sess.ID, newTokenID, newHash); err != nil {
		return nil, "", err
	}
	sess.TokenID = newTokenID
	sess.RefreshHash = newHash
	return sess, sess.ID + "." + newSecret, nil
}

// Revoke revokes one session owned by userID.
func (s *Service) Revoke(ctx context.Context, userID, sessionID string) error {
	sess, err := s.store.Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return ErrNotFound
	}
	if sess.IsRevoked {
		return nil
	}
	return s.store.Revoke(ctx, sess.ID, s.now().UTC())
}

// RevokeAll revokes every session of a user.
func (s *Service) RevokeAll(ctx context.Context, userID string) error {
	return s.store.RevokeAllByUser(ctx, userID, s.now().UTC())
}

// List returns the user's sessions with offset pagination.
func (s *Service) List(ctx context.Context, userID string, d pagination.Descriptor) ([]*Session, int64, error) {
	return s.store.ListByUser(ctx, userID, d)
}

func newRefreshSecret() (secret, hash string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	secret = base64.RawURLEncoding.EncodeToString(raw)
	sum := sha256.Sum256([]byte(secret))
	return secret, hex.EncodeToString(sum[:]), nil
}

func splitRefreshToken(raw string) (id, secret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrInvalidRefresh
	}
	return parts[0], parts[1], nil
}

func compareRefreshHash(expectedHash, secret string) bool {
	sum := sha256.Sum256([]byte(secret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
