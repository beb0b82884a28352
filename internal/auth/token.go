package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwtClaims is the wire shape of an access token payload.
type jwtClaims struct {
	RoleID    string    `json:"roleId"`
	RoleType  string    `json:"roleType"`
	Abilities []Ability `json:"abilities,omitempty"`
	LoginFrom string    `json:"loginFrom,omitempty"`
	LoginAt   int64     `json:"loginAt,omitempty"`
	SessionID string    `json:"sessionId"`
	TokenID   string    `json:"tokenId"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies access tokens using HS256.
type Tokens struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokensOption configures a Tokens instance.
type TokensOption func(*Tokens)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokensOption {
	return func(t *Tokens) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokens constructs the token signer/verifier.
func NewTokens(secret, issuer string, ttl time.Duration, opts ...TokensOption) (*Tokens, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be greater than zero")
	}
	t := &Tokens{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TTL returns the configured access token lifetime.
func (t *Tokens) TTL() time.Duration { return t.ttl }

// Sign issues an access token for the given claims.
func (t *Tokens) Sign(claims AccessClaims) (string, time.Time, error) {
	if strings.TrimSpace(claims.SubjectID) == "" {
		return "", time.Time{}, errors.New("auth: subject is required")
	}
	if !claims.RoleType.Valid() {
		return "", time.Time{}, errors.New("auth: invalid role type")
	}
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	payload := jwtClaims{
		RoleID:    claims.RoleID,
		RoleType:  string(claims.RoleType),
		Abilities: claims.Abilities,
		LoginFrom: claims.LoginFrom,
		SessionID: claims.SessionID,
		TokenID:   claims.TokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   claims.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        claims.TokenID,
		},
	}
	if !claims.LoginAt.IsZero() {
		payload.LoginAt = claims.LoginAt.Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify validates a token string and reconstructs its claims.
func (t *Tokens) Verify(token string) (AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &jwtClaims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return AccessClaims{}, ErrInvalidToken
	}
	payload, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid {
		return AccessClaims{}, ErrInvalidToken
	}
	if t.issuer != "" && payload.Issuer != t.issuer {
		return AccessClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(payload.Subject) == "" {
		return AccessClaims{}, ErrInvalidToken
	}
	roleType := RoleType(payload.RoleType)
	if !roleType.Valid() {
		return AccessClaims{}, ErrInvalidToken
	}
	claims := AccessClaims{
		SubjectID: payload.Subject,
		RoleID:    payload.RoleID,
		RoleType:  roleType,
		Abilities: payload.Abilities,
		LoginFrom: payload.LoginFrom,
		SessionID: payload.SessionID,
		TokenID:   payload.TokenID,
	}
	if payload.LoginAt > 0 {
		claims.LoginAt = time.Unix(payload.LoginAt, 0).UTC()
	}
	return claims, nil
}
