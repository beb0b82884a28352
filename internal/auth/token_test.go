package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokensSignAndVerify(t *testing.T) {
	tokens, err := NewTokens("test-secret", "test-issuer", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}

	in := AccessClaims{
		SubjectID: "user-42",
		RoleID:    "role-7",
		RoleType:  RoleAdmin,
		Abilities: []Ability{{Subject: "user", Action: "read"}},
		LoginFrom: "credential",
		LoginAt:   time.Now().UTC().Truncate(time.Second),
		SessionID: "sess-1",
		TokenID:   "tok-1",
	}
	signed, exp, err := tokens.Sign(in)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expected future expiration, got %v", exp)
	}

	out, err := tokens.Verify(signed)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.SubjectID != in.SubjectID || out.SessionID != in.SessionID || out.TokenID != in.TokenID {
		t.Fatalf("claims not preserved: %+v", out)
	}
	if out.RoleType != RoleAdmin {
		t.Fatalf("unexpected role type: %s", out.RoleType)
	}
	if !out.HasAbility("user", "read") {
		t.Fatalf("abilities not preserved: %+v", out.Abilities)
	}
}

func TestTokensVerifyRejectsExpired(t *testing.T) {
	base := time.Now().UTC()
	clock := base
	tokens, err := NewTokens("test-secret", "test-issuer", time.Minute,
		WithClock(func() time.Time { return clock }))
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	signed, _, err := tokens.Sign(AccessClaims{SubjectID: "u1", RoleType: RoleUser, SessionID: "s", TokenID: "t"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	clock = base.Add(2 * time.Minute)
	if _, err := tokens.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokensVerifyRejectsWrongIssuerAndSecret(t *testing.T) {
	issue, err := NewTokens("secret-a", "issuer-a", time.Minute)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}
	signed, _, err := issue.Sign(AccessClaims{SubjectID: "u1", RoleType: RoleUser, SessionID: "s", TokenID: "t"})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	otherIssuer, _ := NewTokens("secret-a", "issuer-b", time.Minute)
	if _, err := otherIssuer.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch rejection, got %v", err)
	}

	otherSecret, _ := NewTokens("secret-b", "issuer-a", time.Minute)
	if _, err := otherSecret.Verify(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature rejection, got %v", err)
	}
}

func TestContextHelpers(t *testing.T) {
	claims := AccessClaims{SubjectID: "user-7", RoleType: RoleUser, SessionID: "s1", TokenID: "t1"}
	ctx := ContextWithClaims(t.Context(), claims)

	got, ok := ClaimsFromContext(ctx)
	if !ok || got.SubjectID != "user-7" {
		t.Fatalf("unexpected claims from context: %+v ok=%v", got, ok)
	}
	if _, ok := ClaimsFromContext(t.Context()); ok {
		t.Fatalf("expected no claims on fresh context")
	}

	ctx = ContextWithToken(ctx, "raw-token")
	tok, ok := TokenFromContext(ctx)
	if !ok || tok != "raw-token" {
		t.Fatalf("unexpected token from context: %q ok=%v", tok, ok)
	}
}
