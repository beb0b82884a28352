package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"gatewise.org/internal/apikey"
	"gatewise.org/internal/auth"
	"gatewise.org/internal/obs"
	"gatewise.org/internal/session"
	"gatewise.org/internal/termpolicy"
)

// Route guards run as ordered middleware and short-circuit on the first
// rejection. Authentication (api key, session) always precedes authorization
// (role/ability) and feature/policy gating; the route tree in api.go encodes
// that order.

// requireAPIKey validates the x-api-key header ("key:secret") and restricts
// the key to the given types. System-only routes read past the cache so a
// freshly revoked key cannot ride out the TTL.
func (a *API) requireAPIKey(allowed ...apikey.Type) func(http.Handler) http.Handler {
	bypass := len(allowed) == 1 && allowed[0] == apikey.TypeSystem
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("x-api-key"))
			if raw == "" {
				obs.GuardRejected("apikey", "MISSING")
				a.respondErrors(w, r, http.StatusUnauthorized, "API_KEY_REQUIRED", nil)
				return
			}
			if _, err := a.apikeys.Verify(r.Context(), raw, allowed, bypass); err != nil {
				obs.GuardRejected("apikey", apiKeyCode(err))
				// Everything except a wrong key type is an authentication
				// failure; NOT_FOUND must not leak which keys exist.
				if errors.Is(err, apikey.ErrTypeForbidden) {
					a.respondErrors(w, r, http.StatusForbidden, "FORBIDDEN", []string{err.Error()})
					return
				}
				a.respondErrors(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func apiKeyCode(err error) string {
	switch {
	case errors.Is(err, apikey.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, apikey.ErrInactive):
		return "INACTIVE"
	case errors.Is(err, apikey.ErrExpired):
		return "EXPIRED"
	case errors.Is(err, apikey.ErrInvalidSecret):
		return "INVALID_SECRET"
	case errors.Is(err, apikey.ErrTypeForbidden):
		return "TYPE_FORBIDDEN"
	}
	return "ERROR"
}

// requireSession verifies the bearer token and binds it to a live session.
// A stored token id differing from the claims' token id means the access
// token was refreshed away and is being replayed.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			obs.GuardRejected("session", "MISSING_TOKEN")
			a.respondErrors(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
			return
		}
		claims, err := a.tokens.Verify(token)
		if err != nil {
			obs.GuardRejected("session", "INVALID_TOKEN")
			a.fail(w, r, err)
			return
		}
		if _, err := a.sessions.Validate(r.Context(), claims); err != nil {
			obs.GuardRejected("session", sessionCode(err))
			a.respondErrors(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
			return
		}
		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, session.ErrRevoked):
		return "REVOKED"
	case errors.Is(err, session.ErrExpired):
		return "EXPIRED"
	case errors.Is(err, session.ErrTokenIDMismatch):
		return "INVALID_TOKEN_ID"
	}
	return "ERROR"
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireRoles authorizes the request claims against required role tiers.
func (a *API) requireRoles(roles ...auth.RoleType) func(http.Handler) http.Handler {
	return a.requireAccess(roles, nil)
}

// requireAbilities authorizes the request claims against required abilities.
func (a *API) requireAbilities(abilities ...auth.Ability) func(http.Handler) http.Handler {
	return a.requireAccess(nil, abilities)
}

func (a *API) requireAccess(roles []auth.RoleType, abilities []auth.Ability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				obs.GuardRejected("role", "NO_CLAIMS")
				a.respondErrors(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
				return
			}
			if err := auth.Evaluate(claims, roles, abilities); err != nil {
				code := "ROLE_FORBIDDEN"
				if errors.Is(err, auth.ErrAbilityForbidden) {
					code = "ABILITY_FORBIDDEN"
				}
				obs.GuardRejected("role", code)
				a.fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireFeature rejects with 403 unless the named flag is enabled. The read
// bypasses the cache: a flag that gates access must reflect the source of
// truth immediately.
func (a *API) requireFeature(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			on, err := a.settings.FeatureEnabled(r.Context(), key, true)
			if err != nil {
				obs.GuardRejected("feature", "ERROR")
				a.fail(w, r, err)
				return
			}
			if !on {
				obs.GuardRejected("feature", "FEATURE_INACTIVE")
				a.respondErrors(w, r, http.StatusForbidden, "FEATURE_INACTIVE", []string{key})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requirePolicy rejects unless the caller has accepted the latest published
// version of every listed policy type for their country.
func (a *API) requirePolicy(types ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				obs.GuardRejected("termpolicy", "NO_CLAIMS")
				a.respondErrors(w, r, http.StatusUnauthorized, "UNAUTHORIZED", nil)
				return
			}
			country := a.callerCountry(r, claims)
			for _, policyType := range types {
				err := a.policies.CheckAccepted(r.Context(), claims.SubjectID, policyType, country)
				if errors.Is(err, termpolicy.ErrNotAccepted) {
					obs.GuardRejected("termpolicy", "POLICY_NOT_ACCEPTED")
					a.respondErrors(w, r, http.StatusForbidden, "POLICY_NOT_ACCEPTED", []string{policyType})
					return
				}
				if err != nil {
					obs.GuardRejected("termpolicy", "ERROR")
					a.fail(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerCountry resolves the country used for policy lookup. The user record
// is authoritative; the header is a fallback for fresh accounts.
func (a *API) callerCountry(r *http.Request, claims auth.AccessClaims) string {
	if user, err := a.rbac.GetUser(r.Context(), claims.SubjectID); err == nil && user.Country != "" {
		return user.Country
	}
	return strings.ToUpper(strings.TrimSpace(r.Header.Get("x-country")))
}
