package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatewise.org/internal/auth"
	"gatewise.org/internal/pagination"
	"gatewise.org/internal/rbac"
	"gatewise.org/internal/session"
)

type loginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	LoginFrom string `json:"loginFrom"`
}

type tokenPair struct {
	AccessToken  string       `json:"accessToken"`
	ExpiresAt    time.Time    `json:"expiresAt"`
	RefreshToken string       `json:"refreshToken"`
	User         *rbac.User   `json:"user,omitempty"`
	Session      sessionBrief `json:"session"`
}

type sessionBrief struct {
	ID        string    `json:"id"`
	ExpiredAt time.Time `json:"expiredAt"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}

	user, role, err := a.rbac.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	sess, refreshToken, err := a.sessions.Open(r.Context(), user.ID, clientIP(r), r.UserAgent())
	if err != nil {
		a.fail(w, r, err)
		return
	}

	claims := a.rbac.Claims(user, role)
	claims.SessionID = sess.ID
	claims.TokenID = sess.TokenID
	claims.LoginFrom = req.LoginFrom
	claims.LoginAt = sess.CreatedAt

	access, exp, err := a.tokens.Sign(claims)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	if a.activities != nil {
		_, _ = a.activities.Record(r.Context(), user.ID, "user.login", clientIP(r), map[string]any{
			"sessionId": sess.ID,
			"loginFrom": req.LoginFrom,
		})
	}

	a.respond(w, r, http.StatusOK, "LOGIN_OK", tokenPair{
		AccessToken:  access,
		ExpiresAt:    exp,
		RefreshToken: refreshToken,
		User:         user,
		Session:      sessionBrief{ID: sess.ID, ExpiredAt: sess.ExpiredAt},
	}, nil)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		a.respondErrors(w, r, http.StatusBadRequest, "VALIDATION_FAILED", []string{"malformed JSON body"})
		return
	}

	sess, newRefresh, err := a.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	user, err := a.rbac.GetUser(r.Context(), sess.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	role, err := a.rbac.GetRole(r.Context(), user.RoleID)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	claims := a.rbac.Claims(user, role)
	claims.SessionID = sess.ID
	claims.TokenID = sess.TokenID

	access, exp, err := a.tokens.Sign(claims)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	a.respond(w, r, http.StatusOK, "REFRESH_OK", tokenPair{
		AccessToken:  access,
		ExpiresAt:    exp,
		RefreshToken: newRefresh,
		Session:      sessionBrief{ID: sess.ID, ExpiredAt: sess.ExpiredAt},
	}, nil)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	user, err := a.rbac.GetUser(r.Context(), claims.SubjectID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	role, err := a.rbac.GetRole(r.Context(), user.RoleID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "OK", map[string]any{
		"user": user,
		"role": role,
	}, nil)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := a.sessions.Revoke(r.Context(), claims.SubjectID, claims.SessionID); err != nil {
		a.fail(w, r, err)
		return
	}
	if a.activities != nil {
		_, _ = a.activities.Record(r.Context(), claims.SubjectID, "user.logout", clientIP(r), nil)
	}
	a.respond(w, r, http.StatusOK, "LOGOUT_OK", nil, nil)
}

func (a *API) sessionListOptions() pagination.Options {
	return pagination.Options{
		DefaultPerPage:   a.cfg.DefaultPerPage,
		MaxPerPage:       a.cfg.MaxPerPage,
		DefaultOrderBy:   "created_at",
		AvailableOrderBy: []string{"created_at", "expired_at"},
		DefaultDirection: pagination.Desc,
	}
}

func (a *API) handleSessionList(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	d, err := pagination.FromQuery(r.URL.Query(), a.sessionListOptions())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	sessions, total, err := a.sessions.List(r.Context(), claims.SubjectID, d)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	a.respond(w, r, http.StatusOK, "OK", sessions, offsetMeta(d, total))
}

func (a *API) handleSessionRevoke(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if err := a.sessions.Revoke(r.Context(), claims.SubjectID, chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, "SESSION_REVOKED", nil, nil)
}
