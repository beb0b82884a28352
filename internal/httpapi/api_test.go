package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gatewise.org/internal/activity"
	"gatewise.org/internal/setting"
	"gatewise.org/internal/termpolicy"
)

type testEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Metadata   json.RawMessage `json:"metadata"`
	Data       json.RawMessage `json:"data"`
	Errors     []string        `json:"errors"`
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "203.0.113.7:51234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env testEnvelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: invalid envelope %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func login(t *testing.T, h http.Handler, email, password string) (access, refresh string) {
	t.Helper()
	body := `{"email":"` + email + `","password":"` + password + `","loginFrom":"test"}`
	rec, env := doRequest(t, h, http.MethodPost, "/api/v1/public/user/login", body,
		map[string]string{"x-api-key": testDefaultCredential, "Content-Type": "application/json"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	var data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("login data: %v", err)
	}
	return data.AccessToken, data.RefreshToken
}

func authHeaders(access string) map[string]string {
	return map[string]string{
		"x-api-key":     testDefaultCredential,
		"Authorization": "Bearer " + access,
	}
}

func TestHealthzEnvelopeAndHeaders(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	rec, body := doRequest(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	if body.StatusCode != http.StatusOK || body.Message != "OK" {
		t.Fatalf("unexpected envelope: %+v", body)
	}
	for _, header := range []string{"x-custom-lang", "x-timestamp", "x-timezone", "x-request-id", "x-version", "x-repo-version"} {
		if rec.Header().Get(header) == "" {
			t.Fatalf("missing response header %s", header)
		}
	}
	if got := rec.Header().Get("x-repo-version"); got != "test" {
		t.Fatalf("x-repo-version = %q", got)
	}
}

func TestGuardOrdering(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	// No api key: rejected before the session guard ever runs.
	rec, body := doRequest(t, h, http.MethodGet, "/api/v1/user/profile", "", nil)
	if rec.Code != http.StatusUnauthorized || body.Message != "API_KEY_REQUIRED" {
		t.Fatalf("expected api-key rejection first, got %d %s", rec.Code, body.Message)
	}

	// Valid api key but no bearer token: session guard rejects.
	rec, body = doRequest(t, h, http.MethodGet, "/api/v1/user/profile", "",
		map[string]string{"x-api-key": testDefaultCredential})
	if rec.Code != http.StatusUnauthorized || body.Message != "UNAUTHORIZED" {
		t.Fatalf("expected session rejection, got %d %s", rec.Code, body.Message)
	}

	// Authenticated regular user on an admin route: role guard rejects.
	access, _ := login(t, h, testUserEmail, testUserPassword)
	rec, body = doRequest(t, h, http.MethodGet, "/api/v1/admin/user/list", "", authHeaders(access))
	if rec.Code != http.StatusForbidden || body.Message != "FORBIDDEN" {
		t.Fatalf("expected role rejection, got %d %s", rec.Code, body.Message)
	}
}

func TestApiKeyTypeForbidden(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	rec, body := doRequest(t, h, http.MethodPost, "/api/v1/public/user/login",
		`{"email":"x@example.com","password":"y"}`,
		map[string]string{"x-api-key": testSystemCredential})
	if rec.Code != http.StatusForbidden || body.Message != "FORBIDDEN" {
		t.Fatalf("system key on public area must be forbidden, got %d %s", rec.Code, body.Message)
	}
}

// Listing the activity log behind the full guard chain: page 2 at 10 per
// page skips the first 10 rows and reports the real total.
func TestActivityLogPagination(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	now := time.Now().UTC()
	for i := 0; i < 22; i++ {
		env.activityStore.entries = append(env.activityStore.entries, &activity.Entry{
			ID:        "seed-" + string(rune('a'+i)),
			UserID:    "u-jo",
			Event:     "user.login",
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}

	// Login appends entry 23.
	access, _ := login(t, h, testUserEmail, testUserPassword)

	rec, body := doRequest(t, h, http.MethodGet,
		"/api/v1/user/activity-log/list?page=2&perPage=10", "", authHeaders(access))
	if rec.Code != http.StatusOK {
		t.Fatalf("activity list: %d %s", rec.Code, rec.Body.String())
	}
	var meta struct {
		Page      int   `json:"page"`
		PerPage   int   `json:"perPage"`
		Total     int64 `json:"total"`
		TotalPage int64 `json:"totalPage"`
	}
	if err := json.Unmarshal(body.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Page != 2 || meta.PerPage != 10 || meta.Total != 23 || meta.TotalPage != 3 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(body.Data, &entries); err != nil {
		t.Fatalf("data: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries on page 2, got %d", len(entries))
	}
}

func TestTermPolicyGuardBlocksUntilAccepted(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	now := time.Now().UTC()
	env.policyStore.policies = []*termpolicy.Policy{{
		ID: "p-terms-1", Type: termpolicy.TypeTerms, Country: "DE", Version: 1,
		Title: "Terms", Body: "...", PublishedAt: &now, CreatedAt: now, UpdatedAt: now,
	}}

	access, _ := login(t, h, testUserEmail, testUserPassword)

	rec, body := doRequest(t, h, http.MethodGet, "/api/v1/user/profile", "", authHeaders(access))
	if rec.Code != http.StatusForbidden || body.Message != "POLICY_NOT_ACCEPTED" {
		t.Fatalf("expected policy rejection, got %d %s", rec.Code, body.Message)
	}

	// The policy endpoints themselves stay reachable so the user can accept.
	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/user/term-policy/list", "", authHeaders(access))
	if rec.Code != http.StatusOK {
		t.Fatalf("policy list must bypass the policy guard, got %d", rec.Code)
	}

	rec, _ = doRequest(t, h, http.MethodPost, "/api/v1/user/term-policy/p-terms-1/accept", "", authHeaders(access))
	if rec.Code != http.StatusCreated {
		t.Fatalf("accept: %d", rec.Code)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/user/profile", "", authHeaders(access))
	if rec.Code != http.StatusOK {
		t.Fatalf("profile after accept: %d", rec.Code)
	}

	// Accepting the same version again conflicts.
	rec, _ = doRequest(t, h, http.MethodPost, "/api/v1/user/term-policy/p-terms-1/accept", "", authHeaders(access))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate accept: %d", rec.Code)
	}

	// A newly published version re-arms the guard.
	later := now.Add(time.Hour)
	env.policyStore.policies = append(env.policyStore.policies, &termpolicy.Policy{
		ID: "p-terms-2", Type: termpolicy.TypeTerms, Country: "DE", Version: 2,
		Title: "Terms v2", Body: "...", PublishedAt: &later, CreatedAt: later, UpdatedAt: later,
	})
	rec, body = doRequest(t, h, http.MethodGet, "/api/v1/user/profile", "", authHeaders(access))
	if rec.Code != http.StatusForbidden || body.Message != "POLICY_NOT_ACCEPTED" {
		t.Fatalf("expected rejection after new version, got %d %s", rec.Code, body.Message)
	}
}

func TestFeatureFlagGuard(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	access, _ := login(t, h, testUserEmail, testUserPassword)

	env.settingStore.settings["feature.notifications"] = &setting.Setting{
		Key:   "feature.notifications",
		Value: json.RawMessage(`{"enabled": false}`),
	}
	rec, body := doRequest(t, h, http.MethodGet, "/api/v1/user/notification/list", "", authHeaders(access))
	if rec.Code != http.StatusForbidden || body.Message != "FEATURE_INACTIVE" {
		t.Fatalf("expected feature rejection, got %d %s", rec.Code, body.Message)
	}

	env.settingStore.settings["feature.notifications"] = &setting.Setting{
		Key:   "feature.notifications",
		Value: json.RawMessage(`{"enabled": true}`),
	}
	rec, body = doRequest(t, h, http.MethodGet, "/api/v1/user/notification/list", "", authHeaders(access))
	if rec.Code != http.StatusOK {
		t.Fatalf("notification list: %d", rec.Code)
	}
	var meta struct {
		NextCursor *string `json:"nextCursor"`
	}
	if err := json.Unmarshal(body.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.NextCursor != nil {
		t.Fatalf("empty inbox must have null nextCursor, got %v", *meta.NextCursor)
	}
}

// Refreshing rotates the session's token id, so the pre-refresh access token
// can no longer be replayed.
func TestRefreshInvalidatesOldAccessToken(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	oldAccess, refresh := login(t, h, testUserEmail, testUserPassword)

	rec, body := doRequest(t, h, http.MethodPost, "/api/v1/public/user/refresh",
		`{"refreshToken":"`+refresh+`"}`,
		map[string]string{"x-api-key": testDefaultCredential})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}
	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("refresh data: %v", err)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/user/profile", "", authHeaders(oldAccess))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("old access token must be rejected, got %d", rec.Code)
	}
	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/user/profile", "", authHeaders(data.AccessToken))
	if rec.Code != http.StatusOK {
		t.Fatalf("new access token rejected: %d", rec.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	access, _ := login(t, h, testUserEmail, testUserPassword)

	rec, _ := doRequest(t, h, http.MethodDelete, "/api/v1/user/logout", "", authHeaders(access))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/user/profile", "", authHeaders(access))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked session must be rejected, got %d", rec.Code)
	}
}

func TestAdminAbilityGuard(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	// The seeded admin role carries the api-key manage ability.
	adminAccess, _ := login(t, h, testAdminEmail, testAdminPassword)
	rec, _ := doRequest(t, h, http.MethodGet, "/api/v1/admin/api-key/list", "", authHeaders(adminAccess))
	if rec.Code != http.StatusOK {
		t.Fatalf("api-key list for able admin: %d", rec.Code)
	}

	// Stripping the ability blocks key management but not the rest of the
	// admin area. A fresh login picks up the reduced claims.
	env.rbacStore.roles[1].Abilities = nil
	adminAccess, _ = login(t, h, testAdminEmail, testAdminPassword)
	rec, body := doRequest(t, h, http.MethodGet, "/api/v1/admin/api-key/list", "", authHeaders(adminAccess))
	if rec.Code != http.StatusForbidden || body.Message != "FORBIDDEN" {
		t.Fatalf("expected ability rejection, got %d %s", rec.Code, body.Message)
	}
	rec, _ = doRequest(t, h, http.MethodGet, "/api/v1/admin/user/list", "", authHeaders(adminAccess))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin user list: %d", rec.Code)
	}
}

func TestAdminBroadcast(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	adminAccess, _ := login(t, h, testAdminEmail, testAdminPassword)
	rec, body := doRequest(t, h, http.MethodPost, "/api/v1/admin/notification/broadcast",
		`{"title":"Maintenance","body":"Sunday"}`, authHeaders(adminAccess))
	if rec.Code != http.StatusCreated {
		t.Fatalf("broadcast: %d %s", rec.Code, rec.Body.String())
	}
	var data struct {
		Delivered int `json:"delivered"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("broadcast data: %v", err)
	}
	if data.Delivered != 2 {
		t.Fatalf("expected 2 deliveries, got %d", data.Delivered)
	}
}
