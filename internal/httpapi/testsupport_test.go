package httpapi

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gatewise.org/internal/activity"
	"gatewise.org/internal/apikey"
	"gatewise.org/internal/auth"
	"gatewise.org/internal/config"
	"gatewise.org/internal/notification"
	"gatewise.org/internal/pagination"
	"gatewise.org/internal/rbac"
	"gatewise.org/internal/session"
	"gatewise.org/internal/setting"
	"gatewise.org/internal/termpolicy"
)

// In-memory store fakes. They implement the same interfaces the Postgres
// stores do, with just enough pagination behavior for the handlers under
// test: offset slicing, and the cursor-mode extra-row convention.

func page[T any](items []T, d pagination.Descriptor) []T {
	if d.CursorMode {
		limit := d.PerPage + 1
		if limit > len(items) {
			limit = len(items)
		}
		return items[:limit]
	}
	skip := d.Skip()
	if skip >= len(items) {
		return nil
	}
	end := skip + d.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}

type memRBAC struct {
	mu    sync.Mutex
	users []*rbac.User
	roles []*rbac.Role
}

func (m *memRBAC) CreateUser(_ context.Context, u *rbac.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
	return nil
}

func (m *memRBAC) FindUser(_ context.Context, id string) (*rbac.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, rbac.ErrNotFound
}

func (m *memRBAC) FindUserByEmail(_ context.Context, email string) (*rbac.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, rbac.ErrNotFound
}

func (m *memRBAC) ListUsers(_ context.Context, d pagination.Descriptor) ([]*rbac.User, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.users, d), int64(len(m.users)), nil
}

func (m *memRBAC) UpdateUser(_ context.Context, u *rbac.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.users {
		if existing.ID == u.ID {
			m.users[i] = u
			return nil
		}
	}
	return rbac.ErrNotFound
}

func (m *memRBAC) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, u := range m.users {
		if u.ID == id {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return nil
		}
	}
	return rbac.ErrNotFound
}

func (m *memRBAC) CreateRole(_ context.Context, r *rbac.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles = append(m.roles, r)
	return nil
}

func (m *memRBAC) FindRole(_ context.Context, id string) (*rbac.Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, rbac.ErrNotFound
}

func (m *memRBAC) ListRoles(_ context.Context, d pagination.Descriptor) ([]*rbac.Role, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.roles, d), int64(len(m.roles)), nil
}

func (m *memRBAC) UpdateRole(_ context.Context, r *rbac.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.roles {
		if existing.ID == r.ID {
			m.roles[i] = r
			return nil
		}
	}
	return rbac.ErrNotFound
}

func (m *memRBAC) SetRoleAbilities(_ context.Context, roleID string, abilities []auth.Ability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.roles {
		if r.ID == roleID {
			r.Abilities = abilities
			return nil
		}
	}
	return rbac.ErrNotFound
}

func (m *memRBAC) DeleteRole(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.roles {
		if r.ID == id {
			m.roles = append(m.roles[:i], m.roles[i+1:]...)
			return nil
		}
	}
	return rbac.ErrNotFound
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*session.Session)}
}

func (m *memSessions) Create(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) Find(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) ListByUser(_ context.Context, userID string, d pagination.Descriptor) ([]*session.Session, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*session.Session
	for _, s := range m.sessions {
		if s.UserID == userID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return page(out, d), int64(len(out)), nil
}

func (m *memSessions) Rotate(_ context.Context, id, tokenID, refreshHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.IsRevoked {
		return session.ErrNotFound
	}
	s.TokenID = tokenID
	s.RefreshHash = refreshHash
	return nil
}

func (m *memSessions) Revoke(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.IsRevoked {
		return session.ErrNotFound
	}
	s.IsRevoked = true
	s.RevokedAt = &at
	return nil
}

func (m *memSessions) RevokeAllByUser(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && !s.IsRevoked {
			s.IsRevoked = true
			s.RevokedAt = &at
		}
	}
	return nil
}

type memKeys struct {
	mu   sync.Mutex
	keys []*apikey.APIKey
}

func (m *memKeys) Create(_ context.Context, k *apikey.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, k)
	return nil
}

func (m *memKeys) FindByID(_ context.Context, id string) (*apikey.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id {
			return k, nil
		}
	}
	return nil, apikey.ErrNotFound
}

func (m *memKeys) FindByKey(_ context.Context, key string) (*apikey.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.Key == key {
			return k, nil
		}
	}
	return nil, apikey.ErrNotFound
}

func (m *memKeys) List(_ context.Context, d pagination.Descriptor) ([]*apikey.APIKey, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.keys, d), int64(len(m.keys)), nil
}

func (m *memKeys) UpdateName(_ context.Context, id, name string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id {
			k.Name = name
			k.UpdatedAt = at
			return nil
		}
	}
	return apikey.ErrNotFound
}

func (m *memKeys) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id {
			k.IsActive = active
			k.UpdatedAt = at
			return nil
		}
	}
	return apikey.ErrNotFound
}

func (m *memKeys) UpdateHash(_ context.Context, id, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.keys {
		if k.ID == id {
			k.Hash = hash
			k.UpdatedAt = at
			return nil
		}
	}
	return apikey.ErrNotFound
}

func (m *memKeys) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, k := range m.keys {
		if k.ID == id {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			return nil
		}
	}
	return apikey.ErrNotFound
}

type memSettings struct {
	mu       sync.Mutex
	settings map[string]*setting.Setting
}

func newMemSettings() *memSettings {
	return &memSettings{settings: make(map[string]*setting.Setting)}
}

func (m *memSettings) Upsert(_ context.Context, s *setting.Setting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.Key] = s
	return nil
}

func (m *memSettings) Find(_ context.Context, key string) (*setting.Setting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[key]
	if !ok {
		return nil, setting.ErrNotFound
	}
	return s, nil
}

func (m *memSettings) List(_ context.Context, d pagination.Descriptor) ([]*setting.Setting, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*setting.Setting
	for _, s := range m.settings {
		out = append(out, s)
	}
	return page(out, d), int64(len(out)), nil
}

func (m *memSettings) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settings[key]; !ok {
		return setting.ErrNotFound
	}
	delete(m.settings, key)
	return nil
}

type memPolicies struct {
	mu          sync.Mutex
	policies    []*termpolicy.Policy
	acceptances []*termpolicy.Acceptance
}

func (m *memPolicies) CreatePolicy(_ context.Context, p *termpolicy.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies = append(m.policies, p)
	return nil
}

func (m *memPolicies) FindPolicy(_ context.Context, id string) (*termpolicy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.policies {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, termpolicy.ErrNotFound
}

func (m *memPolicies) LatestPublished(_ context.Context, policyType, country string) (*termpolicy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *termpolicy.Policy
	for _, p := range m.policies {
		if p.Type != policyType || p.Country != country || !p.Published() {
			continue
		}
		if latest == nil || p.Version > latest.Version {
			latest = p
		}
	}
	if latest == nil {
		return nil, termpolicy.ErrNotFound
	}
	return latest, nil
}

func (m *memPolicies) MaxVersion(_ context.Context, policyType, country string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, p := range m.policies {
		if p.Type == policyType && p.Country == country && p.Version > max {
			max = p.Version
		}
	}
	return max, nil
}

func (m *memPolicies) ListPolicies(_ context.Context, d pagination.Descriptor) ([]*termpolicy.Policy, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.policies, d), int64(len(m.policies)), nil
}

func (m *memPolicies) Publish(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.policies {
		if p.ID == id && !p.Published() {
			p.PublishedAt = &at
			p.UpdatedAt = at
			return nil
		}
	}
	return termpolicy.ErrNotFound
}

func (m *memPolicies) DeletePolicy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.policies {
		if p.ID == id && !p.Published() {
			m.policies = append(m.policies[:i], m.policies[i+1:]...)
			return nil
		}
	}
	return termpolicy.ErrNotFound
}

func (m *memPolicies) CreateAcceptance(_ context.Context, a *termpolicy.Acceptance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.acceptances {
		if existing.UserID == a.UserID && existing.PolicyID == a.PolicyID {
			return termpolicy.ErrAlreadyAccepted
		}
	}
	m.acceptances = append(m.acceptances, a)
	return nil
}

func (m *memPolicies) HasAccepted(_ context.Context, userID, policyID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.acceptances {
		if a.UserID == userID && a.PolicyID == policyID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPolicies) ListAcceptances(_ context.Context, userID string, d pagination.Descriptor) ([]*termpolicy.Acceptance, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*termpolicy.Acceptance
	for _, a := range m.acceptances {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return page(out, d), int64(len(out)), nil
}

type memNotifications struct {
	mu      sync.Mutex
	items   []*notification.Notification
	userIDs []string
}

func (m *memNotifications) Create(_ context.Context, ns []*notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, ns...)
	return nil
}

func (m *memNotifications) Find(_ context.Context, id string) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, notification.ErrNotFound
}

func (m *memNotifications) ListByUser(_ context.Context, userID string, d pagination.Descriptor) ([]*notification.Notification, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*notification.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return page(out, d), int64(len(out)), nil
}

func (m *memNotifications) MarkRead(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.ID == id && n.ReadAt == nil {
			n.ReadAt = &at
			return nil
		}
	}
	return notification.ErrNotFound
}

func (m *memNotifications) MarkAllRead(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &at
		}
	}
	return nil
}

func (m *memNotifications) CountUnread(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.items {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (m *memNotifications) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.items {
		if n.ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return notification.ErrNotFound
}

func (m *memNotifications) AllUserIDs(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userIDs, nil
}

type memActivity struct {
	mu      sync.Mutex
	entries []*activity.Entry
}

func (m *memActivity) Append(_ context.Context, e *activity.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memActivity) ListByUser(_ context.Context, userID string, d pagination.Descriptor) ([]*activity.Entry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*activity.Entry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return page(out, d), int64(len(out)), nil
}

func (m *memActivity) List(_ context.Context, d pagination.Descriptor) ([]*activity.Entry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return page(m.entries, d), int64(len(m.entries)), nil
}

// Fixtures --------------------------------------------------------------

const (
	testDefaultCredential = "gw_defaultkey:default-secret"
	testSystemCredential  = "gw_systemkey:system-secret"

	testUserEmail     = "jo@example.com"
	testUserPassword  = "user-pass"
	testAdminEmail    = "admin@example.com"
	testAdminPassword = "admin-pass"
)

type testEnv struct {
	api           *API
	rbacStore     *memRBAC
	sessionStore  *memSessions
	keyStore      *memKeys
	settingStore  *memSettings
	policyStore   *memPolicies
	noteStore     *memNotifications
	activityStore *memActivity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Timezone:           "UTC",
		DefaultPerPage:     20,
		MaxPerPage:         100,
		RateLimitPerSecond: 1000,
		RateLimitBurst:     1000,
		MaxBodyBytes:       1 << 20,
	}
	tokens, err := auth.NewTokens("test-secret-0123456789", "gatewise", 15*time.Minute)
	if err != nil {
		t.Fatalf("NewTokens: %v", err)
	}

	env := &testEnv{
		rbacStore:     &memRBAC{},
		sessionStore:  newMemSessions(),
		keyStore:      &memKeys{},
		settingStore:  newMemSettings(),
		policyStore:   &memPolicies{},
		noteStore:     &memNotifications{},
		activityStore: &memActivity{},
	}

	now := time.Now().UTC()
	userHash, _ := auth.HashPassword(testUserPassword)
	adminHash, _ := auth.HashPassword(testAdminPassword)
	env.rbacStore.roles = []*rbac.Role{
		{ID: "r-user", Name: "Member", Type: auth.RoleUser, CreatedAt: now, UpdatedAt: now},
		{ID: "r-admin", Name: "Operator", Type: auth.RoleAdmin,
			Abilities: []auth.Ability{{Subject: "api-key", Action: "manage"}},
			CreatedAt: now, UpdatedAt: now},
	}
	env.rbacStore.users = []*rbac.User{
		{ID: "u-jo", Email: testUserEmail, Name: "Jo", PasswordHash: userHash,
			RoleID: "r-user", Status: rbac.UserStatusActive, Country: "DE",
			CreatedAt: now, UpdatedAt: now},
		{ID: "u-admin", Email: testAdminEmail, Name: "Admin", PasswordHash: adminHash,
			RoleID: "r-admin", Status: rbac.UserStatusActive, Country: "DE",
			CreatedAt: now, UpdatedAt: now},
	}
	env.noteStore.userIDs = []string{"u-jo", "u-admin"}

	defaultHash, _ := bcrypt.GenerateFromPassword([]byte("default-secret"), bcrypt.MinCost)
	systemHash, _ := bcrypt.GenerateFromPassword([]byte("system-secret"), bcrypt.MinCost)
	env.keyStore.keys = []*apikey.APIKey{
		{ID: "k-default", Name: "web", Type: apikey.TypeDefault, Key: "gw_defaultkey",
			Hash: string(defaultHash), IsActive: true, CreatedAt: now, UpdatedAt: now},
		{ID: "k-system", Name: "ops", Type: apikey.TypeSystem, Key: "gw_systemkey",
			Hash: string(systemHash), IsActive: true, CreatedAt: now, UpdatedAt: now},
	}

	env.settingStore.settings["feature.notifications"] = &setting.Setting{
		Key:       "feature.notifications",
		Value:     json.RawMessage(`{"enabled": true}`),
		CreatedAt: now,
		UpdatedAt: now,
	}

	env.api = New(Deps{
		Config:        cfg,
		Tokens:        tokens,
		RBAC:          rbac.NewService(env.rbacStore),
		Sessions:      session.NewService(env.sessionStore),
		APIKeys:       apikey.NewService(env.keyStore),
		Settings:      setting.NewService(env.settingStore),
		Policies:      termpolicy.NewService(env.policyStore),
		Notifications: notification.NewService(env.noteStore),
		Activities:    activity.NewService(env.activityStore),
		Version:       "test",
	})
	return env
}
