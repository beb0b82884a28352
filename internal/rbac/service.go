package rbac

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gatewise.org/internal/auth"
	"gatewise.org/internal/ids"
	"gatewise.org/internal/pagination"
)

// Service provides user and role management plus credential checks.
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

// NewService constructs the rbac service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Authenticate verifies credentials and returns the user with its role.
// Every failure mode collapses into ErrUnauthorized so responses cannot be
// used to probe which emails exist.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, *Role, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, nil, ErrUnauthorized
	}
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	if user.Status != UserStatusActive {
		return nil, nil, ErrUnauthorized
	}
	if auth.VerifyPassword(user.PasswordHash, password) != nil {
		return nil, nil, ErrUnauthorized
	}
	role, err := s.store.FindRole(ctx, user.RoleID)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}
	return user, role, nil
}

// Claims builds the access claims for a user/role pair. Session binding is
// filled in by the login handler after the session is opened.
func (s *Service) Claims(user *User, role *Role) auth.AccessClaims {
	return auth.AccessClaims{
		SubjectID: user.ID,
		RoleID:    role.ID,
		RoleType:  role.Type,
		Abilities: role.Abilities,
	}
}

// CreateUser validates input and persists a new user.
func (s *Service) CreateUser(ctx context.Context, email, name, password, roleID, country string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, fmt.Errorf("%w: roleId is required", ErrInvalidInput)
	}
	if _, err := s.store.FindRole(ctx, roleID); err != nil {
		return nil, fmt.Errorf("%w: unknown roleId", ErrInvalidInput)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		RoleID:       roleID,
		Status:       UserStatusActive,
		Country:      strings.ToUpper(strings.TrimSpace(country)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser returns one user by id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.store.FindUser(ctx, id)
}

// ListUsers returns users with offset pagination.
func (s *Service) ListUsers(ctx context.Context, d pagination.Descriptor) ([]*User, int64, error) {
	return s.store.ListUsers(ctx, d)
}

// UpdateUser applies the non-nil fields of upd.
func (s *Service) UpdateUser(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	user, err := s.store.FindUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
		}
		user.Email = email
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		user.Name = name
	}
	if upd.Password != nil {
		if strings.TrimSpace(*upd.Password) == "" {
			return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
		}
		hash, err := auth.HashPassword(*upd.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	if upd.RoleID != nil {
		roleID := strings.TrimSpace(*upd.RoleID)
		if _, err := s.store.FindRole(ctx, roleID); err != nil {
			return nil, fmt.Errorf("%w: unknown roleId", ErrInvalidInput)
		}
		user.RoleID = roleID
	}
	if upd.Status != nil {
		status := strings.TrimSpace(strings.ToLower(*upd.Status))
		if status != UserStatusActive && status != UserStatusBlocked {
			return nil, fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
		}
		user.Status = status
	}
	if upd.Country != nil {
		user.Country = strings.ToUpper(strings.TrimSpace(*upd.Country))
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes a user.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.store.DeleteUser(ctx, id)
}

// CreateRole persists a new role with its abilities.
func (s *Service) CreateRole(ctx context.Context, name string, roleType auth.RoleType, abilities []auth.Ability) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if !roleType.Valid() {
		return nil, fmt.Errorf("%w: unsupported role type %s", ErrInvalidInput, roleType)
	}
	now := s.now().UTC()
	role := &Role{
		ID:        ids.New(),
		Name:      name,
		Type:      roleType,
		Abilities: dedupeAbilities(abilities),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole returns one role with its abilities.
func (s *Service) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.store.FindRole(ctx, id)
}

// ListRoles returns roles with offset pagination.
func (s *Service) ListRoles(ctx context.Context, d pagination.Descriptor) ([]*Role, int64, error) {
	return s.store.ListRoles(ctx, d)
}

// RenameRole updates a role's display name.
func (s *Service) RenameRole(ctx context.Context, id, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role, err := s.store.FindRole(ctx, id)
	if err != nil {
		return nil, err
	}
	role.Name = name
	role.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateRole(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// SetRoleAbilities replaces the role's ability set.
func (s *Service) SetRoleAbilities(ctx context.Context, roleID string, abilities []auth.Ability) error {
	if _, err := s.store.FindRole(ctx, roleID); err != nil {
		return err
	}
	return s.store.SetRoleAbilities(ctx, roleID, dedupeAbilities(abilities))
}

// DeleteRole removes a role.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	return s.store.DeleteRole(ctx, id)
}

func dedupeAbilities(abilities []auth.Ability) []auth.Ability {
	if len(abilities) == 0 {
		return nil
	}
	seen := make(map[auth.Ability]struct{}, len(abilities))
	var result []auth.Ability
	for _, a := range abilities {
		a.Subject = strings.TrimSpace(a.Subject)
		a.Action = strings.TrimSpace(a.Action)
		if a.Subject == "" || a.Action == "" {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		result = append(result, a)
	}
	return result
}
