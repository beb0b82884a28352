package rbac

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"gatewise.org/internal/auth"
)

var userCols = []string{
	"id", "email", "name", "password_hash", "role_id", "status", "country",
	"created_at", "updated_at",
}
var roleCols = []string{"id", "name", "type", "created_at", "updated_at"}

func TestAuthenticate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	now := time.Now()

	mock.ExpectQuery("select .* from users where email=").
		WithArgs("jo@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			"u1", "jo@example.com", "Jo", hash, "r1", "active", "DE", now, now))
	mock.ExpectQuery("select .* from roles where id=").
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(roleCols).AddRow("r1", "Member", "user", now, now))
	mock.ExpectQuery("select subject, action from role_abilities").
		WillReturnRows(sqlmock.NewRows([]string{"subject", "action"}).
			AddRow("profile", "read").AddRow("profile", "update"))

	svc := NewService(NewPGStore(db))
	user, role, err := svc.Authenticate(context.Background(), "JO@example.com ", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if user.ID != "u1" || role.Type != auth.RoleUser {
		t.Fatalf("unexpected principal: %+v %+v", user, role)
	}
	if len(role.Abilities) != 2 {
		t.Fatalf("abilities not loaded: %+v", role.Abilities)
	}
}

func TestAuthenticateRejectsBadPasswordAndBlockedUser(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	hash, _ := auth.HashPassword("right")
	now := time.Now()
	svc := NewService(NewPGStore(db))

	mock.ExpectQuery("select .* from users where email=").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			"u1", "jo@example.com", "Jo", hash, "r1", "active", "DE", now, now))
	if _, _, err := svc.Authenticate(context.Background(), "jo@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for wrong password, got %v", err)
	}

	mock.ExpectQuery("select .* from users where email=").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			"u1", "jo@example.com", "Jo", hash, "r1", "blocked", "DE", now, now))
	if _, _, err := svc.Authenticate(context.Background(), "jo@example.com", "right"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for blocked user, got %v", err)
	}

	if _, _, err := svc.Authenticate(context.Background(), "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty credentials, got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc := NewService(NewPGStore(nil))
	cases := []struct {
		name                                  string
		email, uname, password, role, country string
	}{
		{"bad email", "not-an-email", "Jo", "pw", "r1", "DE"},
		{"empty name", "jo@example.com", " ", "pw", "r1", "DE"},
		{"empty password", "jo@example.com", "Jo", " ", "r1", "DE"},
		{"empty role", "jo@example.com", "Jo", "pw", "", "DE"},
	}
	for _, tc := range cases {
		if _, err := svc.CreateUser(context.Background(), tc.email, tc.uname, tc.password, tc.role, tc.country); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestCreateRoleDedupesAbilities(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("insert into roles").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into role_abilities").
		WithArgs(sqlmock.AnyArg(), "user", "read").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	svc := NewService(NewPGStore(db))
	role, err := svc.CreateRole(context.Background(), "Support", auth.RoleAdmin, []auth.Ability{
		{Subject: "user", Action: "read"},
		{Subject: "user", Action: "read"},
		{Subject: " ", Action: "read"},
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if len(role.Abilities) != 1 {
		t.Fatalf("expected deduplicated abilities, got %+v", role.Abilities)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestClaimsCarryRoleAbilities(t *testing.T) {
	svc := NewService(NewPGStore(nil))
	user := &User{ID: "u1"}
	role := &Role{ID: "r1", Type: auth.RoleAdmin, Abilities: []auth.Ability{{Subject: "user", Action: "read"}}}

	claims := svc.Claims(user, role)
	if claims.SubjectID != "u1" || claims.RoleID != "r1" || claims.RoleType != auth.RoleAdmin {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.HasAbility("user", "read") {
		t.Fatalf("abilities not carried into claims")
	}
}
