package rbac

import (
	"context"
	"database/sql"
	"strings"

	"gatewise.org/internal/auth"
	"gatewise.org/internal/pagination"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, email, name, password_hash, role_id, status, country, created_at, updated_at`
const roleColumns = `id, name, type, created_at, updated_at`

// User store ---------------------------------------------------------------

func (s *PGStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(`+userColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.RoleID, u.Status, u.Country,
		u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (s *PGStore) FindUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *PGStore) ListUsers(ctx context.Context, d pagination.Descriptor) ([]*User, int64, error) {
	conds := []string{"true"}
	args := []any{}
	pconds, tail, pargs := pagination.ApplySQL(d, "id", 1)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from users `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (s *PGStore) UpdateUser(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx,
		`update users set email=$2, name=$3, password_hash=$4, role_id=$5, status=$6, country=$7, updated_at=$8
		 where id=$1`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.RoleID, u.Status, u.Country, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Role store ---------------------------------------------------------------

func (s *PGStore) CreateRole(ctx context.Context, r *Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`insert into roles(`+roleColumns+`) values($1,$2,$3,$4,$5)`,
		r.ID, r.Name, string(r.Type), r.CreatedAt, r.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	for _, a := range r.Abilities {
		if _, err := tx.ExecContext(ctx,
			`insert into role_abilities(role_id, subject, action) values($1,$2,$3)`,
			r.ID, a.Subject, a.Action,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) FindRole(ctx context.Context, id string) (*Role, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+roleColumns+` from roles where id=$1`, id)
	role, err := scanRole(row)
	if err != nil {
		return nil, err
	}
	abilities, err := s.roleAbilities(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Abilities = abilities
	return role, nil
}

func (s *PGStore) ListRoles(ctx context.Context, d pagination.Descriptor) ([]*Role, int64, error) {
	conds := []string{"true"}
	args := []any{}
	pconds, tail, pargs := pagination.ApplySQL(d, "id", 1)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from roles `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+roleColumns+` from roles `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var roles []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for _, role := range roles {
		abilities, err := s.roleAbilities(ctx, role.ID)
		if err != nil {
			return nil, 0, err
		}
		role.Abilities = abilities
	}
	return roles, total, nil
}

func (s *PGStore) UpdateRole(ctx context.Context, r *Role) error {
	res, err := s.db.ExecContext(ctx,
		`update roles set name=$2, updated_at=$3 where id=$1`,
		r.ID, r.Name, r.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetRoleAbilities(ctx context.Context, roleID string, abilities []auth.Ability) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`delete from role_abilities where role_id=$1`, roleID); err != nil {
		return err
	}
	for _, a := range abilities {
		if _, err := tx.ExecContext(ctx,
			`insert into role_abilities(role_id, subject, action) values($1,$2,$3)`,
			roleID, a.Subject, a.Action,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) roleAbilities(ctx context.Context, roleID string) ([]auth.Ability, error) {
	rows, err := s.db.QueryContext(ctx,
		`select subject, action from role_abilities where role_id=$1 order by subject, action`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var abilities []auth.Ability
	for rows.Next() {
		var a auth.Ability
		if err := rows.Scan(&a.Subject, &a.Action); err != nil {
			return nil, err
		}
		abilities = append(abilities, a)
	}
	return abilities, rows.Err()
}

// helpers ------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.RoleID,
		&u.Status, &u.Country, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanRole(row rowScanner) (*Role, error) {
	var (
		r   Role
		typ string
	)
	err := row.Scan(&r.ID, &r.Name, &typ, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Type = auth.RoleType(typ)
	return &r, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation sniffs the Postgres unique_violation SQLSTATE without
// binding the store to a driver-specific error type.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key")
}
