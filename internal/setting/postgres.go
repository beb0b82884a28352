package setting

import (
	"context"
	"database/sql"
	"strings"

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

const settingColumns = `key, value, description, created_at, updated_at`

func (s *PGStore) Upsert(ctx context.Context, st *Setting) error {
	_, err := s.db.ExecContext(ctx,
		`insert into settings(`+settingColumns+`)
		 values($1,$2,$3,$4,$5)
		 on conflict (key) do update
		 set value=excluded.value, description=excluded.description, updated_at=excluded.updated_at`,
		st.Key, []byte(st.Value), st.Description, st.CreatedAt, st.UpdatedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, key string) (*Setting, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+settingColumns+` from settings where key=$1`, key)
	return scanSetting(row)
}

func (s *PGStore) List(ctx context.Context, d pagination.Descriptor) ([]*Setting, int64, error) {
	conds := []string{"true"}
	args := []any{}
	pconds, tail, pargs := pagination.ApplySQL(d, "key", 1)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from settings `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+settingColumns+` from settings `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var settings []*Setting
	for rows.Next() {
		st, err := scanSetting(rows)
		if err != nil {
			return nil, 0, err
		}
		settings = append(settings, st)
	}
	return settings, total, rows.Err()
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `delete from settings where key=$1`, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSetting(row rowScanner) (*Setting, error) {
	var (
		st    Setting
		value []byte
	)
	err := row.Scan(&st.Key, &value, &st.Description, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	st.Value = value
	return &st, nil
}
