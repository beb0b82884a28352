package apikey

import (
	"context"
	"database/sql"
	"strings"
	"time"

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

const apiKeyColumns = `id, name, type, key, hash, is_active, start_date, end_date, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, k *APIKey) error {
	_, err := s.db.ExecContext(ctx,
		`insert into api_keys(`+apiKeyColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		k.ID, k.Name, string(k.Type), k.Key, k.Hash, k.IsActive,
		k.StartDate, k.EndDate, k.CreatedAt, k.UpdatedAt,
	)
	return err
}

func (s *PGStore) FindByID(ctx context.Context, id string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+apiKeyColumns+` from api_keys where id=$1`, id)
	return scanKey(row)
}

func (s *PGStore) FindByKey(ctx context.Context, key string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+apiKeyColumns+` from api_keys where key=$1`, key)
	return scanKey(row)
}

func (s *PGStore) List(ctx context.Context, d pagination.Descriptor) ([]*APIKey, int64, error) {
	conds := []string{"true"}
	args := []any{}
	pconds, tail, pargs := pagination.ApplySQL(d, "id", 1)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from api_keys `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+apiKeyColumns+` from api_keys `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, 0, err
		}
		keys = append(keys, k)
	}
	return keys, total, rows.Err()
}

func (s *PGStore) UpdateName(ctx context.Context, id, name string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update api_keys set name=$2, updated_at=$3 where id=$1`, id, name, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update api_keys set is_active=$2, updated_at=$3 where id=$1`, id, active, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) UpdateHash(ctx context.Context, id, hash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update api_keys set hash=$2, updated_at=$3 where id=$1`, id, hash, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from api_keys where id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (*APIKey, error) {
	var (
		k     APIKey
		typ   string
		start sql.NullTime
		end   sql.NullTime
	)
	err := row.Scan(&k.ID, &k.Name, &typ, &k.Key, &k.Hash, &k.IsActive,
		&start, &end, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	k.Type = Type(typ)
	if start.Valid {
		t := start.Time
		k.StartDate = &t
	}
	if end.Valid {
		t := end.Time
		k.EndDate = &t
	}
	return &k, nil
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
