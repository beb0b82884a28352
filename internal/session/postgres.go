package session

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

const sessionColumns = `id, user_id, token_id, refresh_hash, ip_address, user_agent, expired_at, revoked_at, is_revoked, created_at`

func (s *PGStore) Create(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(`+sessionColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sess.ID, sess.UserID, sess.TokenID, sess.RefreshHash, sess.IPAddress,
		sess.UserAgent, sess.ExpiredAt, sess.RevokedAt, sess.IsRevoked, sess.CreatedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id=$1`, id)
	return scanSession(row)
}

func (s *PGStore) ListByUser(ctx context.Context, userID string, d pagination.Descriptor) ([]*Session, int64, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	pconds, tail, pargs := pagination.ApplySQL(d, "id", 2)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from sessions `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+sessionColumns+` from sessions `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, total, rows.Err()
}

func (s *PGStore) Rotate(ctx context.Context, id, tokenID, refreshHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set token_id=$2, refresh_hash=$3 where id=$1 and is_revoked=false`,
		id, tokenID, refreshHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) Revoke(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=$2, is_revoked=true where id=$1 and is_revoked=false`,
		id, at)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) RevokeAllByUser(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update sessions set revoked_at=$2, is_revoked=true where user_id=$1 and is_revoked=false`,
		userID, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		sess      Session
		revokedAt sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.TokenID, &sess.RefreshHash,
		&sess.IPAddress, &sess.UserAgent, &sess.ExpiredAt, &revokedAt,
		&sess.IsRevoked, &sess.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		sess.RevokedAt = &t
	}
	return &sess, nil
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
