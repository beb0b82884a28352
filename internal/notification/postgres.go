package notification

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

const notificationColumns = `id, user_id, title, body, topic, read_at, created_at`

func (s *PGStore) Create(ctx context.Context, ns []*Notification) error {
	if len(ns) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range ns {
		if _, err := tx.ExecContext(ctx,
			`insert into notifications(`+notificationColumns+`)
			 values($1,$2,$3,$4,$5,$6,$7)`,
			n.ID, n.UserID, n.Title, n.Body, n.Topic, n.ReadAt, n.CreatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PGStore) Find(ctx context.Context, id string) (*Notification, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+notificationColumns+` from notifications where id=$1`, id)
	return scanNotification(row)
}

func (s *PGStore) ListByUser(ctx context.Context, userID string, d pagination.Descriptor) ([]*Notification, int64, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	pconds, tail, pargs := pagination.ApplySQL(d, "id", 2)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from notifications where user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+notificationColumns+` from notifications `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var ns []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, err
		}
		ns = append(ns, n)
	}
	return ns, total, rows.Err()
}

func (s *PGStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update notifications set read_at=$2 where id=$1 and read_at is null`, id, at)
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

func (s *PGStore) MarkAllRead(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`update notifications set read_at=$2 where user_id=$1 and read_at is null`, userID, at)
	return err
}

func (s *PGStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`select count(*) from notifications where user_id=$1 and read_at is null`, userID).Scan(&total)
	return total, err
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from notifications where id=$1`, id)
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

func (s *PGStore) AllUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id from users where status='active' order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var userIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	var (
		n      Notification
		readAt sql.NullTime
	)
	err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Topic, &readAt, &n.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if readAt.Valid {
		t := readAt.Time
		n.ReadAt = &t
	}
	return &n, nil
}
