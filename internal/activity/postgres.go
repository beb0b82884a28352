package activity

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

const entryColumns = `id, user_id, event, request_id, ip_address, metadata, created_at`

func (s *PGStore) Append(ctx context.Context, e *Entry) error {
	_, err := s.db.ExecContext(ctx,
		`insert into activity_log(`+entryColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.UserID, e.Event, e.RequestID, e.IPAddress, []byte(e.Metadata), e.CreatedAt,
	)
	return err
}

func (s *PGStore) ListByUser(ctx context.Context, userID string, d pagination.Descriptor) ([]*Entry, int64, error) {
	return s.list(ctx, []string{"user_id = $1"}, []any{userID}, d, 2)
}

func (s *PGStore) List(ctx context.Context, d pagination.Descriptor) ([]*Entry, int64, error) {
	return s.list(ctx, []string{"true"}, nil, d, 1)
}

func (s *PGStore) list(ctx context.Context, conds []string, args []any, d pagination.Descriptor, argIndex int) ([]*Entry, int64, error) {
	pconds, tail, pargs := pagination.ApplySQL(d, "id", argIndex)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from activity_log `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+entryColumns+` from activity_log `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e        Entry
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Event, &e.RequestID,
			&e.IPAddress, &metadata, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Metadata = metadata
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}
