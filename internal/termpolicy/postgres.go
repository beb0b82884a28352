package termpolicy

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

const policyColumns = `id, type, country, version, title, body, published_at, created_at, updated_at`
const acceptanceColumns = `id, user_id, policy_id, accepted_at`

func (s *PGStore) CreatePolicy(ctx context.Context, p *Policy) error {
	_, err := s.db.ExecContext(ctx,
		`insert into term_policies(`+policyColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.Type, p.Country, p.Version, p.Title, p.Body, p.PublishedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *PGStore) FindPolicy(ctx context.Context, id string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+policyColumns+` from term_policies where id=$1`, id)
	return scanPolicy(row)
}

func (s *PGStore) LatestPublished(ctx context.Context, policyType, country string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+policyColumns+` from term_policies
		 where type=$1 and country=$2 and published_at is not null
		 order by version desc limit 1`,
		policyType, country,
	)
	return scanPolicy(row)
}

func (s *PGStore) MaxVersion(ctx context.Context, policyType, country string) (int, error) {
	var max int
	err := s.db.QueryRowContext(ctx,
		`select coalesce(max(version), 0) from term_policies where type=$1 and country=$2`,
		policyType, country,
	).Scan(&max)
	return max, err
}

func (s *PGStore) ListPolicies(ctx context.Context, d pagination.Descriptor) ([]*Policy, int64, error) {
	conds := []string{"true"}
	args := []any{}
	pconds, tail, pargs := pagination.ApplySQL(d, "id", 1)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from term_policies `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+policyColumns+` from term_policies `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var policies []*Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, 0, err
		}
		policies = append(policies, p)
	}
	return policies, total, rows.Err()
}

func (s *PGStore) Publish(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update term_policies set published_at=$2, updated_at=$2 where id=$1 and published_at is null`,
		id, at,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) DeletePolicy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from term_policies where id=$1 and published_at is null`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *PGStore) CreateAcceptance(ctx context.Context, a *Acceptance) error {
	_, err := s.db.ExecContext(ctx,
		`insert into term_policy_acceptances(`+acceptanceColumns+`)
		 values($1,$2,$3,$4)`,
		a.ID, a.UserID, a.PolicyID, a.AcceptedAt,
	)
	if err != nil && (strings.Contains(err.Error(), "23505") ||
		strings.Contains(err.Error(), "duplicate key")) {
		return ErrAlreadyAccepted
	}
	return err
}

func (s *PGStore) HasAccepted(ctx context.Context, userID, policyID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from term_policy_acceptances where user_id=$1 and policy_id=$2)`,
		userID, policyID,
	).Scan(&exists)
	return exists, err
}

func (s *PGStore) ListAcceptances(ctx context.Context, userID string, d pagination.Descriptor) ([]*Acceptance, int64, error) {
	conds := []string{"user_id = $1"}
	args := []any{userID}
	pconds, tail, pargs := pagination.ApplySQL(d, "id", 2)
	conds = append(conds, pconds...)
	args = append(args, pargs...)
	where := "where " + strings.Join(conds, " and ")

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`select count(*) from term_policy_acceptances `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`select `+acceptanceColumns+` from term_policy_acceptances `+where+` `+tail, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var acceptances []*Acceptance
	for rows.Next() {
		var a Acceptance
		if err := rows.Scan(&a.ID, &a.UserID, &a.PolicyID, &a.AcceptedAt); err != nil {
			return nil, 0, err
		}
		acceptances = append(acceptances, &a)
	}
	return acceptances, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*Policy, error) {
	var (
		p           Policy
		publishedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Type, &p.Country, &p.Version, &p.Title, &p.Body,
		&publishedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if publishedAt.Valid {
		t := publishedAt.Time
		p.PublishedAt = &t
	}
	return &p, nil
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
