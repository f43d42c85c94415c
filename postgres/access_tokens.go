package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

const tokenColumns = `token, identity, client_id, scope, created_at, expires_at, revoked_at,
	last_access, prev_access`

func scanToken(row scanner) (*domain.AccessToken, error) {
	var (
		t                                domain.AccessToken
		sc                               string
		expires, revoked, last, previous sql.NullTime
	)
	err := row.Scan(&t.Token, &t.Identity, &t.ClientID, &sc, &t.CreatedAt, &expires, &revoked, &last, &previous)
	if err != nil {
		return nil, err
	}
	t.Scope = scope.Parse(sc)
	t.CreatedAt = t.CreatedAt.UTC()
	t.ExpiresAt = timePtr(expires)
	t.RevokedAt = timePtr(revoked)
	t.LastAccess = timePtr(last)
	t.PrevAccess = timePtr(previous)
	return &t, nil
}

func (s *Store) CreateAccessToken(ctx context.Context, t *domain.AccessToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_access_tokens (`+tokenColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.Token, t.Identity, t.ClientID, t.Scope.String(), t.CreatedAt, nullTime(t.ExpiresAt),
		nullTime(t.RevokedAt), nullTime(t.LastAccess), nullTime(t.PrevAccess))
	return wrap("insert access token", err, nil)
}

func (s *Store) GetAccessToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	row := s.db.QueryRowContext(ctx, `select `+tokenColumns+` from oauth_access_tokens where token = $1`, token)
	t, err := scanToken(row)
	if err != nil {
		return nil, wrap("get access token", err, serrors.ErrTokenNotFound)
	}
	return t, nil
}

func (s *Store) FindActiveAccessToken(ctx context.Context, q domain.ActiveTokenQuery) (*domain.AccessToken, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+tokenColumns+` from oauth_access_tokens
		where identity = $1 and client_id = $2 and scope = $3
			and revoked_at is null and (expires_at is null or expires_at > $4)
		order by created_at, token
		limit 1
	`, q.Identity, q.ClientID, q.Scope.String(), q.Now)
	t, err := scanToken(row)
	if err != nil {
		return nil, wrap("find active access token", err, serrors.ErrTokenNotFound)
	}
	return t, nil
}

// tokenWhere renders the filter as a where clause with positional
// arguments.
func tokenWhere(f domain.TokenFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.Identity != "" {
		add("identity = $%d", f.Identity)
	}
	if f.Revoked != nil {
		if *f.Revoked {
			conds = append(conds, "revoked_at is not null")
		} else {
			conds = append(conds, "revoked_at is null")
		}
	}
	if !f.CreatedAfter.IsZero() {
		add("created_at > $%d", f.CreatedAfter)
	}
	if !f.RevokedAfter.IsZero() {
		add("revoked_at > $%d", f.RevokedAfter)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " where " + strings.Join(conds, " and "), args
}

func (s *Store) ListAccessTokens(ctx context.Context, filter domain.TokenFilter, opts domain.ListOptions) ([]*domain.AccessToken, error) {
	where, args := tokenWhere(filter)
	query := `select ` + tokenColumns + ` from oauth_access_tokens` + where + ` order by created_at, token`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" offset $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrap("list access tokens", err, nil)
	}
	defer rows.Close()

	out := []*domain.AccessToken{}
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, wrap("list access tokens", err, nil)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list access tokens", err, nil)
	}
	return out, nil
}

func (s *Store) CountAccessTokens(ctx context.Context, filter domain.TokenFilter) (int64, error) {
	where, args := tokenWhere(filter)

	var n int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from oauth_access_tokens`+where, args...).Scan(&n); err != nil {
		return 0, wrap("count access tokens", err, nil)
	}
	return n, nil
}

func (s *Store) UpdateAccessToken(ctx context.Context, token string, upd domain.AccessTokenUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		update oauth_access_tokens
		set last_access = coalesce($2, last_access),
			prev_access = coalesce($3, prev_access),
			revoked_at = coalesce($4, revoked_at)
		where token = $1
	`, token, nullTime(upd.LastAccess), nullTime(upd.PrevAccess), nullTime(upd.RevokedAt))
	return affected("update access token", res, err, serrors.ErrTokenNotFound)
}

func (s *Store) RevokeAccessTokens(ctx context.Context, clientID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update oauth_access_tokens set revoked_at = $2 where client_id = $1`, clientID, at)
	return wrap("revoke access tokens", err, nil)
}

func (s *Store) DeleteAccessTokens(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `delete from oauth_access_tokens where client_id = $1`, clientID)
	return wrap("delete access tokens", err, nil)
}
