package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

const authRequestColumns = `id, client_id, scope, redirect_uri, response_type, state, created_at,
	grant_code, access_token, authorized_at, revoked_at`

func (s *Store) CreateAuthRequest(ctx context.Context, r *domain.AuthRequest) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_auth_requests (`+authRequestColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.ClientID, r.Scope.String(), r.RedirectURI, r.ResponseType, r.State, r.CreatedAt,
		r.GrantCode, r.AccessToken, nullTime(r.AuthorizedAt), nullTime(r.RevokedAt))
	return wrap("insert auth request", err, nil)
}

func (s *Store) GetAuthRequest(ctx context.Context, id string) (*domain.AuthRequest, error) {
	var (
		r                   domain.AuthRequest
		sc                  string
		authorized, revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `select `+authRequestColumns+` from oauth_auth_requests where id = $1`, id).
		Scan(&r.ID, &r.ClientID, &sc, &r.RedirectURI, &r.ResponseType, &r.State, &r.CreatedAt,
			&r.GrantCode, &r.AccessToken, &authorized, &revoked)
	if err != nil {
		return nil, wrap("get auth request", err, serrors.ErrAuthRequestNotFound)
	}
	r.Scope = scope.Parse(sc)
	r.CreatedAt = r.CreatedAt.UTC()
	r.AuthorizedAt = timePtr(authorized)
	r.RevokedAt = timePtr(revoked)
	return &r, nil
}

func (s *Store) DecideAuthRequest(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update oauth_auth_requests set authorized_at = $2
		where id = $1 and authorized_at is null and revoked_at is null
	`, id, at)
	return s.compareAndSet(ctx, "decide auth request", res, err,
		`select exists (select 1 from oauth_auth_requests where id = $1)`, id, serrors.ErrAuthRequestNotFound)
}

func (s *Store) UpdateAuthRequest(ctx context.Context, id string, upd domain.AuthRequestUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		update oauth_auth_requests
		set grant_code = coalesce($2, grant_code), access_token = coalesce($3, access_token)
		where id = $1
	`, id, upd.GrantCode, upd.AccessToken)
	return affected("update auth request", res, err, serrors.ErrAuthRequestNotFound)
}

func (s *Store) RevokeAuthRequests(ctx context.Context, clientID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update oauth_auth_requests set revoked_at = $2 where client_id = $1`, clientID, at)
	return wrap("revoke auth requests", err, nil)
}

func (s *Store) DeleteAuthRequests(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `delete from oauth_auth_requests where client_id = $1`, clientID)
	return wrap("delete auth requests", err, nil)
}

// compareAndSet reports whether a guarded update hit its row. A miss is told
// apart from a missing row with the exists query.
func (s *Store) compareAndSet(ctx context.Context, op string, res sql.Result, err error, exists string, id string, notFound error) (bool, error) {
	if err != nil {
		return false, wrap(op, err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(op, err, nil)
	}
	if n == 1 {
		return true, nil
	}

	var found bool
	if err := s.db.QueryRowContext(ctx, exists, id).Scan(&found); err != nil {
		return false, wrap(op, err, nil)
	}
	if !found {
		return false, notFound
	}
	return false, nil
}
