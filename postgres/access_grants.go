package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

const grantColumns = `code, identity, client_id, scope, redirect_uri, created_at, granted_at,
	expires_at, access_token, revoked_at`

func (s *Store) CreateAccessGrant(ctx context.Context, g *domain.AccessGrant) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_access_grants (`+grantColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, g.Code, g.Identity, g.ClientID, g.Scope.String(), g.RedirectURI, g.CreatedAt, nullTime(g.GrantedAt),
		g.ExpiresAt, g.AccessToken, nullTime(g.RevokedAt))
	return wrap("insert access grant", err, nil)
}

func (s *Store) GetAccessGrant(ctx context.Context, code string) (*domain.AccessGrant, error) {
	var (
		g                domain.AccessGrant
		sc               string
		token            sql.NullString
		grantedAt, revAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `select `+grantColumns+` from oauth_access_grants where code = $1`, code).
		Scan(&g.Code, &g.Identity, &g.ClientID, &sc, &g.RedirectURI, &g.CreatedAt, &grantedAt,
			&g.ExpiresAt, &token, &revAt)
	if err != nil {
		return nil, wrap("get access grant", err, serrors.ErrGrantNotFound)
	}

	g.Scope = scope.Parse(sc)
	g.CreatedAt = g.CreatedAt.UTC()
	g.ExpiresAt = g.ExpiresAt.UTC()
	g.GrantedAt = timePtr(grantedAt)
	g.RevokedAt = timePtr(revAt)
	if token.Valid {
		g.AccessToken = &token.String
	}
	return &g, nil
}

// ClaimAccessGrant marks the grant as being redeemed. The guarded update is
// a single statement, so concurrent claimers see exactly one affected row.
func (s *Store) ClaimAccessGrant(ctx context.Context, code string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update oauth_access_grants set granted_at = $2
		where code = $1 and granted_at is null and access_token is null and revoked_at is null
	`, code, at)
	return s.compareAndSet(ctx, "claim access grant", res, err,
		`select exists (select 1 from oauth_access_grants where code = $1)`, code, serrors.ErrGrantNotFound)
}

func (s *Store) UpdateAccessGrant(ctx context.Context, code string, upd domain.AccessGrantUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		update oauth_access_grants
		set access_token = coalesce($2, access_token), revoked_at = coalesce($3, revoked_at)
		where code = $1
	`, code, upd.AccessToken, nullTime(upd.RevokedAt))
	return affected("update access grant", res, err, serrors.ErrGrantNotFound)
}

func (s *Store) RevokeAccessGrants(ctx context.Context, clientID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `update oauth_access_grants set revoked_at = $2 where client_id = $1`, clientID, at)
	return wrap("revoke access grants", err, nil)
}

func (s *Store) DeleteAccessGrants(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `delete from oauth_access_grants where client_id = $1`, clientID)
	return wrap("delete access grants", err, nil)
}
