package postgres

import (
	"context"
	"database/sql"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

const clientColumns = `id, secret, display_name, link, image_url, redirect_uri, scope, notes,
	created_at, revoked_at, tokens_granted, tokens_revoked`

func scanClient(row scanner) (*domain.Client, error) {
	var (
		c       domain.Client
		sc      string
		revoked sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Secret, &c.DisplayName, &c.Link, &c.ImageURL, &c.RedirectURI, &sc, &c.Notes,
		&c.CreatedAt, &revoked, &c.TokensGranted, &c.TokensRevoked)
	if err != nil {
		return nil, err
	}
	c.Scope = scope.Parse(sc)
	c.CreatedAt = c.CreatedAt.UTC()
	c.RevokedAt = timePtr(revoked)
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, c *domain.Client) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_clients (`+clientColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.Secret, c.DisplayName, c.Link, c.ImageURL, c.RedirectURI, c.Scope.String(), c.Notes,
		c.CreatedAt, nullTime(c.RevokedAt), c.TokensGranted, c.TokensRevoked)
	return wrap("insert client", err, nil)
}

func (s *Store) GetClient(ctx context.Context, id string) (*domain.Client, error) {
	row := s.db.QueryRowContext(ctx, `select `+clientColumns+` from oauth_clients where id = $1`, id)
	c, err := scanClient(row)
	if err != nil {
		return nil, wrap("get client", err, serrors.ErrClientNotFound)
	}
	return c, nil
}

func (s *Store) FindClient(ctx context.Context, filter domain.ClientFilter) (*domain.Client, error) {
	if filter.DisplayName == "" && filter.Link == "" {
		return nil, serrors.ErrClientNotFound
	}

	row := s.db.QueryRowContext(ctx, `
		select `+clientColumns+` from oauth_clients
		where ($1 = '' or display_name = $1) and ($2 = '' or link = $2)
		order by display_name, id
		limit 1
	`, filter.DisplayName, filter.Link)
	c, err := scanClient(row)
	if err != nil {
		return nil, wrap("find client", err, serrors.ErrClientNotFound)
	}
	return c, nil
}

func (s *Store) ListClients(ctx context.Context) ([]*domain.Client, error) {
	rows, err := s.db.QueryContext(ctx, `select `+clientColumns+` from oauth_clients order by display_name, id`)
	if err != nil {
		return nil, wrap("list clients", err, nil)
	}
	defer rows.Close()

	var out []*domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, wrap("list clients", err, nil)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list clients", err, nil)
	}
	return out, nil
}

func (s *Store) UpdateClient(ctx context.Context, c *domain.Client) error {
	res, err := s.db.ExecContext(ctx, `
		update oauth_clients
		set secret = $2, display_name = $3, link = $4, image_url = $5, redirect_uri = $6,
			scope = $7, notes = $8, created_at = $9, revoked_at = $10
		where id = $1
	`, c.ID, c.Secret, c.DisplayName, c.Link, c.ImageURL, c.RedirectURI, c.Scope.String(), c.Notes,
		c.CreatedAt, nullTime(c.RevokedAt))
	return affected("update client", res, err, serrors.ErrClientNotFound)
}

func (s *Store) IncrementClientCounters(ctx context.Context, id string, granted, revoked int64) error {
	res, err := s.db.ExecContext(ctx, `
		update oauth_clients
		set tokens_granted = tokens_granted + $2, tokens_revoked = tokens_revoked + $3
		where id = $1
	`, id, granted, revoked)
	return affected("increment client counters", res, err, serrors.ErrClientNotFound)
}

func (s *Store) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from oauth_clients where id = $1`, id)
	return affected("delete client", res, err, serrors.ErrClientNotFound)
}
