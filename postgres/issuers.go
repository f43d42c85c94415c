package postgres

import (
	"context"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

const issuerColumns = `identifier, hmac_secret, public_key, notes, created_at, updated_at`

func scanIssuer(row scanner) (*domain.Issuer, error) {
	var i domain.Issuer
	if err := row.Scan(&i.Identifier, &i.HMACSecret, &i.PublicKey, &i.Notes, &i.CreatedAt, &i.UpdatedAt); err != nil {
		return nil, err
	}
	i.CreatedAt = i.CreatedAt.UTC()
	i.UpdatedAt = i.UpdatedAt.UTC()
	return &i, nil
}

func (s *Store) CreateIssuer(ctx context.Context, i *domain.Issuer) error {
	_, err := s.db.ExecContext(ctx, `
		insert into oauth_issuers (`+issuerColumns+`)
		values ($1, $2, $3, $4, $5, $6)
	`, i.Identifier, i.HMACSecret, i.PublicKey, i.Notes, i.CreatedAt, i.UpdatedAt)
	return wrap("insert issuer", err, nil)
}

func (s *Store) GetIssuer(ctx context.Context, identifier string) (*domain.Issuer, error) {
	row := s.db.QueryRowContext(ctx, `select `+issuerColumns+` from oauth_issuers where identifier = $1`, identifier)
	i, err := scanIssuer(row)
	if err != nil {
		return nil, wrap("get issuer", err, serrors.ErrIssuerNotFound)
	}
	return i, nil
}

func (s *Store) UpdateIssuer(ctx context.Context, identifier string, upd domain.IssuerUpdate) (*domain.Issuer, error) {
	row := s.db.QueryRowContext(ctx, `
		update oauth_issuers
		set hmac_secret = coalesce($2, hmac_secret),
			public_key = coalesce($3, public_key),
			notes = coalesce($4, notes),
			updated_at = $5
		where identifier = $1
		returning `+issuerColumns,
		identifier, upd.HMACSecret, upd.PublicKey, upd.Notes, upd.UpdatedAt)
	i, err := scanIssuer(row)
	if err != nil {
		return nil, wrap("update issuer", err, serrors.ErrIssuerNotFound)
	}
	return i, nil
}
