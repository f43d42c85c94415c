// Package postgres implements the repositories on PostgreSQL through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

const uniqueViolation = "23505"

// Store implements domain.Repositories on a *sql.DB.
type Store struct {
	db *sql.DB
}

var _ domain.Repositories = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, serrors.Store("ping", err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().Msg("PostgreSQL store ready")
	return s, nil
}

// New wraps an open database. The caller is responsible for the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return serrors.Store("migrate", err)
	}
	return nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Clients() domain.ClientRepository           { return s }
func (s *Store) AuthRequests() domain.AuthRequestRepository { return s }
func (s *Store) AccessGrants() domain.AccessGrantRepository { return s }
func (s *Store) AccessTokens() domain.AccessTokenRepository { return s }
func (s *Store) Issuers() domain.IssuerRepository           { return s }

func (s *Store) Close(context.Context) error { return s.db.Close() }

func wrap(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return serrors.ErrDuplicateKey
	}
	return serrors.Store(op, err)
}

// affected turns a zero-row write into notFound.
func affected(op string, res sql.Result, err error, notFound error) error {
	if err != nil {
		return wrap(op, err, notFound)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(op, err, notFound)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
