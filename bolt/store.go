// Package bolt stores authorization state in an embedded bbolt database.
// Every check-and-set runs inside a single read-write transaction, which
// bbolt serializes.
package bolt

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

const (
	clientsBucket      = "clients"
	authRequestsBucket = "auth_requests"
	grantsBucket       = "access_grants"
	tokensBucket       = "access_tokens"
	issuersBucket      = "issuers"
)

var allBuckets = []string{clientsBucket, authRequestsBucket, grantsBucket, tokensBucket, issuersBucket}

// Store implements domain.Repositories on top of a bbolt file.
type Store struct {
	db *bbolt.DB
}

var _ domain.Repositories = (*Store)(nil)

// Open opens (or creates) the database at path and makes sure every bucket
// exists.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug().Str("path", path).Msg("bbolt store opened")
	return &Store{db: db}, nil
}

func (s *Store) Clients() domain.ClientRepository           { return s }
func (s *Store) AuthRequests() domain.AuthRequestRepository { return s }
func (s *Store) AccessGrants() domain.AccessGrantRepository { return s }
func (s *Store) AccessTokens() domain.AccessTokenRepository { return s }
func (s *Store) Issuers() domain.IssuerRepository           { return s }

// Close closes the database file.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

var passthrough = []error{
	serrors.ErrDuplicateKey,
	serrors.ErrClientNotFound,
	serrors.ErrAuthRequestNotFound,
	serrors.ErrGrantNotFound,
	serrors.ErrTokenNotFound,
	serrors.ErrIssuerNotFound,
}

// wrap keeps domain errors as they are and marks everything else as a store
// failure.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}
	return serrors.Store(op, err)
}

func (s *Store) view(op string, fn func(tx *bbolt.Tx) error) error {
	return wrap(op, s.db.View(fn))
}

func (s *Store) update(op string, fn func(tx *bbolt.Tx) error) error {
	return wrap(op, s.db.Update(fn))
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return buf.Bytes(), nil
}

func decode[T any](raw []byte) (*T, error) {
	var v T
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &v, nil
}

// load reads key from bucket. It returns notFound when the key is absent.
func load[T any](tx *bbolt.Tx, bucket, key string, notFound error) (*T, error) {
	raw := tx.Bucket([]byte(bucket)).Get([]byte(key))
	if raw == nil {
		return nil, notFound
	}
	return decode[T](raw)
}

func save(tx *bbolt.Tx, bucket, key string, v any) error {
	raw, err := encode(v)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(key), raw)
}

// insert writes v unless key already exists.
func insert(tx *bbolt.Tx, bucket, key string, v any) error {
	if tx.Bucket([]byte(bucket)).Get([]byte(key)) != nil {
		return serrors.ErrDuplicateKey
	}
	return save(tx, bucket, key, v)
}

// modify loads, mutates and stores a record in one transaction.
func modify[T any](tx *bbolt.Tx, bucket, key string, notFound error, fn func(*T) error) error {
	v, err := load[T](tx, bucket, key, notFound)
	if err != nil {
		return err
	}
	if err := fn(v); err != nil {
		return err
	}
	return save(tx, bucket, key, v)
}

// scan decodes every record of a bucket.
func scan[T any](tx *bbolt.Tx, bucket string, fn func(key []byte, v *T) error) error {
	return tx.Bucket([]byte(bucket)).ForEach(func(k, raw []byte) error {
		v, err := decode[T](raw)
		if err != nil {
			return err
		}
		return fn(k, v)
	})
}

// deleteWhere removes every record for which match returns true.
func deleteWhere[T any](tx *bbolt.Tx, bucket string, match func(*T) bool) error {
	var keys [][]byte
	err := scan(tx, bucket, func(k []byte, v *T) error {
		if match(v) {
			keys = append(keys, bytes.Clone(k))
		}
		return nil
	})
	if err != nil {
		return err
	}
	b := tx.Bucket([]byte(bucket))
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// updateWhere rewrites every record for which fn returns true.
func updateWhere[T any](tx *bbolt.Tx, bucket string, fn func(*T) bool) error {
	changed := map[string]*T{}
	err := scan(tx, bucket, func(k []byte, v *T) error {
		if fn(v) {
			changed[string(k)] = v
		}
		return nil
	})
	if err != nil {
		return err
	}
	for k, v := range changed {
		if err := save(tx, bucket, k, v); err != nil {
			return err
		}
	}
	return nil
}
