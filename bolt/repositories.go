package bolt

import (
	"context"
	"slices"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

// Clients

func (s *Store) CreateClient(_ context.Context, c *domain.Client) error {
	return s.update("insert client", func(tx *bbolt.Tx) error {
		return insert(tx, clientsBucket, c.ID, c)
	})
}

func (s *Store) GetClient(_ context.Context, id string) (c *domain.Client, err error) {
	err = s.view("get client", func(tx *bbolt.Tx) error {
		c, err = load[domain.Client](tx, clientsBucket, id, serrors.ErrClientNotFound)
		return err
	})
	return c, err
}

func (s *Store) FindClient(ctx context.Context, filter domain.ClientFilter) (*domain.Client, error) {
	if filter.DisplayName == "" && filter.Link == "" {
		return nil, serrors.ErrClientNotFound
	}

	all, err := s.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		if filter.DisplayName != "" && c.DisplayName != filter.DisplayName {
			continue
		}
		if filter.Link != "" && c.Link != filter.Link {
			continue
		}
		return c, nil
	}
	return nil, serrors.ErrClientNotFound
}

func (s *Store) ListClients(_ context.Context) ([]*domain.Client, error) {
	var out []*domain.Client
	err := s.view("list clients", func(tx *bbolt.Tx) error {
		return scan(tx, clientsBucket, func(_ []byte, c *domain.Client) error {
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *domain.Client) int {
		if n := strings.Compare(a.DisplayName, b.DisplayName); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) UpdateClient(_ context.Context, c *domain.Client) error {
	return s.update("update client", func(tx *bbolt.Tx) error {
		return modify(tx, clientsBucket, c.ID, serrors.ErrClientNotFound, func(cur *domain.Client) error {
			granted, revoked := cur.TokensGranted, cur.TokensRevoked
			*cur = *c
			cur.TokensGranted, cur.TokensRevoked = granted, revoked
			return nil
		})
	})
}

func (s *Store) IncrementClientCounters(_ context.Context, id string, granted, revoked int64) error {
	return s.update("increment client counters", func(tx *bbolt.Tx) error {
		return modify(tx, clientsBucket, id, serrors.ErrClientNotFound, func(c *domain.Client) error {
			c.TokensGranted += granted
			c.TokensRevoked += revoked
			return nil
		})
	})
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	return s.update("delete client", func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(clientsBucket))
		if b.Get([]byte(id)) == nil {
			return serrors.ErrClientNotFound
		}
		return b.Delete([]byte(id))
	})
}

// Auth requests

func (s *Store) CreateAuthRequest(_ context.Context, r *domain.AuthRequest) error {
	return s.update("insert auth request", func(tx *bbolt.Tx) error {
		return insert(tx, authRequestsBucket, r.ID, r)
	})
}

func (s *Store) GetAuthRequest(_ context.Context, id string) (r *domain.AuthRequest, err error) {
	err = s.view("get auth request", func(tx *bbolt.Tx) error {
		r, err = load[domain.AuthRequest](tx, authRequestsBucket, id, serrors.ErrAuthRequestNotFound)
		return err
	})
	return r, err
}

func (s *Store) DecideAuthRequest(_ context.Context, id string, at time.Time) (decided bool, err error) {
	err = s.update("decide auth request", func(tx *bbolt.Tx) error {
		return modify(tx, authRequestsBucket, id, serrors.ErrAuthRequestNotFound, func(r *domain.AuthRequest) error {
			if r.AuthorizedAt != nil || r.RevokedAt != nil {
				return nil
			}
			r.AuthorizedAt = &at
			decided = true
			return nil
		})
	})
	return decided && err == nil, err
}

func (s *Store) UpdateAuthRequest(_ context.Context, id string, upd domain.AuthRequestUpdate) error {
	return s.update("update auth request", func(tx *bbolt.Tx) error {
		return modify(tx, authRequestsBucket, id, serrors.ErrAuthRequestNotFound, func(r *domain.AuthRequest) error {
			if upd.GrantCode != nil {
				r.GrantCode = *upd.GrantCode
			}
			if upd.AccessToken != nil {
				r.AccessToken = *upd.AccessToken
			}
			return nil
		})
	})
}

func (s *Store) RevokeAuthRequests(_ context.Context, clientID string, at time.Time) error {
	return s.update("revoke auth requests", func(tx *bbolt.Tx) error {
		return updateWhere(tx, authRequestsBucket, func(r *domain.AuthRequest) bool {
			if r.ClientID != clientID {
				return false
			}
			r.RevokedAt = &at
			return true
		})
	})
}

func (s *Store) DeleteAuthRequests(_ context.Context, clientID string) error {
	return s.update("delete auth requests", func(tx *bbolt.Tx) error {
		return deleteWhere(tx, authRequestsBucket, func(r *domain.AuthRequest) bool {
			return r.ClientID == clientID
		})
	})
}

// Access grants

func (s *Store) CreateAccessGrant(_ context.Context, g *domain.AccessGrant) error {
	return s.update("insert access grant", func(tx *bbolt.Tx) error {
		return insert(tx, grantsBucket, g.Code, g)
	})
}

func (s *Store) GetAccessGrant(_ context.Context, code string) (g *domain.AccessGrant, err error) {
	err = s.view("get access grant", func(tx *bbolt.Tx) error {
		g, err = load[domain.AccessGrant](tx, grantsBucket, code, serrors.ErrGrantNotFound)
		return err
	})
	return g, err
}

func (s *Store) ClaimAccessGrant(_ context.Context, code string, at time.Time) (claimed bool, err error) {
	err = s.update("claim access grant", func(tx *bbolt.Tx) error {
		return modify(tx, grantsBucket, code, serrors.ErrGrantNotFound, func(g *domain.AccessGrant) error {
			if g.IsUsed() {
				return nil
			}
			g.GrantedAt = &at
			claimed = true
			return nil
		})
	})
	return claimed && err == nil, err
}

func (s *Store) UpdateAccessGrant(_ context.Context, code string, upd domain.AccessGrantUpdate) error {
	return s.update("update access grant", func(tx *bbolt.Tx) error {
		return modify(tx, grantsBucket, code, serrors.ErrGrantNotFound, func(g *domain.AccessGrant) error {
			if upd.AccessToken != nil {
				g.AccessToken = upd.AccessToken
			}
			if upd.RevokedAt != nil {
				g.RevokedAt = upd.RevokedAt
			}
			return nil
		})
	})
}

func (s *Store) RevokeAccessGrants(_ context.Context, clientID string, at time.Time) error {
	return s.update("revoke access grants", func(tx *bbolt.Tx) error {
		return updateWhere(tx, grantsBucket, func(g *domain.AccessGrant) bool {
			if g.ClientID != clientID {
				return false
			}
			g.RevokedAt = &at
			return true
		})
	})
}

func (s *Store) DeleteAccessGrants(_ context.Context, clientID string) error {
	return s.update("delete access grants", func(tx *bbolt.Tx) error {
		return deleteWhere(tx, grantsBucket, func(g *domain.AccessGrant) bool {
			return g.ClientID == clientID
		})
	})
}

// Access tokens

func (s *Store) CreateAccessToken(_ context.Context, t *domain.AccessToken) error {
	return s.update("insert access token", func(tx *bbolt.Tx) error {
		return insert(tx, tokensBucket, t.Token, t)
	})
}

func (s *Store) GetAccessToken(_ context.Context, token string) (t *domain.AccessToken, err error) {
	err = s.view("get access token", func(tx *bbolt.Tx) error {
		t, err = load[domain.AccessToken](tx, tokensBucket, token, serrors.ErrTokenNotFound)
		return err
	})
	return t, err
}

// tokens returns the tokens accepted by match, oldest first.
func (s *Store) tokens(op string, match func(*domain.AccessToken) bool) ([]*domain.AccessToken, error) {
	var out []*domain.AccessToken
	err := s.view(op, func(tx *bbolt.Tx) error {
		return scan(tx, tokensBucket, func(_ []byte, t *domain.AccessToken) error {
			if match(t) {
				out = append(out, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *domain.AccessToken) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.Token, b.Token)
	})
	return out, nil
}

func (s *Store) FindActiveAccessToken(_ context.Context, q domain.ActiveTokenQuery) (*domain.AccessToken, error) {
	found, err := s.tokens("find active access token", q.Matches)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, serrors.ErrTokenNotFound
	}
	return found[0], nil
}

func (s *Store) ListAccessTokens(_ context.Context, filter domain.TokenFilter, opts domain.ListOptions) ([]*domain.AccessToken, error) {
	found, err := s.tokens("list access tokens", filter.Matches)
	if err != nil {
		return nil, err
	}
	if opts.Offset >= len(found) {
		return []*domain.AccessToken{}, nil
	}
	found = found[opts.Offset:]
	if opts.Limit > 0 && len(found) > opts.Limit {
		found = found[:opts.Limit]
	}
	return found, nil
}

func (s *Store) CountAccessTokens(_ context.Context, filter domain.TokenFilter) (int64, error) {
	var n int64
	err := s.view("count access tokens", func(tx *bbolt.Tx) error {
		return scan(tx, tokensBucket, func(_ []byte, t *domain.AccessToken) error {
			if filter.Matches(t) {
				n++
			}
			return nil
		})
	})
	return n, err
}

func (s *Store) UpdateAccessToken(_ context.Context, token string, upd domain.AccessTokenUpdate) error {
	return s.update("update access token", func(tx *bbolt.Tx) error {
		return modify(tx, tokensBucket, token, serrors.ErrTokenNotFound, func(t *domain.AccessToken) error {
			if upd.LastAccess != nil {
				t.LastAccess = upd.LastAccess
			}
			if upd.PrevAccess != nil {
				t.PrevAccess = upd.PrevAccess
			}
			if upd.RevokedAt != nil {
				t.RevokedAt = upd.RevokedAt
			}
			return nil
		})
	})
}

func (s *Store) RevokeAccessTokens(_ context.Context, clientID string, at time.Time) error {
	return s.update("revoke access tokens", func(tx *bbolt.Tx) error {
		return updateWhere(tx, tokensBucket, func(t *domain.AccessToken) bool {
			if t.ClientID != clientID {
				return false
			}
			t.RevokedAt = &at
			return true
		})
	})
}

func (s *Store) DeleteAccessTokens(_ context.Context, clientID string) error {
	return s.update("delete access tokens", func(tx *bbolt.Tx) error {
		return deleteWhere(tx, tokensBucket, func(t *domain.AccessToken) bool {
			return t.ClientID == clientID
		})
	})
}

// Issuers

func (s *Store) CreateIssuer(_ context.Context, i *domain.Issuer) error {
	return s.update("insert issuer", func(tx *bbolt.Tx) error {
		return insert(tx, issuersBucket, i.Identifier, i)
	})
}

func (s *Store) GetIssuer(_ context.Context, identifier string) (i *domain.Issuer, err error) {
	err = s.view("get issuer", func(tx *bbolt.Tx) error {
		i, err = load[domain.Issuer](tx, issuersBucket, identifier, serrors.ErrIssuerNotFound)
		return err
	})
	return i, err
}

func (s *Store) UpdateIssuer(_ context.Context, identifier string, upd domain.IssuerUpdate) (i *domain.Issuer, err error) {
	err = s.update("update issuer", func(tx *bbolt.Tx) error {
		return modify(tx, issuersBucket, identifier, serrors.ErrIssuerNotFound, func(cur *domain.Issuer) error {
			upd.Apply(cur)
			i = cur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return i, nil
}
