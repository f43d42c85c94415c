// Package memory provides a process-local implementation of every
// repository. It is used by tests and single-process deployments.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

// Store keeps all records in maps guarded by a single RWMutex. Every
// check-and-set runs under the write lock.
type Store struct {
	mu sync.RWMutex

	clients      map[string]*domain.Client
	authRequests map[string]*domain.AuthRequest
	grants       map[string]*domain.AccessGrant
	tokens       map[string]*domain.AccessToken
	issuers      map[string]*domain.Issuer
}

var _ domain.Repositories = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		clients:      make(map[string]*domain.Client),
		authRequests: make(map[string]*domain.AuthRequest),
		grants:       make(map[string]*domain.AccessGrant),
		tokens:       make(map[string]*domain.AccessToken),
		issuers:      make(map[string]*domain.Issuer),
	}
}

func (s *Store) Clients() domain.ClientRepository           { return s }
func (s *Store) AuthRequests() domain.AuthRequestRepository { return s }
func (s *Store) AccessGrants() domain.AccessGrantRepository { return s }
func (s *Store) AccessTokens() domain.AccessTokenRepository { return s }
func (s *Store) Issuers() domain.IssuerRepository           { return s }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

// Records are copied on the way in and out. Time pointers are never written
// through, so sharing them is safe.

func copyClient(c *domain.Client) *domain.Client {
	cp := *c
	cp.Scope = slices.Clone(c.Scope)
	return &cp
}

func copyAuthRequest(r *domain.AuthRequest) *domain.AuthRequest {
	cp := *r
	cp.Scope = slices.Clone(r.Scope)
	return &cp
}

func copyGrant(g *domain.AccessGrant) *domain.AccessGrant {
	cp := *g
	cp.Scope = slices.Clone(g.Scope)
	return &cp
}

func copyToken(t *domain.AccessToken) *domain.AccessToken {
	cp := *t
	cp.Scope = slices.Clone(t.Scope)
	return &cp
}

func timePtr(t time.Time) *time.Time { return &t }

// Clients

func (s *Store) CreateClient(_ context.Context, c *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[c.ID]; ok {
		return serrors.ErrDuplicateKey
	}
	s.clients[c.ID] = copyClient(c)
	return nil
}

func (s *Store) GetClient(_ context.Context, id string) (*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[id]
	if !ok {
		return nil, serrors.ErrClientNotFound
	}
	return copyClient(c), nil
}

func (s *Store) FindClient(_ context.Context, filter domain.ClientFilter) (*domain.Client, error) {
	if filter.DisplayName == "" && filter.Link == "" {
		return nil, serrors.ErrClientNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.sortedClients() {
		if filter.DisplayName != "" && c.DisplayName != filter.DisplayName {
			continue
		}
		if filter.Link != "" && c.Link != filter.Link {
			continue
		}
		return copyClient(c), nil
	}
	return nil, serrors.ErrClientNotFound
}

func (s *Store) ListClients(_ context.Context) ([]*domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedClients()
	out := make([]*domain.Client, 0, len(sorted))
	for _, c := range sorted {
		out = append(out, copyClient(c))
	}
	return out, nil
}

func (s *Store) sortedClients() []*domain.Client {
	out := make([]*domain.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *domain.Client) int {
		if n := strings.Compare(a.DisplayName, b.DisplayName); n != 0 {
			return n
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) UpdateClient(_ context.Context, c *domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.clients[c.ID]
	if !ok {
		return serrors.ErrClientNotFound
	}
	upd := copyClient(c)
	upd.TokensGranted = cur.TokensGranted
	upd.TokensRevoked = cur.TokensRevoked
	s.clients[c.ID] = upd
	return nil
}

func (s *Store) IncrementClientCounters(_ context.Context, id string, granted, revoked int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.clients[id]
	if !ok {
		return serrors.ErrClientNotFound
	}
	c.TokensGranted += granted
	c.TokensRevoked += revoked
	return nil
}

func (s *Store) DeleteClient(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[id]; !ok {
		return serrors.ErrClientNotFound
	}
	delete(s.clients, id)
	return nil
}

// Auth requests

func (s *Store) CreateAuthRequest(_ context.Context, r *domain.AuthRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authRequests[r.ID]; ok {
		return serrors.ErrDuplicateKey
	}
	s.authRequests[r.ID] = copyAuthRequest(r)
	return nil
}

func (s *Store) GetAuthRequest(_ context.Context, id string) (*domain.AuthRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.authRequests[id]
	if !ok {
		return nil, serrors.ErrAuthRequestNotFound
	}
	return copyAuthRequest(r), nil
}

func (s *Store) DecideAuthRequest(_ context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.authRequests[id]
	if !ok {
		return false, serrors.ErrAuthRequestNotFound
	}
	if r.AuthorizedAt != nil || r.RevokedAt != nil {
		return false, nil
	}
	r.AuthorizedAt = timePtr(at)
	return true, nil
}

func (s *Store) UpdateAuthRequest(_ context.Context, id string, upd domain.AuthRequestUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.authRequests[id]
	if !ok {
		return serrors.ErrAuthRequestNotFound
	}
	if upd.GrantCode != nil {
		r.GrantCode = *upd.GrantCode
	}
	if upd.AccessToken != nil {
		r.AccessToken = *upd.AccessToken
	}
	return nil
}

func (s *Store) RevokeAuthRequests(_ context.Context, clientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.authRequests {
		if r.ClientID == clientID {
			r.RevokedAt = timePtr(at)
		}
	}
	return nil
}

func (s *Store) DeleteAuthRequests(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, r := range s.authRequests {
		if r.ClientID == clientID {
			delete(s.authRequests, id)
		}
	}
	return nil
}

// Access grants

func (s *Store) CreateAccessGrant(_ context.Context, g *domain.AccessGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.grants[g.Code]; ok {
		return serrors.ErrDuplicateKey
	}
	s.grants[g.Code] = copyGrant(g)
	return nil
}

func (s *Store) GetAccessGrant(_ context.Context, code string) (*domain.AccessGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.grants[code]
	if !ok {
		return nil, serrors.ErrGrantNotFound
	}
	return copyGrant(g), nil
}

func (s *Store) ClaimAccessGrant(_ context.Context, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[code]
	if !ok {
		return false, serrors.ErrGrantNotFound
	}
	if g.IsUsed() {
		return false, nil
	}
	g.GrantedAt = timePtr(at)
	return true, nil
}

func (s *Store) UpdateAccessGrant(_ context.Context, code string, upd domain.AccessGrantUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.grants[code]
	if !ok {
		return serrors.ErrGrantNotFound
	}
	if upd.AccessToken != nil {
		tok := *upd.AccessToken
		g.AccessToken = &tok
	}
	if upd.RevokedAt != nil {
		g.RevokedAt = timePtr(*upd.RevokedAt)
	}
	return nil
}

func (s *Store) RevokeAccessGrants(_ context.Context, clientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range s.grants {
		if g.ClientID == clientID {
			g.RevokedAt = timePtr(at)
		}
	}
	return nil
}

func (s *Store) DeleteAccessGrants(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for code, g := range s.grants {
		if g.ClientID == clientID {
			delete(s.grants, code)
		}
	}
	return nil
}

// Access tokens

func (s *Store) CreateAccessToken(_ context.Context, t *domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[t.Token]; ok {
		return serrors.ErrDuplicateKey
	}
	s.tokens[t.Token] = copyToken(t)
	return nil
}

func (s *Store) GetAccessToken(_ context.Context, token string) (*domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tokens[token]
	if !ok {
		return nil, serrors.ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (s *Store) FindActiveAccessToken(_ context.Context, q domain.ActiveTokenQuery) (*domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.sortedTokens() {
		if q.Matches(t) {
			return copyToken(t), nil
		}
	}
	return nil, serrors.ErrTokenNotFound
}

func (s *Store) ListAccessTokens(_ context.Context, filter domain.TokenFilter, opts domain.ListOptions) ([]*domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AccessToken, 0)
	skipped := 0
	for _, t := range s.sortedTokens() {
		if !filter.Matches(t) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		out = append(out, copyToken(t))
	}
	return out, nil
}

func (s *Store) CountAccessTokens(_ context.Context, filter domain.TokenFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, t := range s.tokens {
		if filter.Matches(t) {
			n++
		}
	}
	return n, nil
}

func (s *Store) sortedTokens() []*domain.AccessToken {
	out := make([]*domain.AccessToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b *domain.AccessToken) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return strings.Compare(a.Token, b.Token)
	})
	return out
}

func (s *Store) UpdateAccessToken(_ context.Context, token string, upd domain.AccessTokenUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[token]
	if !ok {
		return serrors.ErrTokenNotFound
	}
	if upd.LastAccess != nil {
		t.LastAccess = timePtr(*upd.LastAccess)
	}
	if upd.PrevAccess != nil {
		t.PrevAccess = timePtr(*upd.PrevAccess)
	}
	if upd.RevokedAt != nil {
		t.RevokedAt = timePtr(*upd.RevokedAt)
	}
	return nil
}

func (s *Store) RevokeAccessTokens(_ context.Context, clientID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.ClientID == clientID {
			t.RevokedAt = timePtr(at)
		}
	}
	return nil
}

func (s *Store) DeleteAccessTokens(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tok, t := range s.tokens {
		if t.ClientID == clientID {
			delete(s.tokens, tok)
		}
	}
	return nil
}

// Issuers

func (s *Store) CreateIssuer(_ context.Context, i *domain.Issuer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.issuers[i.Identifier]; ok {
		return serrors.ErrDuplicateKey
	}
	cp := *i
	s.issuers[i.Identifier] = &cp
	return nil
}

func (s *Store) GetIssuer(_ context.Context, identifier string) (*domain.Issuer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.issuers[identifier]
	if !ok {
		return nil, serrors.ErrIssuerNotFound
	}
	cp := *i
	return &cp, nil
}

func (s *Store) UpdateIssuer(_ context.Context, identifier string, upd domain.IssuerUpdate) (*domain.Issuer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.issuers[identifier]
	if !ok {
		return nil, serrors.ErrIssuerNotFound
	}
	upd.Apply(i)
	cp := *i
	return &cp, nil
}
