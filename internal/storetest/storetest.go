// Package storetest holds the behavioural checks every repository backend
// must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// Factory returns a fresh, empty backend for a single subtest.
type Factory func(t *testing.T) domain.Repositories

// base is truncated to milliseconds so every backend round-trips it exactly.
var base = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// Run executes the whole suite against the backend produced by newRepos.
func Run(t *testing.T, newRepos Factory) {
	t.Run("Clients", func(t *testing.T) { testClients(t, newRepos) })
	t.Run("AuthRequests", func(t *testing.T) { testAuthRequests(t, newRepos) })
	t.Run("AccessGrants", func(t *testing.T) { testAccessGrants(t, newRepos) })
	t.Run("AccessTokens", func(t *testing.T) { testAccessTokens(t, newRepos) })
	t.Run("Issuers", func(t *testing.T) { testIssuers(t, newRepos) })
}

func ptr[T any](v T) *T { return &v }

func newClient(id, name string) *domain.Client {
	return &domain.Client{
		ID:          id,
		Secret:      "secret-" + id,
		DisplayName: name,
		Link:        "https://" + id + ".example.com",
		RedirectURI: "https://" + id + ".example.com/cb",
		Scope:       scope.Normalize("read", "write"),
		CreatedAt:   base,
	}
}

func testClients(t *testing.T, newRepos Factory) {
	ctx := context.Background()

	t.Run("CreateGetAndDuplicate", func(t *testing.T) {
		repo := newRepos(t).Clients()
		c := newClient("c1", "Alpha")
		require.NoError(t, repo.CreateClient(ctx, c))

		got, err := repo.GetClient(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Alpha", got.DisplayName)
		assert.Equal(t, c.Secret, got.Secret)
		assert.True(t, got.Scope.Equal(c.Scope))
		assert.True(t, got.CreatedAt.Equal(base))
		assert.Nil(t, got.RevokedAt)

		assert.ErrorIs(t, repo.CreateClient(ctx, newClient("c1", "Other")), serrors.ErrDuplicateKey)

		_, err = repo.GetClient(ctx, "missing")
		assert.ErrorIs(t, err, serrors.ErrClientNotFound)
	})

	t.Run("FindAndList", func(t *testing.T) {
		repo := newRepos(t).Clients()
		require.NoError(t, repo.CreateClient(ctx, newClient("c2", "Charlie")))
		require.NoError(t, repo.CreateClient(ctx, newClient("c1", "Bravo")))
		require.NoError(t, repo.CreateClient(ctx, newClient("c3", "Alpha")))

		got, err := repo.FindClient(ctx, domain.ClientFilter{DisplayName: "Bravo"})
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ID)

		got, err = repo.FindClient(ctx, domain.ClientFilter{Link: "https://c2.example.com"})
		require.NoError(t, err)
		assert.Equal(t, "c2", got.ID)

		_, err = repo.FindClient(ctx, domain.ClientFilter{DisplayName: "Bravo", Link: "https://c2.example.com"})
		assert.ErrorIs(t, err, serrors.ErrClientNotFound)

		list, err := repo.ListClients(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []string{"Alpha", "Bravo", "Charlie"},
			[]string{list[0].DisplayName, list[1].DisplayName, list[2].DisplayName})
	})

	t.Run("UpdateKeepsCounters", func(t *testing.T) {
		repo := newRepos(t).Clients()
		require.NoError(t, repo.CreateClient(ctx, newClient("c1", "Alpha")))
		require.NoError(t, repo.IncrementClientCounters(ctx, "c1", 2, 1))

		c, err := repo.GetClient(ctx, "c1")
		require.NoError(t, err)
		c.DisplayName = "Renamed"
		c.Scope = scope.Normalize("admin")
		c.TokensGranted = 100
		c.RevokedAt = ptr(base.Add(time.Minute))
		require.NoError(t, repo.UpdateClient(ctx, c))

		got, err := repo.GetClient(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.DisplayName)
		assert.True(t, got.Scope.Equal(scope.Set{"admin"}))
		assert.EqualValues(t, 2, got.TokensGranted)
		assert.EqualValues(t, 1, got.TokensRevoked)
		require.NotNil(t, got.RevokedAt)
		assert.True(t, got.RevokedAt.Equal(base.Add(time.Minute)))

		assert.ErrorIs(t, repo.UpdateClient(ctx, newClient("nope", "x")), serrors.ErrClientNotFound)
	})

	t.Run("ConcurrentCounters", func(t *testing.T) {
		repo := newRepos(t).Clients()
		require.NoError(t, repo.CreateClient(ctx, newClient("c1", "Alpha")))

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, repo.IncrementClientCounters(ctx, "c1", 1, 0))
			}()
		}
		wg.Wait()

		got, err := repo.GetClient(ctx, "c1")
		require.NoError(t, err)
		assert.EqualValues(t, 10, got.TokensGranted)
	})

	t.Run("Delete", func(t *testing.T) {
		repo := newRepos(t).Clients()
		require.NoError(t, repo.CreateClient(ctx, newClient("c1", "Alpha")))
		require.NoError(t, repo.DeleteClient(ctx, "c1"))

		_, err := repo.GetClient(ctx, "c1")
		assert.ErrorIs(t, err, serrors.ErrClientNotFound)
		assert.ErrorIs(t, repo.DeleteClient(ctx, "c1"), serrors.ErrClientNotFound)
	})
}

func newAuthRequest(id, clientID string) *domain.AuthRequest {
	return &domain.AuthRequest{
		ID:           id,
		ClientID:     clientID,
		Scope:        scope.Normalize("read"),
		RedirectURI:  "https://app.example.com/cb",
		ResponseType: domain.ResponseTypeCode,
		State:        "xyz",
		CreatedAt:    base,
	}
}

func testAuthRequests(t *testing.T, newRepos Factory) {
	ctx := context.Background()

	t.Run("CreateGet", func(t *testing.T) {
		repo := newRepos(t).AuthRequests()
		require.NoError(t, repo.CreateAuthRequest(ctx, newAuthRequest("r1", "c1")))

		got, err := repo.GetAuthRequest(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "c1", got.ClientID)
		assert.Equal(t, "xyz", got.State)
		assert.Equal(t, domain.ResponseTypeCode, got.ResponseType)
		assert.False(t, got.IsDecided())

		_, err = repo.GetAuthRequest(ctx, "missing")
		assert.ErrorIs(t, err, serrors.ErrAuthRequestNotFound)
	})

	t.Run("DecideOnce", func(t *testing.T) {
		repo := newRepos(t).AuthRequests()
		require.NoError(t, repo.CreateAuthRequest(ctx, newAuthRequest("r1", "c1")))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.DecideAuthRequest(ctx, "r1", base.Add(time.Second))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())

		got, err := repo.GetAuthRequest(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got.AuthorizedAt)
		assert.True(t, got.AuthorizedAt.Equal(base.Add(time.Second)))

		_, err = repo.DecideAuthRequest(ctx, "missing", base)
		assert.ErrorIs(t, err, serrors.ErrAuthRequestNotFound)
	})

	t.Run("UpdateRevokeDelete", func(t *testing.T) {
		repo := newRepos(t).AuthRequests()
		require.NoError(t, repo.CreateAuthRequest(ctx, newAuthRequest("r1", "c1")))
		require.NoError(t, repo.CreateAuthRequest(ctx, newAuthRequest("r2", "c2")))

		require.NoError(t, repo.UpdateAuthRequest(ctx, "r1", domain.AuthRequestUpdate{GrantCode: ptr("code-1")}))
		got, err := repo.GetAuthRequest(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, "code-1", got.GrantCode)
		assert.Empty(t, got.AccessToken)

		require.NoError(t, repo.RevokeAuthRequests(ctx, "c1", base.Add(time.Hour)))
		got, err = repo.GetAuthRequest(ctx, "r1")
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)

		ok, err := repo.DecideAuthRequest(ctx, "r1", base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.False(t, ok)

		other, err := repo.GetAuthRequest(ctx, "r2")
		require.NoError(t, err)
		assert.Nil(t, other.RevokedAt)

		require.NoError(t, repo.DeleteAuthRequests(ctx, "c1"))
		_, err = repo.GetAuthRequest(ctx, "r1")
		assert.ErrorIs(t, err, serrors.ErrAuthRequestNotFound)
		_, err = repo.GetAuthRequest(ctx, "r2")
		assert.NoError(t, err)

		assert.ErrorIs(t, repo.UpdateAuthRequest(ctx, "r1", domain.AuthRequestUpdate{AccessToken: ptr("t")}),
			serrors.ErrAuthRequestNotFound)
	})
}

func newGrant(code, clientID string) *domain.AccessGrant {
	return &domain.AccessGrant{
		Code:        code,
		Identity:    "alice",
		ClientID:    clientID,
		Scope:       scope.Normalize("read"),
		RedirectURI: "https://app.example.com/cb",
		CreatedAt:   base,
		ExpiresAt:   base.Add(domain.DefaultGrantLifetime),
	}
}

func testAccessGrants(t *testing.T, newRepos Factory) {
	ctx := context.Background()

	t.Run("CreateGet", func(t *testing.T) {
		repo := newRepos(t).AccessGrants()
		require.NoError(t, repo.CreateAccessGrant(ctx, newGrant("g1", "c1")))
		assert.ErrorIs(t, repo.CreateAccessGrant(ctx, newGrant("g1", "c1")), serrors.ErrDuplicateKey)

		got, err := repo.GetAccessGrant(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Identity)
		assert.True(t, got.ExpiresAt.Equal(base.Add(domain.DefaultGrantLifetime)))
		assert.False(t, got.IsUsed())

		_, err = repo.GetAccessGrant(ctx, "missing")
		assert.ErrorIs(t, err, serrors.ErrGrantNotFound)
	})

	t.Run("ClaimIsExclusive", func(t *testing.T) {
		repo := newRepos(t).AccessGrants()
		require.NoError(t, repo.CreateAccessGrant(ctx, newGrant("g1", "c1")))

		const workers = 16
		var wins atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				ok, err := repo.ClaimAccessGrant(ctx, "g1", base.Add(time.Second))
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()
		assert.EqualValues(t, 1, wins.Load())

		got, err := repo.GetAccessGrant(ctx, "g1")
		require.NoError(t, err)
		assert.True(t, got.IsUsed())

		_, err = repo.ClaimAccessGrant(ctx, "missing", base)
		assert.ErrorIs(t, err, serrors.ErrGrantNotFound)
	})

	t.Run("RevokedCannotBeClaimed", func(t *testing.T) {
		repo := newRepos(t).AccessGrants()
		require.NoError(t, repo.CreateAccessGrant(ctx, newGrant("g1", "c1")))
		require.NoError(t, repo.UpdateAccessGrant(ctx, "g1", domain.AccessGrantUpdate{RevokedAt: ptr(base)}))

		ok, err := repo.ClaimAccessGrant(ctx, "g1", base.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UpdateRevokeDelete", func(t *testing.T) {
		repo := newRepos(t).AccessGrants()
		require.NoError(t, repo.CreateAccessGrant(ctx, newGrant("g1", "c1")))
		require.NoError(t, repo.CreateAccessGrant(ctx, newGrant("g2", "c2")))

		require.NoError(t, repo.UpdateAccessGrant(ctx, "g1", domain.AccessGrantUpdate{AccessToken: ptr("tok")}))
		got, err := repo.GetAccessGrant(ctx, "g1")
		require.NoError(t, err)
		require.NotNil(t, got.AccessToken)
		assert.Equal(t, "tok", *got.AccessToken)

		require.NoError(t, repo.RevokeAccessGrants(ctx, "c2", base))
		got, err = repo.GetAccessGrant(ctx, "g2")
		require.NoError(t, err)
		assert.NotNil(t, got.RevokedAt)

		require.NoError(t, repo.DeleteAccessGrants(ctx, "c1"))
		_, err = repo.GetAccessGrant(ctx, "g1")
		assert.ErrorIs(t, err, serrors.ErrGrantNotFound)
		_, err = repo.GetAccessGrant(ctx, "g2")
		assert.NoError(t, err)

		assert.ErrorIs(t, repo.UpdateAccessGrant(ctx, "g1", domain.AccessGrantUpdate{RevokedAt: ptr(base)}),
			serrors.ErrGrantNotFound)
	})
}

func newToken(tok, identity, clientID string, created time.Time, scopes ...string) *domain.AccessToken {
	return &domain.AccessToken{
		Token:     tok,
		Identity:  identity,
		ClientID:  clientID,
		Scope:     scope.Normalize(scopes...),
		CreatedAt: created,
	}
}

func testAccessTokens(t *testing.T, newRepos Factory) {
	ctx := context.Background()

	t.Run("CreateGet", func(t *testing.T) {
		repo := newRepos(t).AccessTokens()
		tok := newToken("t1", "alice", "c1", base, "read")
		tok.ExpiresAt = ptr(base.Add(time.Hour))
		require.NoError(t, repo.CreateAccessToken(ctx, tok))
		assert.ErrorIs(t, repo.CreateAccessToken(ctx, tok), serrors.ErrDuplicateKey)

		got, err := repo.GetAccessToken(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.Identity)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, got.ExpiresAt.Equal(base.Add(time.Hour)))
		assert.Nil(t, got.LastAccess)

		_, err = repo.GetAccessToken(ctx, "missing")
		assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
	})

	t.Run("FindActive", func(t *testing.T) {
		repo := newRepos(t).AccessTokens()

		revoked := newToken("t-revoked", "alice", "c1", base, "read", "write")
		revoked.RevokedAt = ptr(base)
		expired := newToken("t-expired", "alice", "c1", base, "read", "write")
		expired.ExpiresAt = ptr(base.Add(time.Minute))
		subset := newToken("t-subset", "alice", "c1", base, "read")
		active := newToken("t-active", "alice", "c1", base.Add(time.Second), "write", "read")

		for _, tok := range []*domain.AccessToken{revoked, expired, subset, active} {
			require.NoError(t, repo.CreateAccessToken(ctx, tok))
		}

		got, err := repo.FindActiveAccessToken(ctx, domain.ActiveTokenQuery{
			Identity: "alice",
			ClientID: "c1",
			Scope:    scope.Normalize("read", "write"),
			Now:      base.Add(time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, "t-active", got.Token)

		_, err = repo.FindActiveAccessToken(ctx, domain.ActiveTokenQuery{
			Identity: "alice",
			ClientID: "c1",
			Scope:    scope.Normalize("read", "write", "admin"),
			Now:      base.Add(time.Hour),
		})
		assert.ErrorIs(t, err, serrors.ErrTokenNotFound)

		_, err = repo.FindActiveAccessToken(ctx, domain.ActiveTokenQuery{
			Identity: "bob",
			ClientID: "c1",
			Scope:    scope.Normalize("read"),
			Now:      base.Add(time.Hour),
		})
		assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
	})

	t.Run("FindActiveHonoursExpiry", func(t *testing.T) {
		repo := newRepos(t).AccessTokens()
		tok := newToken("t1", "alice", "c1", base, "read")
		tok.ExpiresAt = ptr(base.Add(time.Minute))
		require.NoError(t, repo.CreateAccessToken(ctx, tok))

		q := domain.ActiveTokenQuery{Identity: "alice", ClientID: "c1", Scope: scope.Set{"read"}, Now: base}
		_, err := repo.FindActiveAccessToken(ctx, q)
		require.NoError(t, err)

		q.Now = base.Add(time.Minute)
		_, err = repo.FindActiveAccessToken(ctx, q)
		assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
	})

	t.Run("ListAndCount", func(t *testing.T) {
		repo := newRepos(t).AccessTokens()
		for i := range 5 {
			tok := newToken(fmt.Sprintf("t%d", i), "alice", "c1", base.Add(time.Duration(4-i)*time.Minute), "read")
			require.NoError(t, repo.CreateAccessToken(ctx, tok))
		}
		other := newToken("o1", "bob", "c2", base, "read")
		other.RevokedAt = ptr(base.Add(time.Hour))
		require.NoError(t, repo.CreateAccessToken(ctx, other))

		list, err := repo.ListAccessTokens(ctx, domain.TokenFilter{ClientID: "c1"}, domain.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 5)
		assert.Equal(t, "t4", list[0].Token)
		assert.Equal(t, "t0", list[4].Token)

		page, err := repo.ListAccessTokens(ctx, domain.TokenFilter{ClientID: "c1"}, domain.ListOptions{Offset: 1, Limit: 2})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "t3", page[0].Token)
		assert.Equal(t, "t2", page[1].Token)

		byIdentity, err := repo.ListAccessTokens(ctx, domain.TokenFilter{Identity: "bob"}, domain.ListOptions{})
		require.NoError(t, err)
		require.Len(t, byIdentity, 1)
		assert.Equal(t, "o1", byIdentity[0].Token)

		n, err := repo.CountAccessTokens(ctx, domain.TokenFilter{})
		require.NoError(t, err)
		assert.EqualValues(t, 6, n)

		n, err = repo.CountAccessTokens(ctx, domain.TokenFilter{Revoked: ptr(true)})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = repo.CountAccessTokens(ctx, domain.TokenFilter{Revoked: ptr(false), ClientID: "c1"})
		require.NoError(t, err)
		assert.EqualValues(t, 5, n)

		n, err = repo.CountAccessTokens(ctx, domain.TokenFilter{CreatedAfter: base.Add(90 * time.Second)})
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		n, err = repo.CountAccessTokens(ctx, domain.TokenFilter{RevokedAfter: base.Add(30 * time.Minute)})
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("UpdateRevokeDelete", func(t *testing.T) {
		repo := newRepos(t).AccessTokens()
		require.NoError(t, repo.CreateAccessToken(ctx, newToken("t1", "alice", "c1", base, "read")))
		require.NoError(t, repo.CreateAccessToken(ctx, newToken("t2", "alice", "c2", base, "read")))

		require.NoError(t, repo.UpdateAccessToken(ctx, "t1", domain.AccessTokenUpdate{
			LastAccess: ptr(base.Add(time.Hour)),
			PrevAccess: ptr(base),
		}))
		got, err := repo.GetAccessToken(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, got.LastAccess)
		require.NotNil(t, got.PrevAccess)
		assert.True(t, got.LastAccess.Equal(base.Add(time.Hour)))
		assert.True(t, got.PrevAccess.Equal(base))
		assert.Nil(t, got.RevokedAt)

		require.NoError(t, repo.RevokeAccessTokens(ctx, "c1", base.Add(2*time.Hour)))
		got, err = repo.GetAccessToken(ctx, "t1")
		require.NoError(t, err)
		require.NotNil(t, got.RevokedAt)
		assert.False(t, got.IsActive(base.Add(3*time.Hour)))

		require.NoError(t, repo.DeleteAccessTokens(ctx, "c2"))
		_, err = repo.GetAccessToken(ctx, "t2")
		assert.ErrorIs(t, err, serrors.ErrTokenNotFound)

		assert.ErrorIs(t, repo.UpdateAccessToken(ctx, "t2", domain.AccessTokenUpdate{RevokedAt: ptr(base)}),
			serrors.ErrTokenNotFound)
	})
}

func testIssuers(t *testing.T, newRepos Factory) {
	ctx := context.Background()
	repo := newRepos(t).Issuers()

	iss := &domain.Issuer{
		Identifier: "https://idp.example.com",
		HMACSecret: "s3cr3t",
		Notes:      "primary",
		CreatedAt:  base,
		UpdatedAt:  base,
	}
	require.NoError(t, repo.CreateIssuer(ctx, iss))
	assert.ErrorIs(t, repo.CreateIssuer(ctx, iss), serrors.ErrDuplicateKey)

	got, err := repo.GetIssuer(ctx, iss.Identifier)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", got.HMACSecret)

	updated, err := repo.UpdateIssuer(ctx, iss.Identifier, domain.IssuerUpdate{
		PublicKey: ptr("-----BEGIN PUBLIC KEY-----"),
		UpdatedAt: base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t", updated.HMACSecret)
	assert.Equal(t, "-----BEGIN PUBLIC KEY-----", updated.PublicKey)
	assert.Equal(t, "primary", updated.Notes)
	assert.True(t, updated.UpdatedAt.Equal(base.Add(time.Hour)))

	_, err = repo.GetIssuer(ctx, "missing")
	assert.ErrorIs(t, err, serrors.ErrIssuerNotFound)
	_, err = repo.UpdateIssuer(ctx, "missing", domain.IssuerUpdate{})
	assert.ErrorIs(t, err, serrors.ErrIssuerNotFound)
}
