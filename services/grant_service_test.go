package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/scope"
)

func TestGrantService_CreateDefaults(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "alpha", "read", "write")

	g, err := env.engine.Grants.Create(context.Background(), domain.TextIdentity("alice"), c.ID,
		[]string{"read admin"}, "https://attacker.example.com", 0)
	require.NoError(t, err)

	assert.Len(t, g.Code, 72)
	assert.Equal(t, "alice", g.Identity)
	assert.Equal(t, scope.Set{"read"}, g.Scope)
	assert.Equal(t, c.RedirectURI, g.RedirectURI)
	assert.True(t, g.ExpiresAt.Equal(testStart.Add(300*time.Second)))
	assert.False(t, g.IsUsed())
}

func TestGrantService_CreateUsesSuppliedRedirectWithoutRegistered(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.engine.Clients.Register(context.Background(), ClientFields{DisplayName: "bare", Scope: []string{"read"}})
	require.NoError(t, err)

	g, err := env.engine.Grants.Create(context.Background(), domain.NumericIdentity(9), c.ID, nil, "https://app/cb", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://app/cb", g.RedirectURI)
	assert.Equal(t, "9", g.Identity)
	assert.True(t, g.ExpiresAt.Equal(testStart.Add(time.Minute)))
	assert.Empty(t, g.Scope)
}

func TestGrantService_CreateRejectsInvalidIdentity(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "alpha", "read")

	_, err := env.engine.Grants.Create(context.Background(), domain.Identity{}, c.ID, nil, "", 0)
	assert.ErrorIs(t, err, serrors.ErrInvalidIdentity)

	id, err := domain.IdentityFrom(3.14)
	assert.ErrorIs(t, err, serrors.ErrInvalidIdentity)
	_, err = env.engine.Grants.Create(context.Background(), id, c.ID, nil, "", 0)
	assert.ErrorIs(t, err, serrors.ErrInvalidIdentity)
}

func TestGrantService_ConfiguredLifetime(t *testing.T) {
	env := newTestEnv(t, WithGrantLifetime(10*time.Minute))
	c := env.registerClient(t, "alpha", "read")

	g, err := env.engine.Grants.Create(context.Background(), domain.TextIdentity("alice"), c.ID, nil, "", 0)
	require.NoError(t, err)
	assert.True(t, g.ExpiresAt.Equal(testStart.Add(10*time.Minute)))
}

func TestGrantService_AuthorizeOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read", "write")

	g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, []string{"read", "write"}, "", 0)
	require.NoError(t, err)

	env.clock.Advance(10 * time.Second)
	tok, err := env.engine.Grants.Authorize(ctx, g.Code, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "alice", tok.Identity)
	assert.Equal(t, c.ID, tok.ClientID)
	assert.Equal(t, scope.Set{"read", "write"}, tok.Scope)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.Equal(env.clock.Now().Add(time.Hour)))

	stored, err := env.engine.Grants.FromCode(ctx, g.Code)
	require.NoError(t, err)
	require.NotNil(t, stored.AccessToken)
	assert.Equal(t, tok.Token, *stored.AccessToken)
	require.NotNil(t, stored.GrantedAt)
	assert.True(t, stored.GrantedAt.Equal(env.clock.Now()))

	_, err = env.engine.Grants.Authorize(ctx, g.Code, time.Hour)
	assert.ErrorIs(t, err, serrors.ErrGrantAlreadyUsed)
	assert.Equal(t, serrors.InvalidGrant, serrors.ToOAuth2Error(err).Code)
}

func TestGrantService_AuthorizeConcurrent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	for _, workers := range []int{2, 8, 64} {
		g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, []string{"read"}, "", 0)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			replays   int
			start     = make(chan struct{})
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := env.engine.Grants.Authorize(ctx, g.Code, 0)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case errors.Is(err, serrors.ErrGrantAlreadyUsed):
					replays++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, successes, "workers=%d", workers)
		assert.Equal(t, workers-1, replays, "workers=%d", workers)
	}
}

func TestGrantService_RevokedGrantNeverRedeems(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, nil, "", 0)
	require.NoError(t, err)
	require.NoError(t, env.engine.Grants.Revoke(ctx, g.Code))

	_, err = env.engine.Grants.Authorize(ctx, g.Code, 0)
	assert.ErrorIs(t, err, serrors.ErrGrantAlreadyUsed)

	assert.ErrorIs(t, env.engine.Grants.Revoke(ctx, "missing"), serrors.ErrGrantNotFound)
}

func TestGrantService_RevokeKeepsIssuedToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, []string{"read"}, "", 0)
	require.NoError(t, err)
	tok, err := env.engine.Grants.Authorize(ctx, g.Code, 0)
	require.NoError(t, err)

	require.NoError(t, env.engine.Grants.Revoke(ctx, g.Code))
	_, err = env.engine.Tokens.FromToken(ctx, tok.Token)
	assert.NoError(t, err)
}

func TestGrantService_AuthorizeExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, nil, "", 0)
	require.NoError(t, err)

	env.clock.Advance(domain.DefaultGrantLifetime)
	_, err = env.engine.Grants.Authorize(ctx, g.Code, 0)
	assert.ErrorIs(t, err, serrors.ErrGrantExpired)

	stored, err := env.store.GetAccessGrant(ctx, g.Code)
	require.NoError(t, err)
	assert.False(t, stored.IsUsed())
}

func TestGrantService_AuthorizeRevokedClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, nil, "", 0)
	require.NoError(t, err)

	// Revoke the client record alone, skipping the cascade.
	now := env.clock.Now()
	c.RevokedAt = &now
	require.NoError(t, env.store.UpdateClient(ctx, c))

	_, err = env.engine.Grants.Authorize(ctx, g.Code, 0)
	assert.ErrorIs(t, err, serrors.ErrClientNotFound)

	stored, err := env.store.GetAccessGrant(ctx, g.Code)
	require.NoError(t, err)
	assert.False(t, stored.IsUsed())
}

func TestGrantService_AuthorizeAfterClientRevokeCascade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, nil, "", 0)
	require.NoError(t, err)
	require.NoError(t, env.engine.Clients.Revoke(ctx, c.ID))

	_, err = env.engine.Grants.Authorize(ctx, g.Code, 0)
	assert.ErrorIs(t, err, serrors.ErrGrantAlreadyUsed)
}

func TestGrantService_AuthorizeReusesActiveToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")
	alice := domain.TextIdentity("alice")

	existing, err := env.engine.Tokens.GetTokenFor(ctx, alice, c.ID, []string{"read"}, 0)
	require.NoError(t, err)

	g, err := env.engine.Grants.Create(ctx, alice, c.ID, []string{"read"}, "", 0)
	require.NoError(t, err)
	tok, err := env.engine.Grants.Authorize(ctx, g.Code, 0)
	require.NoError(t, err)
	assert.Equal(t, existing.Token, tok.Token)
}

func TestGrantService_AuthorizeTokenFailureKeepsGrantClaimed(t *testing.T) {
	env := newTestEnv(t)
	env.engine = NewEngine(reposWithTokens{Store: env.store, tokens: failingTokens{AccessTokenRepository: env.store}}, WithClock(env.clock))
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, nil, "", 0)
	require.NoError(t, err)

	_, err = env.engine.Grants.Authorize(ctx, g.Code, 0)
	assert.ErrorIs(t, err, serrors.ErrStoreUnavailable)

	_, err = env.engine.Grants.Authorize(ctx, g.Code, 0)
	assert.ErrorIs(t, err, serrors.ErrGrantAlreadyUsed)
}

func TestGrantService_AuthorizeUnknownCode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.Grants.Authorize(context.Background(), "nope", 0)
	assert.ErrorIs(t, err, serrors.ErrGrantNotFound)
}

func TestGrantService_ReplayIsAudited(t *testing.T) {
	var buf bytes.Buffer
	env := newTestEnv(t, WithAuditRecorder(audit.New(&buf)))
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	g, err := env.engine.Grants.Create(ctx, domain.TextIdentity("alice"), c.ID, []string{"read"}, "", 0)
	require.NoError(t, err)
	_, err = env.engine.Grants.Authorize(ctx, g.Code, 0)
	require.NoError(t, err)
	assert.Zero(t, buf.Len())

	_, err = env.engine.Grants.Authorize(ctx, g.Code, 0)
	require.ErrorIs(t, err, serrors.ErrGrantAlreadyUsed)

	out := buf.String()
	assert.Contains(t, out, `"action":"grant.rejected"`)
	assert.Contains(t, out, `"details":"replay"`)
	assert.Contains(t, out, c.ID)
	assert.NotContains(t, out, g.Code, "codes are never written in full")
}
