package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/scope"
)

func TestAuthRequestService_CreateClipsScope(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "alpha", "read", "write")

	r, err := env.engine.AuthRequests.Create(context.Background(), c.ID, []string{"read", "admin"}, "", domain.ResponseTypeCode, "xyz")
	require.NoError(t, err)
	assert.Equal(t, scope.Set{"read"}, r.Scope)
	assert.Equal(t, c.RedirectURI, r.RedirectURI)
	assert.Equal(t, "xyz", r.State)
	assert.False(t, r.IsDecided())
	assert.NotEmpty(t, r.ID)

	found, err := env.engine.AuthRequests.Find(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, found.ID)
}

func TestAuthRequestService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")
	bare, err := env.engine.Clients.Register(ctx, ClientFields{DisplayName: "bare"})
	require.NoError(t, err)

	_, err = env.engine.AuthRequests.Create(ctx, c.ID, nil, "", "id_token", "")
	assert.ErrorIs(t, err, serrors.ErrUnsupportedResponseType)

	_, err = env.engine.AuthRequests.Create(ctx, bare.ID, nil, "", domain.ResponseTypeCode, "")
	assert.ErrorIs(t, err, serrors.ErrInvalidRedirectURI)

	r, err := env.engine.AuthRequests.Create(ctx, bare.ID, nil, "https://bare/cb", domain.ResponseTypeToken, "")
	require.NoError(t, err)
	assert.Equal(t, "https://bare/cb", r.RedirectURI)

	_, err = env.engine.AuthRequests.Create(ctx, "missing", nil, "", domain.ResponseTypeCode, "")
	assert.ErrorIs(t, err, serrors.ErrClientNotFound)
}

func TestAuthRequestService_GrantCodeFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read", "write")

	r, err := env.engine.AuthRequests.Create(ctx, c.ID, []string{"read"}, "", domain.ResponseTypeCode, "")
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	ok, err := env.engine.AuthRequests.Grant(ctx, r.ID, domain.TextIdentity("alice"), 0)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := env.engine.AuthRequests.Find(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AuthorizedAt)
	assert.True(t, stored.AuthorizedAt.Equal(env.clock.Now()))
	require.NotEmpty(t, stored.GrantCode)
	assert.Empty(t, stored.AccessToken)

	g, err := env.engine.Grants.FromCode(ctx, stored.GrantCode)
	require.NoError(t, err)
	assert.Equal(t, "alice", g.Identity)
	assert.Equal(t, scope.Set{"read"}, g.Scope)
	assert.Equal(t, r.RedirectURI, g.RedirectURI)
	assert.True(t, g.ExpiresAt.Equal(env.clock.Now().Add(domain.DefaultGrantLifetime)))

	ok, err = env.engine.AuthRequests.Grant(ctx, r.ID, domain.TextIdentity("mallory"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := env.engine.AuthRequests.Find(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.GrantCode, again.GrantCode)
}

func TestAuthRequestService_GrantTokenFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	r, err := env.engine.AuthRequests.Create(ctx, c.ID, []string{"read"}, "", domain.ResponseTypeToken, "")
	require.NoError(t, err)

	ok, err := env.engine.AuthRequests.Grant(ctx, r.ID, domain.NumericIdentity(1001), time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := env.engine.AuthRequests.Find(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.GrantCode)
	require.NotEmpty(t, stored.AccessToken)

	tok, err := env.engine.Tokens.FromToken(ctx, stored.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "1001", tok.Identity)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.Equal(testStart.Add(time.Hour)))
}

func TestAuthRequestService_GrantRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")
	r, err := env.engine.AuthRequests.Create(ctx, c.ID, nil, "", domain.ResponseTypeCode, "")
	require.NoError(t, err)

	_, err = env.engine.AuthRequests.Grant(ctx, r.ID, domain.Identity{}, 0)
	assert.ErrorIs(t, err, serrors.ErrMissingIdentity)

	stored, err := env.engine.AuthRequests.Find(ctx, r.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDecided())
}

func TestAuthRequestService_GrantOnRevokedOrOrphaned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	revoked, err := env.engine.AuthRequests.Create(ctx, c.ID, nil, "", domain.ResponseTypeCode, "")
	require.NoError(t, err)
	require.NoError(t, env.store.RevokeAuthRequests(ctx, c.ID, env.clock.Now()))

	ok, err := env.engine.AuthRequests.Grant(ctx, revoked.ID, domain.TextIdentity("alice"), 0)
	require.NoError(t, err)
	assert.False(t, ok)
	stored, err := env.engine.AuthRequests.Find(ctx, revoked.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDecided())

	other := env.registerClient(t, "bravo", "read")
	orphan, err := env.engine.AuthRequests.Create(ctx, other.ID, nil, "", domain.ResponseTypeCode, "")
	require.NoError(t, err)
	require.NoError(t, env.store.DeleteClient(ctx, other.ID))

	ok, err = env.engine.AuthRequests.Grant(ctx, orphan.ID, domain.TextIdentity("alice"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.engine.AuthRequests.Grant(ctx, "missing", domain.TextIdentity("alice"), 0)
	assert.ErrorIs(t, err, serrors.ErrAuthRequestNotFound)
}

func TestAuthRequestService_Deny(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	r, err := env.engine.AuthRequests.Create(ctx, c.ID, nil, "", domain.ResponseTypeCode, "")
	require.NoError(t, err)

	require.NoError(t, env.engine.AuthRequests.Deny(ctx, r.ID))

	stored, err := env.engine.AuthRequests.Find(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDecided())
	assert.Empty(t, stored.GrantCode)
	assert.Empty(t, stored.AccessToken)

	assert.ErrorIs(t, env.engine.AuthRequests.Deny(ctx, r.ID), serrors.ErrAuthRequestDecided)

	ok, err := env.engine.AuthRequests.Grant(ctx, r.ID, domain.TextIdentity("alice"), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, env.engine.AuthRequests.Deny(ctx, "missing"), serrors.ErrAuthRequestNotFound)
}
