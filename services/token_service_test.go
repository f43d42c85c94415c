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

func TestTokenService_GetTokenForReusesExactScope(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "a", "b", "c")
	alice := domain.TextIdentity("u1")

	first, err := env.engine.Tokens.GetTokenFor(ctx, alice, c.ID, []string{"a", "b"}, time.Hour)
	require.NoError(t, err)
	assert.Len(t, first.Token, 72)

	again, err := env.engine.Tokens.GetTokenFor(ctx, alice, c.ID, []string{"b a"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, first.Token, again.Token)

	subset, err := env.engine.Tokens.GetTokenFor(ctx, alice, c.ID, []string{"a"}, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, subset.Token)

	superset, err := env.engine.Tokens.GetTokenFor(ctx, alice, c.ID, []string{"a", "b", "c"}, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, superset.Token)

	bob, err := env.engine.Tokens.GetTokenFor(ctx, domain.TextIdentity("u2"), c.ID, []string{"a", "b"}, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, first.Token, bob.Token)
}

func TestTokenService_GetTokenForClipsScope(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "alpha", "read", "write")

	tok, err := env.engine.Tokens.GetTokenFor(context.Background(), domain.NumericIdentity(7), c.ID, []string{"read admin"}, 0)
	require.NoError(t, err)
	assert.Equal(t, scope.Set{"read"}, tok.Scope)
	assert.Equal(t, "7", tok.Identity)
}

func TestTokenService_GetTokenForSkipsInactive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")
	alice := domain.TextIdentity("alice")

	expiring, err := env.engine.Tokens.GetTokenFor(ctx, alice, c.ID, []string{"read"}, time.Minute)
	require.NoError(t, err)

	env.clock.Advance(time.Minute + time.Second)

	fresh, err := env.engine.Tokens.GetTokenFor(ctx, alice, c.ID, []string{"read"}, 0)
	require.NoError(t, err)
	assert.NotEqual(t, expiring.Token, fresh.Token)

	require.NoError(t, env.engine.Tokens.Revoke(ctx, fresh.Token))
	third, err := env.engine.Tokens.GetTokenFor(ctx, alice, c.ID, []string{"read"}, 0)
	require.NoError(t, err)
	assert.NotEqual(t, fresh.Token, third.Token)
}

func TestTokenService_GetTokenForRejectsInvalidIdentity(t *testing.T) {
	env := newTestEnv(t)
	c := env.registerClient(t, "alpha", "read")

	_, err := env.engine.Tokens.GetTokenFor(context.Background(), domain.Identity{}, c.ID, nil, 0)
	assert.ErrorIs(t, err, serrors.ErrInvalidIdentity)
	_, err = env.engine.Tokens.GetTokenFor(context.Background(), domain.TextIdentity("  "), c.ID, nil, 0)
	assert.ErrorIs(t, err, serrors.ErrInvalidIdentity)
}

func TestTokenService_CreateTokenForExpiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	forever, err := env.engine.Tokens.CreateTokenFor(ctx, c.ID, []string{"read"}, domain.Identity{}, 0)
	require.NoError(t, err)
	assert.Nil(t, forever.ExpiresAt)
	assert.Empty(t, forever.Identity)

	hour, err := env.engine.Tokens.CreateTokenFor(ctx, c.ID, []string{"read"}, domain.TextIdentity("alice"), time.Hour)
	require.NoError(t, err)
	require.NotNil(t, hour.ExpiresAt)
	assert.True(t, hour.ExpiresAt.Equal(testStart.Add(time.Hour)))

	oauthTok := hour.OAuth2Token()
	assert.Equal(t, hour.Token, oauthTok.AccessToken)
	assert.Equal(t, "Bearer", oauthTok.TokenType)
	assert.Equal(t, "read", oauthTok.Extra("scope"))

	got, err := env.store.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.TokensGranted)
}

func TestTokenService_DefaultTokenLifetime(t *testing.T) {
	env := newTestEnv(t, WithTokenLifetime(2*time.Hour))
	c := env.registerClient(t, "alpha", "read")

	tok, err := env.engine.Tokens.CreateTokenFor(context.Background(), c.ID, []string{"read"}, domain.Identity{}, 0)
	require.NoError(t, err)
	require.NotNil(t, tok.ExpiresAt)
	assert.True(t, tok.ExpiresAt.Equal(testStart.Add(2*time.Hour)))
}

func TestTokenService_FromTokenExcludesExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	tok, err := env.engine.Tokens.CreateTokenFor(ctx, c.ID, []string{"read"}, domain.TextIdentity("alice"), time.Second)
	require.NoError(t, err)

	got, err := env.engine.Tokens.FromToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, tok.Token, got.Token)

	env.clock.Advance(2 * time.Second)
	_, err = env.engine.Tokens.FromToken(ctx, tok.Token)
	assert.ErrorIs(t, err, serrors.ErrTokenNotFound)

	stored, err := env.store.GetAccessToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.True(t, stored.IsExpired(env.clock.Now()))

	_, err = env.engine.Tokens.FromToken(ctx, "does-not-exist")
	assert.ErrorIs(t, err, serrors.ErrTokenNotFound)
}

func TestTokenService_Access(t *testing.T) {
	env := newTestEnv(t)
	counting := &countingTokens{AccessTokenRepository: env.store}
	env.engine = NewEngine(reposWithTokens{Store: env.store, tokens: counting}, WithClock(env.clock))

	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")
	tok, err := env.engine.Tokens.CreateTokenFor(ctx, c.ID, []string{"read"}, domain.TextIdentity("alice"), 0)
	require.NoError(t, err)

	hour10 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	got, err := env.engine.Tokens.Access(ctx, tok.Token)
	require.NoError(t, err)
	require.NotNil(t, got.LastAccess)
	assert.True(t, got.LastAccess.Equal(hour10))
	assert.Nil(t, got.PrevAccess)
	assert.Equal(t, 1, counting.updates)

	env.clock.Advance(30 * time.Minute) // 10:45
	_, err = env.engine.Tokens.Access(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, 1, counting.updates)

	env.clock.Advance(30 * time.Minute) // 11:15
	got, err = env.engine.Tokens.Access(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, 2, counting.updates)
	assert.True(t, got.LastAccess.Equal(hour10.Add(time.Hour)))
	require.NotNil(t, got.PrevAccess)
	assert.True(t, got.PrevAccess.Equal(hour10))

	stored, err := env.store.GetAccessToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.True(t, stored.LastAccess.Equal(hour10.Add(time.Hour)))
	assert.True(t, stored.PrevAccess.Equal(hour10))
}

func TestTokenService_Revoke(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")

	tok, err := env.engine.Tokens.CreateTokenFor(ctx, c.ID, []string{"read"}, domain.TextIdentity("alice"), 0)
	require.NoError(t, err)

	require.NoError(t, env.engine.Tokens.Revoke(ctx, tok.Token))
	require.NoError(t, env.engine.Tokens.Revoke(ctx, tok.Token))

	_, err = env.engine.Tokens.FromToken(ctx, tok.Token)
	assert.ErrorIs(t, err, serrors.ErrTokenNotFound)

	stored, err := env.store.GetClient(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stored.TokensGranted)
	assert.EqualValues(t, 1, stored.TokensRevoked)

	assert.ErrorIs(t, env.engine.Tokens.Revoke(ctx, "missing"), serrors.ErrTokenNotFound)
}

func TestTokenService_ListingAndCounting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.registerClient(t, "alpha", "read")
	other := env.registerClient(t, "bravo", "read")

	var tokens []*domain.AccessToken
	for range 4 {
		tok, err := env.engine.Tokens.CreateTokenFor(ctx, c.ID, []string{"read"}, domain.TextIdentity("alice"), 0)
		require.NoError(t, err)
		tokens = append(tokens, tok)
		env.clock.Advance(24 * time.Hour)
	}
	_, err := env.engine.Tokens.CreateTokenFor(ctx, other.ID, []string{"read"}, domain.TextIdentity("bob"), 0)
	require.NoError(t, err)
	require.NoError(t, env.engine.Tokens.Revoke(ctx, tokens[0].Token))

	page, err := env.engine.Tokens.ForClient(ctx, c.ID, 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, tokens[1].Token, page[0].Token)
	assert.Equal(t, tokens[2].Token, page[1].Token)

	mine, err := env.engine.Tokens.ForIdentity(ctx, domain.TextIdentity("alice"))
	require.NoError(t, err)
	assert.Len(t, mine, 4)

	n, err := env.engine.Tokens.Count(ctx, CountFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	n, err = env.engine.Tokens.Count(ctx, CountFilter{ClientID: c.ID, Revoked: ptr(false)})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	n, err = env.engine.Tokens.Count(ctx, CountFilter{Days: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = env.engine.Tokens.Count(ctx, CountFilter{Days: 1, Revoked: ptr(true)})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTokenService_StoreFailureSurfaces(t *testing.T) {
	env := newTestEnv(t)
	env.engine = NewEngine(reposWithTokens{Store: env.store, tokens: failingTokens{AccessTokenRepository: env.store}}, WithClock(env.clock))
	c := env.registerClient(t, "alpha", "read")

	_, err := env.engine.Tokens.GetTokenFor(context.Background(), domain.TextIdentity("alice"), c.ID, []string{"read"}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, serrors.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errConnRefused)
	assert.Equal(t, serrors.TemporarilyUnavailable, serrors.ToOAuth2Error(err).Code)
}
