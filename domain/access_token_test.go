package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pilab-dev/shadow-oauth/scope"
)

func TestAccessTokenState(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	assert.True(t, (&AccessToken{}).IsActive(now))
	assert.True(t, (&AccessToken{ExpiresAt: &future}).IsActive(now))
	assert.False(t, (&AccessToken{ExpiresAt: &past}).IsActive(now))
	assert.False(t, (&AccessToken{ExpiresAt: &now}).IsActive(now))
	assert.False(t, (&AccessToken{RevokedAt: &past}).IsActive(now))
}

func TestTokenFilterMatches(t *testing.T) {
	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	revoked := created.Add(time.Hour)
	yes, no := true, false

	tok := &AccessToken{ClientID: "c1", Identity: "alice", CreatedAt: created, RevokedAt: &revoked}

	assert.True(t, TokenFilter{}.Matches(tok))
	assert.True(t, TokenFilter{ClientID: "c1", Identity: "alice", Revoked: &yes}.Matches(tok))
	assert.False(t, TokenFilter{Revoked: &no}.Matches(tok))
	assert.False(t, TokenFilter{ClientID: "c2"}.Matches(tok))
	assert.True(t, TokenFilter{CreatedAfter: created.Add(-time.Minute)}.Matches(tok))
	assert.False(t, TokenFilter{CreatedAfter: created}.Matches(tok))
	assert.True(t, TokenFilter{RevokedAfter: created}.Matches(tok))
	assert.False(t, TokenFilter{RevokedAfter: revoked}.Matches(tok))
}

func TestActiveTokenQueryMatches(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tok := &AccessToken{Identity: "alice", ClientID: "c1", Scope: scope.Normalize("b a")}

	q := ActiveTokenQuery{Identity: "alice", ClientID: "c1", Scope: scope.Set{"a", "b"}, Now: now}
	assert.True(t, q.Matches(tok))

	q.Scope = scope.Set{"a"}
	assert.False(t, q.Matches(tok))
}

func TestAccessGrantState(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	g := &AccessGrant{ExpiresAt: now.Add(DefaultGrantLifetime)}

	assert.False(t, g.IsUsed())
	assert.False(t, g.IsExpired(now))
	assert.True(t, g.IsExpired(now.Add(DefaultGrantLifetime)))

	tok := "t"
	assert.True(t, (&AccessGrant{AccessToken: &tok}).IsUsed())
	assert.True(t, (&AccessGrant{RevokedAt: &now}).IsUsed())
	assert.True(t, (&AccessGrant{GrantedAt: &now}).IsUsed())
}
