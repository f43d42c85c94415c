package domain

import (
	"context"
	"time"

	"golang.org/x/oauth2"

	"github.com/pilab-dev/shadow-oauth/scope"
)

// AccessToken is a bearer credential issued to a client on behalf of an
// identity.
//
//nolint:tagliatelle
type AccessToken struct {
	Token      string     `bson:"_id"             json:"token"`
	Identity   string     `bson:"identity"        json:"identity,omitempty"`
	ClientID   string     `bson:"client_id"       json:"client_id"`
	Scope      scope.Set  `bson:"scope"           json:"scope"`
	CreatedAt  time.Time  `bson:"created_at"      json:"created_at"`
	ExpiresAt  *time.Time `bson:"expires_at"      json:"expires_at,omitempty"`
	RevokedAt  *time.Time `bson:"revoked_at"      json:"revoked_at,omitempty"`
	LastAccess *time.Time `bson:"last_access"     json:"last_access,omitempty"`
	PrevAccess *time.Time `bson:"prev_access"     json:"prev_access,omitempty"`
}

// IsExpired reports whether the token has an expiry in the past.
func (t *AccessToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// IsActive reports whether the token is neither revoked nor expired.
func (t *AccessToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && !t.IsExpired(now)
}

// OAuth2Token returns the token in the shape the endpoint layer hands to
// clients.
func (t *AccessToken) OAuth2Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: t.Token,
		TokenType:   "Bearer",
	}
	if t.ExpiresAt != nil {
		tok.Expiry = *t.ExpiresAt
	}
	return tok.WithExtra(map[string]any{"scope": t.Scope.String()})
}

// ActiveTokenQuery selects the active token for an identity, client and exact
// scope set.
type ActiveTokenQuery struct {
	Identity string
	ClientID string
	Scope    scope.Set
	Now      time.Time
}

// Matches reports whether t satisfies the query.
func (q ActiveTokenQuery) Matches(t *AccessToken) bool {
	return t.Identity == q.Identity &&
		t.ClientID == q.ClientID &&
		t.Scope.Equal(q.Scope) &&
		t.IsActive(q.Now)
}

// TokenFilter selects tokens for listing and counting. Zero fields are
// ignored.
type TokenFilter struct {
	ClientID     string
	Identity     string
	Revoked      *bool
	CreatedAfter time.Time
	RevokedAfter time.Time
}

// Matches reports whether t satisfies the filter.
func (f TokenFilter) Matches(t *AccessToken) bool {
	if f.ClientID != "" && t.ClientID != f.ClientID {
		return false
	}
	if f.Identity != "" && t.Identity != f.Identity {
		return false
	}
	if f.Revoked != nil && *f.Revoked != (t.RevokedAt != nil) {
		return false
	}
	if !f.CreatedAfter.IsZero() && !t.CreatedAt.After(f.CreatedAfter) {
		return false
	}
	if !f.RevokedAfter.IsZero() && (t.RevokedAt == nil || !t.RevokedAt.After(f.RevokedAfter)) {
		return false
	}
	return true
}

// AccessTokenUpdate lists the fields a partial update may set.
type AccessTokenUpdate struct {
	LastAccess *time.Time
	PrevAccess *time.Time
	RevokedAt  *time.Time
}

// AccessTokenRepository persists access tokens.
type AccessTokenRepository interface {
	CreateAccessToken(ctx context.Context, t *AccessToken) error

	// GetAccessToken returns the stored token regardless of its state, or
	// ErrTokenNotFound.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// FindActiveAccessToken returns a token matching q or ErrTokenNotFound.
	FindActiveAccessToken(ctx context.Context, q ActiveTokenQuery) (*AccessToken, error)

	// ListAccessTokens returns matching tokens ordered by creation time.
	ListAccessTokens(ctx context.Context, filter TokenFilter, opts ListOptions) ([]*AccessToken, error)

	CountAccessTokens(ctx context.Context, filter TokenFilter) (int64, error)

	UpdateAccessToken(ctx context.Context, token string, upd AccessTokenUpdate) error

	RevokeAccessTokens(ctx context.Context, clientID string, at time.Time) error

	DeleteAccessTokens(ctx context.Context, clientID string) error
}
