package domain

import (
	"context"
	"time"

	"github.com/pilab-dev/shadow-oauth/scope"
)

// DefaultGrantLifetime is how long an access grant stays redeemable.
const DefaultGrantLifetime = 300 * time.Second

// AccessGrant is a single-use authorization code, redeemable once for an
// access token.
//
//nolint:tagliatelle
type AccessGrant struct {
	Code        string     `bson:"_id"                    json:"code"`
	Identity    string     `bson:"identity"               json:"identity"`
	ClientID    string     `bson:"client_id"              json:"client_id"`
	Scope       scope.Set  `bson:"scope"                  json:"scope"`
	RedirectURI string     `bson:"redirect_uri,omitempty" json:"redirect_uri,omitempty"`
	CreatedAt   time.Time  `bson:"created_at"             json:"created_at"`
	GrantedAt   *time.Time `bson:"granted_at"             json:"granted_at,omitempty"`
	ExpiresAt   time.Time  `bson:"expires_at"             json:"expires_at"`
	AccessToken *string    `bson:"access_token"           json:"access_token,omitempty"`
	RevokedAt   *time.Time `bson:"revoked_at"             json:"revoked_at,omitempty"`
}

// IsUsed reports whether the grant can no longer be redeemed because it was
// redeemed, claimed or revoked.
func (g *AccessGrant) IsUsed() bool {
	return g.AccessToken != nil || g.GrantedAt != nil || g.RevokedAt != nil
}

// IsExpired reports whether the redemption window has passed.
func (g *AccessGrant) IsExpired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// AccessGrantUpdate lists the fields a partial update may set.
type AccessGrantUpdate struct {
	AccessToken *string
	RevokedAt   *time.Time
}

// AccessGrantRepository persists access grants.
type AccessGrantRepository interface {
	CreateAccessGrant(ctx context.Context, g *AccessGrant) error

	// GetAccessGrant returns a grant by code or ErrGrantNotFound.
	GetAccessGrant(ctx context.Context, code string) (*AccessGrant, error)

	// ClaimAccessGrant atomically sets GrantedAt if GrantedAt, AccessToken and
	// RevokedAt are all still unset. Exactly one concurrent caller observes
	// true; all others observe false.
	ClaimAccessGrant(ctx context.Context, code string, at time.Time) (bool, error)

	UpdateAccessGrant(ctx context.Context, code string, upd AccessGrantUpdate) error

	RevokeAccessGrants(ctx context.Context, clientID string, at time.Time) error

	DeleteAccessGrants(ctx context.Context, clientID string) error
}
