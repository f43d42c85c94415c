package domain

import (
	"context"
	"time"

	"github.com/pilab-dev/shadow-oauth/scope"
)

// Response types an authorization request may ask for.
const (
	ResponseTypeCode  = "code"
	ResponseTypeToken = "token"
)

// AuthRequest keeps the state of an authorization interaction between the
// incoming request and the user's grant or deny decision.
//
//nolint:tagliatelle
type AuthRequest struct {
	ID           string     `bson:"_id"                    json:"id"`
	ClientID     string     `bson:"client_id"              json:"client_id"`
	Scope        scope.Set  `bson:"scope"                  json:"scope"`
	RedirectURI  string     `bson:"redirect_uri"           json:"redirect_uri"`
	ResponseType string     `bson:"response_type"          json:"response_type"`
	State        string     `bson:"state,omitempty"        json:"state,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"             json:"created_at"`
	GrantCode    string     `bson:"grant_code,omitempty"   json:"grant_code,omitempty"`
	AccessToken  string     `bson:"access_token,omitempty" json:"access_token,omitempty"`
	AuthorizedAt *time.Time `bson:"authorized_at"          json:"authorized_at,omitempty"`
	RevokedAt    *time.Time `bson:"revoked_at"             json:"revoked_at,omitempty"`
}

// IsDecided reports whether grant or deny has already been recorded.
func (r *AuthRequest) IsDecided() bool {
	return r.AuthorizedAt != nil
}

// AuthRequestUpdate lists the fields a partial update may set. Nil fields
// are left untouched.
type AuthRequestUpdate struct {
	GrantCode   *string
	AccessToken *string
}

// AuthRequestRepository persists authorization requests.
type AuthRequestRepository interface {
	CreateAuthRequest(ctx context.Context, r *AuthRequest) error

	// GetAuthRequest returns a request by ID or ErrAuthRequestNotFound.
	GetAuthRequest(ctx context.Context, id string) (*AuthRequest, error)

	// DecideAuthRequest sets AuthorizedAt only if the request is neither
	// decided nor revoked. The check and the write are atomic; the result
	// reports whether the write happened.
	DecideAuthRequest(ctx context.Context, id string, at time.Time) (bool, error)

	UpdateAuthRequest(ctx context.Context, id string, upd AuthRequestUpdate) error

	// RevokeAuthRequests sets RevokedAt on every request of the client.
	RevokeAuthRequests(ctx context.Context, clientID string, at time.Time) error

	DeleteAuthRequests(ctx context.Context, clientID string) error
}
