package domain

import (
	"context"
	"time"

	"github.com/pilab-dev/shadow-oauth/scope"
)

// Client represents a registered OAuth2 client application.
//
//nolint:tagliatelle
type Client struct {
	ID            string     `bson:"_id"                    json:"id"`
	Secret        string     `bson:"secret"                 json:"secret"`
	DisplayName   string     `bson:"display_name"           json:"display_name"`
	Link          string     `bson:"link,omitempty"         json:"link,omitempty"`
	ImageURL      string     `bson:"image_url,omitempty"    json:"image_url,omitempty"`
	RedirectURI   string     `bson:"redirect_uri,omitempty" json:"redirect_uri,omitempty"`
	Scope         scope.Set  `bson:"scope"                  json:"scope"`
	Notes         string     `bson:"notes,omitempty"        json:"notes,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"             json:"created_at"`
	RevokedAt     *time.Time `bson:"revoked_at"             json:"revoked_at,omitempty"`
	TokensGranted int64      `bson:"tokens_granted"         json:"tokens_granted"`
	TokensRevoked int64      `bson:"tokens_revoked"         json:"tokens_revoked"`
}

// IsRevoked reports whether the client has been revoked.
func (c *Client) IsRevoked() bool {
	return c.RevokedAt != nil
}

// ClientFilter selects a client by one of its secondary fields. Empty fields
// are ignored; set fields must all match.
type ClientFilter struct {
	DisplayName string
	Link        string
}

// ClientRepository persists clients.
type ClientRepository interface {
	// CreateClient inserts a client. Returns ErrDuplicateKey if the ID exists.
	CreateClient(ctx context.Context, c *Client) error

	// GetClient returns a client by ID or ErrClientNotFound.
	GetClient(ctx context.Context, id string) (*Client, error)

	// FindClient returns the first client matching the filter or
	// ErrClientNotFound.
	FindClient(ctx context.Context, filter ClientFilter) (*Client, error)

	// ListClients returns all clients ordered by display name.
	ListClients(ctx context.Context) ([]*Client, error)

	// UpdateClient persists every field of c except the token counters.
	UpdateClient(ctx context.Context, c *Client) error

	// IncrementClientCounters atomically adds to TokensGranted/TokensRevoked.
	IncrementClientCounters(ctx context.Context, id string, granted, revoked int64) error

	// DeleteClient removes a client. Returns ErrClientNotFound if missing.
	DeleteClient(ctx context.Context, id string) error
}
