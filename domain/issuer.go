package domain

import (
	"context"
	"time"
)

// Issuer is a trusted third party whose assertions the server accepts.
//
//nolint:tagliatelle
type Issuer struct {
	Identifier string    `bson:"_id"                   json:"identifier"`
	HMACSecret string    `bson:"hmac_secret,omitempty" json:"hmac_secret,omitempty"`
	PublicKey  string    `bson:"public_key,omitempty"  json:"public_key,omitempty"`
	Notes      string    `bson:"notes,omitempty"       json:"notes,omitempty"`
	CreatedAt  time.Time `bson:"created_at"            json:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"            json:"updated_at"`
}

// IssuerUpdate merges the non-nil fields into an issuer.
type IssuerUpdate struct {
	HMACSecret *string
	PublicKey  *string
	Notes      *string
	UpdatedAt  time.Time
}

// Apply merges upd into i.
func (upd IssuerUpdate) Apply(i *Issuer) {
	if upd.HMACSecret != nil {
		i.HMACSecret = *upd.HMACSecret
	}
	if upd.PublicKey != nil {
		i.PublicKey = *upd.PublicKey
	}
	if upd.Notes != nil {
		i.Notes = *upd.Notes
	}
	i.UpdatedAt = upd.UpdatedAt
}

// IssuerRepository persists issuers.
type IssuerRepository interface {
	// CreateIssuer inserts an issuer. Returns ErrDuplicateKey if it exists.
	CreateIssuer(ctx context.Context, i *Issuer) error

	// GetIssuer returns an issuer or ErrIssuerNotFound.
	GetIssuer(ctx context.Context, identifier string) (*Issuer, error)

	// UpdateIssuer merges upd and returns the stored result.
	UpdateIssuer(ctx context.Context, identifier string, upd IssuerUpdate) (*Issuer, error)
}
