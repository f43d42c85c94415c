package domain

import (
	"context"
	"time"
)

// OpaqueIDBytes is the number of random bytes behind every generated
// identifier. Encoded as unpadded base64url it is 72 characters long.
const OpaqueIDBytes = 54

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// RandomSource produces cryptographically secure, URL-safe identifiers.
type RandomSource interface {
	GenerateOpaqueID(lengthBytes int) (string, error)
}

// ListOptions pages through a result set.
type ListOptions struct {
	Offset int
	Limit  int
}

// Repositories gives access to every record store the engine needs. A single
// backend implements all of them.
type Repositories interface {
	Clients() ClientRepository
	AuthRequests() AuthRequestRepository
	AccessGrants() AccessGrantRepository
	AccessTokens() AccessTokenRepository
	Issuers() IssuerRepository

	// Close releases the backend's connections.
	Close(ctx context.Context) error
}
