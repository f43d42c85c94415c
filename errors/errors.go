package errors

import "errors"

// Lifecycle errors returned by the engine. Callers match them with errors.Is
// and translate them with ToOAuth2Error.
var (
	// ErrInvalidIdentity is returned when an identity is missing or of an
	// unsupported kind.
	ErrInvalidIdentity = errors.New("identity must be a non-empty text or numeric identifier")
	// ErrMissingIdentity is returned when an authorization request is granted
	// without an identity.
	ErrMissingIdentity = errors.New("must supply an identity")
	// ErrGrantAlreadyUsed is returned when a grant was already redeemed or has
	// been revoked.
	ErrGrantAlreadyUsed = errors.New("access grant already used or revoked")
	ErrGrantExpired     = errors.New("access grant expired")
	ErrGrantNotFound    = errors.New("access grant not found")

	ErrClientNotFound = errors.New("client not found")
	ErrTokenNotFound  = errors.New("access token not found")
	ErrIssuerNotFound = errors.New("issuer not found")

	ErrAuthRequestNotFound = errors.New("authorization request not found")
	// ErrAuthRequestDecided is returned when a decision is recorded twice for
	// the same authorization request.
	ErrAuthRequestDecided = errors.New("authorization request already decided")

	ErrInvalidAssertion   = errors.New("invalid assertion")
	ErrInvalidRedirectURI = errors.New("no redirect uri registered or supplied")
	// ErrUnsupportedResponseType is returned for response types other than
	// code and token.
	ErrUnsupportedResponseType = errors.New("unsupported response type")

	// ErrDuplicateKey is returned by backends when a primary key collides.
	ErrDuplicateKey = errors.New("record already exists")
	// ErrStoreUnavailable wraps every failure of the underlying record store.
	ErrStoreUnavailable = errors.New("record store unavailable")
)

// Store wraps a backend failure so that it matches ErrStoreUnavailable while
// keeping the driver error reachable through errors.As.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// StoreError is the opaque error surfaced for record store failures.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + ErrStoreUnavailable.Error() + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}
