package errors

import (
	"errors"
	"fmt"
)

// OAuth2Error represents a standardized OAuth 2.0 error
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
	State       string `json:"state,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Standard OAuth2 error codes
const (
	InvalidRequest         = "invalid_request"
	UnauthorizedClient     = "unauthorized_client"
	AccessDenied           = "access_denied"
	UnsupportedGrantType   = "unsupported_grant_type"
	InvalidScope           = "invalid_scope"
	UnsupportedResponse    = "unsupported_response_type"
	InvalidClient          = "invalid_client"
	InvalidGrant           = "invalid_grant"
	InvalidToken           = "invalid_token"
	ServerError            = "server_error"
	TemporarilyUnavailable = "temporarily_unavailable"
)

func NewInvalidRequest(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidRequest, Description: description}
}

func NewInvalidClient(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidClient, Description: description}
}

func NewInvalidGrant(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidGrant, Description: description}
}

func NewInvalidScope(description string) *OAuth2Error {
	return &OAuth2Error{Code: InvalidScope, Description: description}
}

func NewServerError(description string) *OAuth2Error {
	return &OAuth2Error{Code: ServerError, Description: description}
}

// ToOAuth2Error maps an engine error onto the protocol error the endpoint
// layer should answer with. Unknown errors become server_error and never leak
// their message.
func ToOAuth2Error(err error) *OAuth2Error {
	var oe *OAuth2Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &oe):
		return oe
	case errors.Is(err, ErrGrantAlreadyUsed),
		errors.Is(err, ErrGrantExpired),
		errors.Is(err, ErrGrantNotFound),
		errors.Is(err, ErrInvalidAssertion):
		return NewInvalidGrant(err.Error())
	case errors.Is(err, ErrClientNotFound):
		return NewInvalidClient(err.Error())
	case errors.Is(err, ErrUnsupportedResponseType):
		return &OAuth2Error{Code: UnsupportedResponse, Description: err.Error()}
	case errors.Is(err, ErrTokenNotFound):
		return &OAuth2Error{Code: InvalidToken, Description: err.Error()}
	case errors.Is(err, ErrInvalidIdentity),
		errors.Is(err, ErrMissingIdentity),
		errors.Is(err, ErrInvalidRedirectURI),
		errors.Is(err, ErrAuthRequestNotFound),
		errors.Is(err, ErrAuthRequestDecided):
		return NewInvalidRequest(err.Error())
	case errors.Is(err, ErrStoreUnavailable):
		return &OAuth2Error{Code: TemporarilyUnavailable, Description: "authorization store unavailable"}
	default:
		return NewServerError("internal error")
	}
}
