package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/ids"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// AuthRequestService tracks authorization requests awaiting the user's
// decision.
type AuthRequestService struct {
	core *core
}

// Create records a new authorization request. The scope is clipped to the
// client's scope rather than rejected.
func (s *AuthRequestService) Create(ctx context.Context, clientID string, requested []string, redirectURI, responseType, state string) (r *domain.AuthRequest, err error) {
	ctx, span := s.core.start(ctx, "authrequests.Create", attribute.String("client_id", clientID))
	defer func() { endSpan(span, err) }()

	if responseType != domain.ResponseTypeCode && responseType != domain.ResponseTypeToken {
		return nil, fmt.Errorf("%w: %q", serrors.ErrUnsupportedResponseType, responseType)
	}
	c, err := s.core.activeClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	redirect := redirectFor(c, redirectURI)
	if redirect == "" {
		return nil, serrors.ErrInvalidRedirectURI
	}

	now := s.core.now()
	r = &domain.AuthRequest{
		ID:           ids.New(now),
		ClientID:     c.ID,
		Scope:        scope.Clip(requested, c.Scope),
		RedirectURI:  redirect,
		ResponseType: responseType,
		State:        state,
		CreatedAt:    now,
	}
	if err := s.core.repos.AuthRequests().CreateAuthRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("create auth request: %w", err)
	}
	return r, nil
}

// Find returns an authorization request by ID.
func (s *AuthRequestService) Find(ctx context.Context, id string) (*domain.AuthRequest, error) {
	return s.core.repos.AuthRequests().GetAuthRequest(ctx, id)
}

// Grant records the user's approval. For the code flow it issues an access
// grant; for the token flow it hands out an access token directly. It
// returns false without side effects when the request is revoked, already
// decided or its client is gone.
func (s *AuthRequestService) Grant(ctx context.Context, id string, identity domain.Identity, expiresIn time.Duration) (ok bool, err error) {
	ctx, span := s.core.start(ctx, "authrequests.Grant")
	defer func() { endSpan(span, err) }()

	if identity.IsZero() {
		return false, serrors.ErrMissingIdentity
	}
	if err := identity.Validate(); err != nil {
		return false, err
	}

	repo := s.core.repos.AuthRequests()
	r, err := repo.GetAuthRequest(ctx, id)
	if err != nil {
		return false, err
	}
	if r.RevokedAt != nil {
		return false, nil
	}

	c, err := s.core.activeClient(ctx, r.ClientID)
	if errors.Is(err, serrors.ErrClientNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	decided, err := repo.DecideAuthRequest(ctx, id, s.core.now())
	if err != nil {
		return false, fmt.Errorf("decide auth request: %w", err)
	}
	if !decided {
		return false, nil
	}

	var upd domain.AuthRequestUpdate
	if r.ResponseType == domain.ResponseTypeCode {
		g, err := s.core.createGrant(ctx, identity.String(), c, r.Scope, r.RedirectURI, 0)
		if err != nil {
			return false, err
		}
		upd.GrantCode = &g.Code
	} else {
		tok, err := s.core.getTokenFor(ctx, identity.String(), c, r.Scope, expiresIn)
		if err != nil {
			return false, err
		}
		upd.AccessToken = &tok.Token
	}
	if err := repo.UpdateAuthRequest(ctx, id, upd); err != nil {
		return false, fmt.Errorf("record auth request outcome: %w", err)
	}

	s.core.logger.Info(ctx, "authorization request granted", map[string]interface{}{
		"auth_request_id": id,
		"client_id":       r.ClientID,
		"response_type":   r.ResponseType,
	})
	return true, nil
}

// Deny records that the user refused. Nothing is issued.
func (s *AuthRequestService) Deny(ctx context.Context, id string) (err error) {
	ctx, span := s.core.start(ctx, "authrequests.Deny")
	defer func() { endSpan(span, err) }()

	decided, err := s.core.repos.AuthRequests().DecideAuthRequest(ctx, id, s.core.now())
	if err != nil {
		return err
	}
	if !decided {
		return serrors.ErrAuthRequestDecided
	}

	s.core.logger.Info(ctx, "authorization request denied", map[string]interface{}{"auth_request_id": id})
	return nil
}
