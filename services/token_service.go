package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// TokenService issues, tracks and revokes access tokens.
type TokenService struct {
	core *core
}

// CountFilter narrows Count. With Days set, Revoked=true counts tokens
// revoked in the last Days days and anything else counts tokens created in
// that window.
type CountFilter struct {
	ClientID string
	Days     int
	Revoked  *bool
}

// GetTokenFor returns the active token already issued to identity for this
// client and exact scope set, or creates a new one.
func (s *TokenService) GetTokenFor(ctx context.Context, identity domain.Identity, clientID string, requested []string, expiresIn time.Duration) (tok *domain.AccessToken, err error) {
	ctx, span := s.core.start(ctx, "tokens.GetTokenFor", attribute.String("client_id", clientID))
	defer func() { endSpan(span, err) }()

	if err := identity.Validate(); err != nil {
		return nil, err
	}
	c, err := s.core.activeClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.core.getTokenFor(ctx, identity.String(), c, scope.Normalize(requested...), expiresIn)
}

// CreateTokenFor always creates a new token. A zero identity is allowed for
// tokens issued to the client itself.
func (s *TokenService) CreateTokenFor(ctx context.Context, clientID string, requested []string, identity domain.Identity, expiresIn time.Duration) (tok *domain.AccessToken, err error) {
	ctx, span := s.core.start(ctx, "tokens.CreateTokenFor", attribute.String("client_id", clientID))
	defer func() { endSpan(span, err) }()

	if !identity.IsZero() {
		if err := identity.Validate(); err != nil {
			return nil, err
		}
	}
	c, err := s.core.activeClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.core.createTokenFor(ctx, c, scope.Normalize(requested...), identity.String(), expiresIn)
}

// FromToken returns the token only while it is active. Expired and revoked
// tokens stay in storage but are reported as ErrTokenNotFound.
func (s *TokenService) FromToken(ctx context.Context, token string) (*domain.AccessToken, error) {
	t, err := s.core.repos.AccessTokens().GetAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !t.IsActive(s.core.now()) {
		return nil, serrors.ErrTokenNotFound
	}
	return t, nil
}

// Access records usage at hour granularity. Storage is written at most once
// per clock hour; the previous hour moves to PrevAccess.
func (s *TokenService) Access(ctx context.Context, token string) (*domain.AccessToken, error) {
	repo := s.core.repos.AccessTokens()
	t, err := repo.GetAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}

	hour := s.core.now().Truncate(time.Hour)
	if t.LastAccess != nil && !t.LastAccess.Before(hour) {
		return t, nil
	}

	upd := domain.AccessTokenUpdate{LastAccess: &hour, PrevAccess: t.LastAccess}
	if err := repo.UpdateAccessToken(ctx, token, upd); err != nil {
		return nil, fmt.Errorf("record token access: %w", err)
	}
	if t.LastAccess != nil {
		t.PrevAccess = t.LastAccess
	}
	t.LastAccess = &hour
	return t, nil
}

// Revoke revokes a single token. Revoking an already revoked token is a
// no-op.
func (s *TokenService) Revoke(ctx context.Context, token string) (err error) {
	ctx, span := s.core.start(ctx, "tokens.Revoke")
	defer func() { endSpan(span, err) }()

	repo := s.core.repos.AccessTokens()
	t, err := repo.GetAccessToken(ctx, token)
	if err != nil {
		return err
	}
	if t.RevokedAt != nil {
		return nil
	}

	now := s.core.now()
	if err := repo.UpdateAccessToken(ctx, token, domain.AccessTokenUpdate{RevokedAt: &now}); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.core.bumpCounters(ctx, t.ClientID, 0, 1)

	metrics.TokensRevokedTotal.Inc()
	s.core.audit.Record(ctx, audit.Event{
		Action:   audit.ActionTokenRevoked,
		ClientID: t.ClientID,
		Target:   short(token),
		Success:  true,
	})
	s.core.logger.Info(ctx, "access token revoked", map[string]interface{}{
		"client_id": t.ClientID,
		"token":     short(token),
	})
	return nil
}

// ForIdentity returns every token issued to identity, in any state.
func (s *TokenService) ForIdentity(ctx context.Context, identity domain.Identity) ([]*domain.AccessToken, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	return s.core.repos.AccessTokens().ListAccessTokens(ctx,
		domain.TokenFilter{Identity: identity.String()}, domain.ListOptions{})
}

// ForClient pages through a client's tokens, oldest first.
func (s *TokenService) ForClient(ctx context.Context, clientID string, offset, limit int) ([]*domain.AccessToken, error) {
	if offset < 0 {
		offset = 0
	}
	return s.core.repos.AccessTokens().ListAccessTokens(ctx,
		domain.TokenFilter{ClientID: clientID}, domain.ListOptions{Offset: offset, Limit: limit})
}

// Count counts tokens matching f.
func (s *TokenService) Count(ctx context.Context, f CountFilter) (int64, error) {
	filter := domain.TokenFilter{ClientID: f.ClientID}
	switch {
	case f.Days > 0:
		since := s.core.now().Add(-time.Duration(f.Days) * 24 * time.Hour)
		if f.Revoked != nil && *f.Revoked {
			filter.RevokedAfter = since
		} else {
			filter.CreatedAfter = since
		}
	case f.Revoked != nil:
		filter.Revoked = f.Revoked
	}
	return s.core.repos.AccessTokens().CountAccessTokens(ctx, filter)
}

// getTokenFor clips requested to the client's scope and reuses an active
// token with exactly that scope set.
func (c *core) getTokenFor(ctx context.Context, identity string, cl *domain.Client, requested scope.Set, expiresIn time.Duration) (*domain.AccessToken, error) {
	granted := scope.Intersect(requested, cl.Scope)

	existing, err := c.repos.AccessTokens().FindActiveAccessToken(ctx, domain.ActiveTokenQuery{
		Identity: identity,
		ClientID: cl.ID,
		Scope:    granted,
		Now:      c.now(),
	})
	switch {
	case err == nil:
		metrics.TokensReusedTotal.Inc()
		return existing, nil
	case !errors.Is(err, serrors.ErrTokenNotFound):
		return nil, fmt.Errorf("find active token: %w", err)
	}

	return c.createTokenFor(ctx, cl, granted, identity, expiresIn)
}

func (c *core) createTokenFor(ctx context.Context, cl *domain.Client, requested scope.Set, identity string, expiresIn time.Duration) (*domain.AccessToken, error) {
	token, err := c.newOpaqueID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := c.now()
	t := &domain.AccessToken{
		Token:     token,
		Identity:  identity,
		ClientID:  cl.ID,
		Scope:     scope.Intersect(requested, cl.Scope),
		CreatedAt: now,
	}
	if expiresIn <= 0 {
		expiresIn = c.tokenLifetime
	}
	if expiresIn > 0 {
		exp := now.Add(expiresIn)
		t.ExpiresAt = &exp
	}

	if err := c.repos.AccessTokens().CreateAccessToken(ctx, t); err != nil {
		return nil, fmt.Errorf("create access token: %w", err)
	}
	c.bumpCounters(ctx, cl.ID, 1, 0)

	metrics.TokensCreatedTotal.Inc()
	c.logger.Debug(ctx, "access token created", map[string]interface{}{
		"client_id": cl.ID,
		"token":     short(token),
		"scope":     t.Scope.String(),
	})
	return t, nil
}

// bumpCounters updates the client's statistics. Failures are logged and
// swallowed since the token change is already persisted. Cached clients may
// show stale counters until their TTL runs out.
func (c *core) bumpCounters(ctx context.Context, clientID string, granted, revoked int64) {
	if err := c.repos.Clients().IncrementClientCounters(ctx, clientID, granted, revoked); err != nil {
		c.logFailure(ctx, "failed to update client token counters", err, map[string]interface{}{"client_id": clientID})
	}
}
