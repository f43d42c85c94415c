package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// GrantService issues and redeems single-use access grants.
type GrantService struct {
	core *core
}

// Create issues an access grant. The redirect URI registered on the client
// takes precedence over redirectURI. A zero expiresIn uses the configured
// grant lifetime.
func (s *GrantService) Create(ctx context.Context, identity domain.Identity, clientID string, requested []string, redirectURI string, expiresIn time.Duration) (g *domain.AccessGrant, err error) {
	ctx, span := s.core.start(ctx, "grants.Create", attribute.String("client_id", clientID))
	defer func() { endSpan(span, err) }()

	if err := identity.Validate(); err != nil {
		return nil, err
	}
	c, err := s.core.activeClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return s.core.createGrant(ctx, identity.String(), c, scope.Normalize(requested...), redirectURI, expiresIn)
}

// FromCode returns the grant in whatever state it is in.
func (s *GrantService) FromCode(ctx context.Context, code string) (*domain.AccessGrant, error) {
	return s.core.repos.AccessGrants().GetAccessGrant(ctx, code)
}

// Authorize redeems the grant for an access token. It succeeds at most once
// per grant, however many callers race on it; every other caller gets
// ErrGrantAlreadyUsed. A grant whose token issuance fails after it was
// claimed stays unusable.
func (s *GrantService) Authorize(ctx context.Context, code string, expiresIn time.Duration) (tok *domain.AccessToken, err error) {
	ctx, span := s.core.start(ctx, "grants.Authorize")
	defer func() { endSpan(span, err) }()

	repo := s.core.repos.AccessGrants()
	g, err := repo.GetAccessGrant(ctx, code)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("client_id", g.ClientID))

	now := s.core.now()
	if g.IsUsed() {
		return nil, s.reject(ctx, g, "replay", serrors.ErrGrantAlreadyUsed)
	}
	if g.IsExpired(now) {
		return nil, s.reject(ctx, g, "expired", serrors.ErrGrantExpired)
	}
	c, err := s.core.activeClient(ctx, g.ClientID)
	if err != nil {
		return nil, s.reject(ctx, g, "client", err)
	}

	claimed, err := repo.ClaimAccessGrant(ctx, code, now)
	if err != nil {
		return nil, fmt.Errorf("claim access grant: %w", err)
	}
	if !claimed {
		return nil, s.reject(ctx, g, "replay", serrors.ErrGrantAlreadyUsed)
	}

	tok, err = s.core.getTokenFor(ctx, g.Identity, c, g.Scope, expiresIn)
	if err != nil {
		s.core.logger.Error(ctx, "token issuance failed for claimed grant", err, map[string]interface{}{
			"client_id": g.ClientID,
			"code":      short(code),
		})
		return nil, err
	}

	if err := repo.UpdateAccessGrant(ctx, code, domain.AccessGrantUpdate{AccessToken: &tok.Token}); err != nil {
		return nil, fmt.Errorf("record grant redemption: %w", err)
	}

	metrics.GrantsRedeemedTotal.Inc()
	s.core.logger.Info(ctx, "access grant redeemed", map[string]interface{}{
		"client_id": g.ClientID,
		"code":      short(code),
		"token":     short(tok.Token),
	})
	return tok, nil
}

func (s *GrantService) reject(ctx context.Context, g *domain.AccessGrant, reason string, err error) error {
	metrics.GrantRejectionsTotal.WithLabelValues(reason).Inc()
	s.core.audit.Record(ctx, audit.Event{
		Action:   audit.ActionGrantRejected,
		ClientID: g.ClientID,
		Target:   short(g.Code),
		Details:  reason,
		Err:      err,
	})
	s.core.logger.Warn(ctx, "access grant rejected", map[string]interface{}{
		"client_id": g.ClientID,
		"code":      short(g.Code),
		"reason":    reason,
	})
	return err
}

// Revoke makes the grant unredeemable. Tokens it already produced are not
// touched.
func (s *GrantService) Revoke(ctx context.Context, code string) (err error) {
	ctx, span := s.core.start(ctx, "grants.Revoke")
	defer func() { endSpan(span, err) }()

	repo := s.core.repos.AccessGrants()
	g, err := repo.GetAccessGrant(ctx, code)
	if err != nil {
		return err
	}

	now := s.core.now()
	if err := repo.UpdateAccessGrant(ctx, code, domain.AccessGrantUpdate{RevokedAt: &now}); err != nil {
		return fmt.Errorf("revoke access grant: %w", err)
	}
	s.core.audit.Record(ctx, audit.Event{
		Action:   audit.ActionGrantRevoked,
		ClientID: g.ClientID,
		Target:   short(code),
		Success:  true,
	})
	s.core.logger.Info(ctx, "access grant revoked", map[string]interface{}{"code": short(code)})
	return nil
}

func (c *core) createGrant(ctx context.Context, identity string, cl *domain.Client, requested scope.Set, redirectURI string, expiresIn time.Duration) (*domain.AccessGrant, error) {
	code, err := c.newOpaqueID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate grant code: %w", err)
	}
	if expiresIn <= 0 {
		expiresIn = c.grantLifetime
	}

	now := c.now()
	g := &domain.AccessGrant{
		Code:        code,
		Identity:    identity,
		ClientID:    cl.ID,
		Scope:       scope.Intersect(requested, cl.Scope),
		RedirectURI: redirectFor(cl, redirectURI),
		CreatedAt:   now,
		ExpiresAt:   now.Add(expiresIn),
	}
	if err := c.repos.AccessGrants().CreateAccessGrant(ctx, g); err != nil {
		return nil, fmt.Errorf("create access grant: %w", err)
	}

	metrics.GrantsIssuedTotal.Inc()
	c.logger.Debug(ctx, "access grant issued", map[string]interface{}{
		"client_id": cl.ID,
		"code":      short(code),
		"scope":     g.Scope.String(),
	})
	return g, nil
}

// redirectFor prefers the client's registered redirect URI.
func redirectFor(cl *domain.Client, supplied string) string {
	if cl.RedirectURI != "" {
		return cl.RedirectURI
	}
	return supplied
}
