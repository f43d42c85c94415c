package services

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/scope"
)

// ClientFields are the caller-supplied attributes of a client. ID and Secret
// are only honoured by Register.
type ClientFields struct {
	ID          string
	Secret      string
	DisplayName string
	Link        string
	ImageURL    string
	RedirectURI string
	Scope       []string
	Notes       string
}

// ClientService manages registered clients and the revocation cascade.
type ClientService struct {
	core *core
}

// Register creates a client, generating the ID and secret when absent.
func (s *ClientService) Register(ctx context.Context, f ClientFields) (c *domain.Client, err error) {
	ctx, span := s.core.start(ctx, "clients.Register")
	defer func() { endSpan(span, err) }()

	id := f.ID
	if id == "" {
		if id, err = s.core.newOpaqueID(); err != nil {
			return nil, fmt.Errorf("failed to generate client id: %w", err)
		}
	}
	secret := f.Secret
	if secret == "" {
		if secret, err = s.core.newOpaqueID(); err != nil {
			return nil, fmt.Errorf("failed to generate client secret: %w", err)
		}
	}

	c = &domain.Client{
		ID:          id,
		Secret:      secret,
		DisplayName: f.DisplayName,
		Link:        f.Link,
		ImageURL:    f.ImageURL,
		RedirectURI: f.RedirectURI,
		Scope:       scope.Normalize(f.Scope...),
		Notes:       f.Notes,
		CreatedAt:   s.core.now(),
	}
	if err := s.core.repos.Clients().CreateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("register client: %w", err)
	}

	s.core.logger.Info(ctx, "client registered", map[string]interface{}{
		"client_id":    c.ID,
		"display_name": c.DisplayName,
		"scope":        c.Scope.String(),
	})
	return c, nil
}

// Get returns a client by ID, whether revoked or not.
func (s *ClientService) Get(ctx context.Context, id string) (*domain.Client, error) {
	return s.core.client(ctx, id)
}

// Lookup resolves key as a client ID, then as a display name, then as a
// link. The first match wins.
func (s *ClientService) Lookup(ctx context.Context, key string) (c *domain.Client, err error) {
	ctx, span := s.core.start(ctx, "clients.Lookup")
	defer func() { endSpan(span, err) }()

	if key == "" {
		return nil, serrors.ErrClientNotFound
	}

	c, err = s.core.client(ctx, key)
	if !errors.Is(err, serrors.ErrClientNotFound) {
		return c, err
	}

	repo := s.core.repos.Clients()
	c, err = repo.FindClient(ctx, domain.ClientFilter{DisplayName: key})
	if !errors.Is(err, serrors.ErrClientNotFound) {
		return c, err
	}
	return repo.FindClient(ctx, domain.ClientFilter{Link: key})
}

// List returns every client ordered by display name.
func (s *ClientService) List(ctx context.Context) ([]*domain.Client, error) {
	return s.core.repos.Clients().ListClients(ctx)
}

// Update replaces the descriptive fields and the scope of a client. Updating
// a revoked client reinstates it; records revoked by the cascade stay
// revoked.
func (s *ClientService) Update(ctx context.Context, id string, f ClientFields) (c *domain.Client, err error) {
	ctx, span := s.core.start(ctx, "clients.Update", attribute.String("client_id", id))
	defer func() { endSpan(span, err) }()

	repo := s.core.repos.Clients()
	c, err = repo.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	c.DisplayName = f.DisplayName
	c.Link = f.Link
	c.ImageURL = f.ImageURL
	c.RedirectURI = f.RedirectURI
	c.Notes = f.Notes
	c.Scope = scope.Normalize(f.Scope...)
	c.RevokedAt = nil

	if err := repo.UpdateClient(ctx, c); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	s.core.invalidateClient(ctx, id)

	s.core.logger.Info(ctx, "client updated", map[string]interface{}{"client_id": id, "scope": c.Scope.String()})
	return c, nil
}

// Revoke marks the client revoked and stamps the same revocation time on all
// of its authorization requests, grants and tokens.
func (s *ClientService) Revoke(ctx context.Context, id string) (err error) {
	ctx, span := s.core.start(ctx, "clients.Revoke", attribute.String("client_id", id))
	defer func() { endSpan(span, err) }()

	repos := s.core.repos
	c, err := repos.Clients().GetClient(ctx, id)
	if err != nil {
		return err
	}

	now := s.core.now()
	c.RevokedAt = &now
	if err := repos.Clients().UpdateClient(ctx, c); err != nil {
		return fmt.Errorf("revoke client: %w", err)
	}
	s.core.invalidateClient(ctx, id)

	if err := repos.AuthRequests().RevokeAuthRequests(ctx, id, now); err != nil {
		return fmt.Errorf("revoke auth requests: %w", err)
	}
	if err := repos.AccessGrants().RevokeAccessGrants(ctx, id, now); err != nil {
		return fmt.Errorf("revoke access grants: %w", err)
	}
	if err := repos.AccessTokens().RevokeAccessTokens(ctx, id, now); err != nil {
		return fmt.Errorf("revoke access tokens: %w", err)
	}

	metrics.ClientsRevokedTotal.Inc()
	s.core.audit.Record(ctx, audit.Event{Action: audit.ActionClientRevoked, ClientID: id, Target: id, Success: true})
	s.core.logger.Info(ctx, "client revoked", map[string]interface{}{"client_id": id})
	return nil
}

// Delete removes the client together with every record that references it.
func (s *ClientService) Delete(ctx context.Context, id string) (err error) {
	ctx, span := s.core.start(ctx, "clients.Delete", attribute.String("client_id", id))
	defer func() { endSpan(span, err) }()

	repos := s.core.repos
	if _, err := repos.Clients().GetClient(ctx, id); err != nil {
		return err
	}

	// Dependents go first so a failed delete can simply be retried.
	if err := repos.AuthRequests().DeleteAuthRequests(ctx, id); err != nil {
		return fmt.Errorf("delete auth requests: %w", err)
	}
	if err := repos.AccessGrants().DeleteAccessGrants(ctx, id); err != nil {
		return fmt.Errorf("delete access grants: %w", err)
	}
	if err := repos.AccessTokens().DeleteAccessTokens(ctx, id); err != nil {
		return fmt.Errorf("delete access tokens: %w", err)
	}
	if err := repos.Clients().DeleteClient(ctx, id); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	s.core.invalidateClient(ctx, id)

	s.core.audit.Record(ctx, audit.Event{Action: audit.ActionClientDeleted, ClientID: id, Target: id, Success: true})
	s.core.logger.Info(ctx, "client deleted", map[string]interface{}{"client_id": id})
	return nil
}
