package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

// IssuerFields are the attributes of a new issuer.
type IssuerFields struct {
	Identifier string
	HMACSecret string
	PublicKey  string
	Notes      string
}

// IssuerPatch lists the issuer fields to change. Nil fields are kept.
type IssuerPatch struct {
	HMACSecret *string
	PublicKey  *string
	Notes      *string
}

// IssuerService manages trusted assertion issuers.
type IssuerService struct {
	core *core
}

// Create stores a new issuer.
func (s *IssuerService) Create(ctx context.Context, f IssuerFields) (*domain.Issuer, error) {
	if f.Identifier == "" {
		return nil, serrors.NewInvalidRequest("issuer identifier is required")
	}

	now := s.core.now()
	iss := &domain.Issuer{
		Identifier: f.Identifier,
		HMACSecret: f.HMACSecret,
		PublicKey:  f.PublicKey,
		Notes:      f.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.core.repos.Issuers().CreateIssuer(ctx, iss); err != nil {
		return nil, fmt.Errorf("create issuer: %w", err)
	}
	return iss, nil
}

// Find returns an issuer by identifier.
func (s *IssuerService) Find(ctx context.Context, identifier string) (*domain.Issuer, error) {
	return s.core.repos.Issuers().GetIssuer(ctx, identifier)
}

// Update merges the non-nil fields of p and refreshes UpdatedAt.
func (s *IssuerService) Update(ctx context.Context, identifier string, p IssuerPatch) (*domain.Issuer, error) {
	return s.core.repos.Issuers().UpdateIssuer(ctx, identifier, domain.IssuerUpdate{
		HMACSecret: p.HMACSecret,
		PublicKey:  p.PublicKey,
		Notes:      p.Notes,
		UpdatedAt:  s.core.now(),
	})
}

// VerifyAssertion validates a JWT bearer assertion against the issuer named
// in its iss claim and returns its claims. HMAC assertions are checked with
// the issuer's shared secret, RSA and ECDSA ones with its PEM public key.
func (s *IssuerService) VerifyAssertion(ctx context.Context, assertion string) (claims jwt.MapClaims, err error) {
	ctx, span := s.core.start(ctx, "issuers.VerifyAssertion")
	defer func() { endSpan(span, err) }()

	unverified, _, err := jwt.NewParser().ParseUnverified(assertion, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", serrors.ErrInvalidAssertion, err)
	}
	identifier, err := unverified.Claims.GetIssuer()
	if err != nil || identifier == "" {
		return nil, fmt.Errorf("%w: missing iss claim", serrors.ErrInvalidAssertion)
	}
	span.SetAttributes(attribute.String("issuer", identifier))

	iss, err := s.Find(ctx, identifier)
	if errors.Is(err, serrors.ErrIssuerNotFound) {
		return nil, fmt.Errorf("%w: %w", serrors.ErrInvalidAssertion, err)
	}
	if err != nil {
		return nil, err
	}

	claims = jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(assertion, claims, issuerKeyFunc(iss),
		jwt.WithIssuer(identifier),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.core.now),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}),
	)
	if err != nil {
		s.core.logger.Warn(ctx, "assertion rejected", map[string]interface{}{"issuer": identifier, "error": err.Error()})
		return nil, fmt.Errorf("%w: %w", serrors.ErrInvalidAssertion, err)
	}
	return claims, nil
}

func issuerKeyFunc(iss *domain.Issuer) jwt.Keyfunc {
	return func(t *jwt.Token) (interface{}, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if iss.HMACSecret == "" {
				return nil, errors.New("issuer has no hmac secret")
			}
			return []byte(iss.HMACSecret), nil
		case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS:
			if iss.PublicKey == "" {
				return nil, errors.New("issuer has no public key")
			}
			return jwt.ParseRSAPublicKeyFromPEM([]byte(iss.PublicKey))
		case *jwt.SigningMethodECDSA:
			if iss.PublicKey == "" {
				return nil, errors.New("issuer has no public key")
			}
			return jwt.ParseECPublicKeyFromPEM([]byte(iss.PublicKey))
		default:
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
	}
}
