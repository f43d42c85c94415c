package services

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/pilab-dev/shadow-oauth/errors"
)

func TestIssuerService_CRUD(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.engine.Issuers.Create(ctx, IssuerFields{})
	require.Error(t, err)
	assert.Equal(t, serrors.InvalidRequest, serrors.ToOAuth2Error(err).Code)

	iss, err := env.engine.Issuers.Create(ctx, IssuerFields{
		Identifier: "https://idp.example.com",
		HMACSecret: "shared",
		Notes:      "partner",
	})
	require.NoError(t, err)
	assert.True(t, iss.CreatedAt.Equal(testStart))

	_, err = env.engine.Issuers.Create(ctx, IssuerFields{Identifier: "https://idp.example.com"})
	assert.ErrorIs(t, err, serrors.ErrDuplicateKey)

	env.clock.Advance(time.Hour)
	updated, err := env.engine.Issuers.Update(ctx, iss.Identifier, IssuerPatch{Notes: ptr("renamed")})
	require.NoError(t, err)
	assert.Equal(t, "shared", updated.HMACSecret)
	assert.Equal(t, "renamed", updated.Notes)
	assert.True(t, updated.CreatedAt.Equal(testStart))
	assert.True(t, updated.UpdatedAt.Equal(testStart.Add(time.Hour)))

	found, err := env.engine.Issuers.Find(ctx, iss.Identifier)
	require.NoError(t, err)
	assert.Equal(t, "renamed", found.Notes)

	_, err = env.engine.Issuers.Find(ctx, "unknown")
	assert.ErrorIs(t, err, serrors.ErrIssuerNotFound)
}

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func TestIssuerService_VerifyAssertionHMAC(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.engine.Issuers.Create(ctx, IssuerFields{Identifier: "idp", HMACSecret: "shared"})
	require.NoError(t, err)

	valid := signHS256(t, "shared", jwt.MapClaims{
		"iss": "idp",
		"sub": "alice",
		"exp": testStart.Add(time.Minute).Unix(),
	})
	claims, err := env.engine.Issuers.VerifyAssertion(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims["sub"])

	tests := []struct {
		name      string
		assertion string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong secret", signHS256(t, "other", jwt.MapClaims{"iss": "idp", "exp": testStart.Add(time.Minute).Unix()})},
		{"unknown issuer", signHS256(t, "shared", jwt.MapClaims{"iss": "nobody", "exp": testStart.Add(time.Minute).Unix()})},
		{"no issuer", signHS256(t, "shared", jwt.MapClaims{"exp": testStart.Add(time.Minute).Unix()})},
		{"no expiry", signHS256(t, "shared", jwt.MapClaims{"iss": "idp"})},
		{"expired", signHS256(t, "shared", jwt.MapClaims{"iss": "idp", "exp": testStart.Add(-time.Minute).Unix()})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.engine.Issuers.VerifyAssertion(ctx, tt.assertion)
			assert.ErrorIs(t, err, serrors.ErrInvalidAssertion)
			assert.Equal(t, serrors.InvalidGrant, serrors.ToOAuth2Error(err).Code)
		})
	}
}

func TestIssuerService_VerifyAssertionECDSA(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pub := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))

	_, err = env.engine.Issuers.Create(ctx, IssuerFields{Identifier: "ec-idp", PublicKey: pub})
	require.NoError(t, err)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": "ec-idp",
		"sub": "svc",
		"exp": testStart.Add(time.Minute).Unix(),
	}).SignedString(key)
	require.NoError(t, err)

	claims, err := env.engine.Issuers.VerifyAssertion(ctx, signed)
	require.NoError(t, err)
	assert.Equal(t, "svc", claims["sub"])

	// An HMAC assertion must not verify against an issuer that only has a
	// public key.
	hmac := signHS256(t, pub, jwt.MapClaims{"iss": "ec-idp", "exp": testStart.Add(time.Minute).Unix()})
	_, err = env.engine.Issuers.VerifyAssertion(ctx, hmac)
	assert.ErrorIs(t, err, serrors.ErrInvalidAssertion)
}
