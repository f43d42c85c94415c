package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/clock"
	"github.com/pilab-dev/shadow-oauth/memory"
)

var testStart = time.Date(2024, 5, 1, 10, 15, 0, 0, time.UTC)

type testEnv struct {
	engine *Engine
	clock  *clock.Manual
	store  *memory.Store
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()

	store := memory.New()
	clk := clock.NewManual(testStart)
	opts = append([]Option{WithClock(clk)}, opts...)

	return &testEnv{
		engine: NewEngine(store, opts...),
		clock:  clk,
		store:  store,
	}
}

func (e *testEnv) registerClient(t *testing.T, name string, scopes ...string) *domain.Client {
	t.Helper()

	c, err := e.engine.Clients.Register(context.Background(), ClientFields{
		DisplayName: name,
		Link:        "https://" + name + ".example.com",
		RedirectURI: "https://" + name + ".example.com/callback",
		Scope:       scopes,
	})
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T { return &v }

// MockRandomSource is a testify mock of domain.RandomSource.
type MockRandomSource struct {
	mock.Mock
}

func (m *MockRandomSource) GenerateOpaqueID(lengthBytes int) (string, error) {
	args := m.Called(lengthBytes)
	return args.String(0), args.Error(1)
}

// failingTokens fails every token write with a store error.
type failingTokens struct {
	domain.AccessTokenRepository
}

var errConnRefused = errors.New("connection refused")

func (failingTokens) CreateAccessToken(context.Context, *domain.AccessToken) error {
	return serrors.Store("insert access token", errConnRefused)
}

func (failingTokens) FindActiveAccessToken(context.Context, domain.ActiveTokenQuery) (*domain.AccessToken, error) {
	return nil, serrors.ErrTokenNotFound
}

// countingTokens counts UpdateAccessToken calls.
type countingTokens struct {
	domain.AccessTokenRepository
	updates int
}

func (c *countingTokens) UpdateAccessToken(ctx context.Context, token string, upd domain.AccessTokenUpdate) error {
	c.updates++
	return c.AccessTokenRepository.UpdateAccessToken(ctx, token, upd)
}

// reposWithTokens swaps the token repository of a memory store.
type reposWithTokens struct {
	*memory.Store
	tokens domain.AccessTokenRepository
}

func (r reposWithTokens) AccessTokens() domain.AccessTokenRepository { return r.tokens }
