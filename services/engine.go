package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pilab-dev/shadow-oauth/cache"
	"github.com/pilab-dev/shadow-oauth/domain"
	serrors "github.com/pilab-dev/shadow-oauth/errors"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/clock"
	"github.com/pilab-dev/shadow-oauth/internal/random"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/tracing"
)

// Engine owns the authorization state machine. It holds no per-request state;
// every service call goes straight to the repositories.
type Engine struct {
	Clients      *ClientService
	Tokens       *TokenService
	Grants       *GrantService
	AuthRequests *AuthRequestService
	Issuers      *IssuerService

	core *core
}

// Option configures an Engine.
type Option func(*core)

// WithClock replaces the system clock.
func WithClock(c domain.Clock) Option {
	return func(e *core) { e.clock = c }
}

// WithRandomSource replaces the crypto/rand identifier source.
func WithRandomSource(r domain.RandomSource) Option {
	return func(e *core) { e.random = r }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l log.Logger) Option {
	return func(e *core) { e.logger = l }
}

// WithClientCache puts a cache in front of client lookups.
func WithClientCache(c cache.ClientCache) Option {
	return func(e *core) { e.clientCache = c }
}

// WithAuditRecorder records revocations, deletions and rejected grants.
func WithAuditRecorder(r *audit.Recorder) Option {
	return func(e *core) { e.audit = r }
}

// WithGrantLifetime sets how long new access grants stay redeemable.
func WithGrantLifetime(d time.Duration) Option {
	return func(e *core) {
		if d > 0 {
			e.grantLifetime = d
		}
	}
}

// WithTokenLifetime sets the default access token lifetime. Zero means
// tokens never expire unless the caller asks otherwise.
func WithTokenLifetime(d time.Duration) Option {
	return func(e *core) {
		if d >= 0 {
			e.tokenLifetime = d
		}
	}
}

// WithTracer sets the tracer used for engine spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *core) { e.tracer = t }
}

// NewEngine wires the services on top of repos.
func NewEngine(repos domain.Repositories, opts ...Option) *Engine {
	c := &core{
		repos:         repos,
		clock:         clock.Real{},
		random:        random.New(),
		logger:        log.NewNopLogger(),
		grantLifetime: domain.DefaultGrantLifetime,
		tracer:        tracing.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	return &Engine{
		Clients:      &ClientService{core: c},
		Tokens:       &TokenService{core: c},
		Grants:       &GrantService{core: c},
		AuthRequests: &AuthRequestService{core: c},
		Issuers:      &IssuerService{core: c},
		core:         c,
	}
}

// Close releases the repositories.
func (e *Engine) Close(ctx context.Context) error {
	return e.core.repos.Close(ctx)
}

// core carries the collaborators shared by every service.
type core struct {
	repos         domain.Repositories
	clock         domain.Clock
	random        domain.RandomSource
	logger        log.Logger
	clientCache   cache.ClientCache
	audit         *audit.Recorder
	grantLifetime time.Duration
	tokenLifetime time.Duration
	tracer        trace.Tracer
}

func (c *core) now() time.Time {
	return c.clock.Now().UTC()
}

func (c *core) newOpaqueID() (string, error) {
	return c.random.GenerateOpaqueID(domain.OpaqueIDBytes)
}

func (c *core) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "oauth."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// client returns a client by ID, consulting the cache first.
func (c *core) client(ctx context.Context, id string) (*domain.Client, error) {
	if c.clientCache != nil {
		if cl, ok := c.clientCache.Get(ctx, id); ok {
			return cl, nil
		}
	}

	cl, err := c.repos.Clients().GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.clientCache != nil {
		if err := c.clientCache.Set(ctx, cl); err != nil {
			c.logger.Warn(ctx, "failed to cache client", map[string]interface{}{"client_id": id, "error": err.Error()})
		}
	}
	return cl, nil
}

// activeClient is client but treats a revoked client as missing.
func (c *core) activeClient(ctx context.Context, id string) (*domain.Client, error) {
	cl, err := c.client(ctx, id)
	if err != nil {
		return nil, err
	}
	if cl.IsRevoked() {
		return nil, serrors.ErrClientNotFound
	}
	return cl, nil
}

func (c *core) invalidateClient(ctx context.Context, id string) {
	if c.clientCache == nil {
		return
	}
	if err := c.clientCache.Delete(ctx, id); err != nil {
		c.logger.Warn(ctx, "failed to invalidate cached client", map[string]interface{}{"client_id": id, "error": err.Error()})
	}
}

// isNotFound reports whether err is one of the lookup misses.
func isNotFound(err error) bool {
	return errors.Is(err, serrors.ErrClientNotFound) ||
		errors.Is(err, serrors.ErrTokenNotFound) ||
		errors.Is(err, serrors.ErrGrantNotFound) ||
		errors.Is(err, serrors.ErrAuthRequestNotFound) ||
		errors.Is(err, serrors.ErrIssuerNotFound)
}

// short returns a loggable prefix of a secret value.
func short(s string) string {
	const n = 8
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// logFailure logs lookup misses at debug level and everything else as an
// error.
func (c *core) logFailure(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	if isNotFound(err) {
		fields["error"] = err.Error()
		c.logger.Debug(ctx, msg, fields)
		return
	}
	c.logger.Error(ctx, msg, err, fields)
}
