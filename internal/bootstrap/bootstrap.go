// Package bootstrap assembles an Engine from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/pilab-dev/shadow-oauth/bolt"
	"github.com/pilab-dev/shadow-oauth/cache"
	rediscache "github.com/pilab-dev/shadow-oauth/cache/redis"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/domain"
	"github.com/pilab-dev/shadow-oauth/internal/audit"
	"github.com/pilab-dev/shadow-oauth/internal/metrics"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/memory"
	"github.com/pilab-dev/shadow-oauth/mongodb"
	"github.com/pilab-dev/shadow-oauth/postgres"
	"github.com/pilab-dev/shadow-oauth/services"
	"github.com/pilab-dev/shadow-oauth/tracing"
)

// CloseFunc releases everything Open acquired.
type CloseFunc func(ctx context.Context) error

// Options carries process-level choices that do not belong in the config
// file.
type Options struct {
	// TraceOutput receives spans as JSON when non-nil.
	TraceOutput io.Writer
	// Registerer receives the engine metrics when cfg.MetricsEnabled is set.
	// Defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Logger overrides the logger built from cfg.
	Logger log.Logger
	// AuditOutput receives audit events when cfg.AuditEnabled is set.
	// Defaults to stderr.
	AuditOutput io.Writer
}

// Open builds the repositories, client cache, logger and tracer selected by
// cfg and returns an Engine on top of them.
func Open(ctx context.Context, cfg *config.Config, opts Options) (*services.Engine, CloseFunc, error) {
	var closers []CloseFunc
	closeAll := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewZerologAdapter(log.ParseLevel(cfg.LogLevel), cfg.LogPretty)
	}

	if opts.TraceOutput != nil {
		tp, err := tracing.InitTracerProvider(ctx, cfg.OtelServiceName, opts.TraceOutput)
		if err != nil {
			return nil, nil, fmt.Errorf("init tracer provider: %w", err)
		}
		closers = append(closers, tp.Shutdown)
	}

	if cfg.MetricsEnabled {
		reg := opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		metrics.Register(reg)
	}

	clientCache, closeCache, err := openClientCache(ctx, cfg)
	if err != nil {
		_ = closeAll(ctx)
		return nil, nil, err
	}
	if closeCache != nil {
		closers = append(closers, closeCache)
	}

	repos, err := OpenRepositories(ctx, cfg)
	if err != nil {
		_ = closeAll(ctx)
		return nil, nil, err
	}

	engineOpts := []services.Option{
		services.WithLogger(logger),
		services.WithGrantLifetime(cfg.GrantLifetime),
		services.WithTokenLifetime(cfg.TokenLifetime),
		services.WithTracer(tracing.Tracer()),
	}
	if clientCache != nil {
		engineOpts = append(engineOpts, services.WithClientCache(clientCache))
	}
	if cfg.AuditEnabled {
		out := opts.AuditOutput
		if out == nil {
			out = os.Stderr
		}
		engineOpts = append(engineOpts, services.WithAuditRecorder(audit.New(out)))
	}

	engine := services.NewEngine(repos, engineOpts...)
	closers = append(closers, engine.Close)

	logger.Debug(ctx, "authorization engine ready", map[string]interface{}{
		"storage_backend": cfg.StorageBackend,
		"client_cache":    clientCache != nil,
	})
	return engine, closeAll, nil
}

// OpenRepositories opens the storage backend named by cfg.StorageBackend.
func OpenRepositories(ctx context.Context, cfg *config.Config) (domain.Repositories, error) {
	var (
		repos domain.Repositories
		err   error
	)
	switch cfg.StorageBackend {
	case config.BackendMemory:
		repos = memory.New()
	case config.BackendBolt:
		repos, err = openAs(bolt.Open(cfg.BoltPath))
	case config.BackendMongoDB:
		repos, err = openAs(mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDBName))
	case config.BackendPostgres:
		repos, err = openAs(postgres.Open(ctx, cfg.PostgresDSN))
	default:
		err = fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageBackend, err)
	}
	return repos, nil
}

// openAs keeps a failed open from producing a non-nil interface around a nil
// store.
func openAs[S domain.Repositories](s S, err error) (domain.Repositories, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// openClientCache prefers Redis when an address is configured. A zero TTL
// without Redis disables caching.
func openClientCache(ctx context.Context, cfg *config.Config) (cache.ClientCache, CloseFunc, error) {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		closeFn := func(context.Context) error { return client.Close() }
		return rediscache.NewClientCache(client, cfg.RedisPrefix, cfg.ClientCacheTTL), closeFn, nil
	}

	if cfg.ClientCacheTTL <= 0 {
		return nil, nil, nil
	}

	c := cache.NewMemoryClientCache(cfg.ClientCacheTTL)
	return c, func(context.Context) error { c.Stop(); return nil }, nil
}
