package bootstrap

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilab-dev/shadow-oauth/bolt"
	"github.com/pilab-dev/shadow-oauth/config"
	"github.com/pilab-dev/shadow-oauth/log"
	"github.com/pilab-dev/shadow-oauth/memory"
	"github.com/pilab-dev/shadow-oauth/services"
)

func testConfig() *config.Config {
	return &config.Config{
		LogLevel:       "info",
		StorageBackend: config.BackendMemory,
		ClientCacheTTL: time.Minute,
		GrantLifetime:  time.Minute,
	}
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.MetricsEnabled = true

	engine, closeFn, err := Open(ctx, cfg, Options{Registerer: reg, Logger: log.NewNopLogger()})
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn(ctx)) }()

	client, err := engine.Clients.Register(ctx, services.ClientFields{DisplayName: "Alpha", Scope: []string{"email"}})
	require.NoError(t, err)

	got, err := engine.Clients.Get(ctx, client.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alpha", got.DisplayName)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestOpen_Tracing(t *testing.T) {
	ctx := context.Background()
	var spans bytes.Buffer

	engine, closeFn, err := Open(ctx, testConfig(), Options{TraceOutput: &spans, Logger: log.NewNopLogger()})
	require.NoError(t, err)

	_, err = engine.Clients.Register(ctx, services.ClientFields{DisplayName: "Alpha"})
	require.NoError(t, err)

	require.NoError(t, closeFn(ctx))
	assert.Contains(t, spans.String(), "oauth.")
}

func TestOpen_Audit(t *testing.T) {
	ctx := context.Background()
	var events bytes.Buffer
	cfg := testConfig()
	cfg.AuditEnabled = true

	engine, closeFn, err := Open(ctx, cfg, Options{AuditOutput: &events, Logger: log.NewNopLogger()})
	require.NoError(t, err)
	defer func() { require.NoError(t, closeFn(ctx)) }()

	c, err := engine.Clients.Register(ctx, services.ClientFields{DisplayName: "Alpha"})
	require.NoError(t, err)
	require.NoError(t, engine.Clients.Revoke(ctx, c.ID))

	assert.Contains(t, events.String(), `"action":"client.revoked"`)
}

func TestOpenRepositories(t *testing.T) {
	ctx := context.Background()

	repos, err := OpenRepositories(ctx, testConfig())
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, repos)

	cfg := testConfig()
	cfg.StorageBackend = config.BackendBolt
	cfg.BoltPath = filepath.Join(t.TempDir(), "oauth.db")
	repos, err = OpenRepositories(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &bolt.Store{}, repos)
	require.NoError(t, repos.Close(ctx))

	cfg.StorageBackend = "sqlite"
	_, err = OpenRepositories(ctx, cfg)
	assert.Error(t, err)
}

func TestOpen_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.RedisAddr = "127.0.0.1:1"

	_, _, err := Open(context.Background(), cfg, Options{Logger: log.NewNopLogger()})
	assert.ErrorContains(t, err, "redis")
}
