package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, BackendMemory, cfg.StorageBackend)
	assert.Equal(t, 5*time.Minute, cfg.GrantLifetime)
	assert.Zero(t, cfg.TokenLifetime)
	assert.Equal(t, 30*time.Second, cfg.ClientCacheTTL)
	assert.Equal(t, "shadow-oauth", cfg.OtelServiceName)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oauth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
storage_backend: bolt
bolt_path: /var/lib/oauth/state.db
grant_lifetime: 2m
token_lifetime: 1h
`), 0o600))

	t.Setenv("SOAUTH_LOG_LEVEL", "warn")
	t.Setenv("SOAUTH_REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, BackendBolt, cfg.StorageBackend)
	assert.Equal(t, "/var/lib/oauth/state.db", cfg.BoltPath)
	assert.Equal(t, 2*time.Minute, cfg.GrantLifetime)
	assert.Equal(t, time.Hour, cfg.TokenLifetime)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "oauth.yaml"), []byte("storage_backend: postgres\npostgres_dsn: postgres://localhost/oauth\n"), 0o600))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.StorageBackend)
	assert.Equal(t, "postgres://localhost/oauth", cfg.PostgresDSN)
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{StorageBackend: BackendMemory, GrantLifetime: time.Minute}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "memory ok", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.StorageBackend = "sqlite" }, wantErr: "unknown storage_backend"},
		{name: "bolt without path", mutate: func(c *Config) { c.StorageBackend = BackendBolt }, wantErr: "bolt_path"},
		{name: "mongo without uri", mutate: func(c *Config) { c.StorageBackend = BackendMongoDB; c.MongoDBName = "x" }, wantErr: "mongo_uri"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.StorageBackend = BackendPostgres }, wantErr: "postgres_dsn"},
		{name: "zero grant lifetime", mutate: func(c *Config) { c.GrantLifetime = 0 }, wantErr: "grant_lifetime"},
		{name: "negative token lifetime", mutate: func(c *Config) { c.TokenLifetime = -time.Second }, wantErr: "token_lifetime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
