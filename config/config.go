// Package config loads the engine and CLI configuration with viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendBolt     = "bolt"
	BackendMongoDB  = "mongodb"
	BackendPostgres = "postgres"
)

// EnvPrefix prefixes every environment override, e.g. SOAUTH_LOG_LEVEL.
const EnvPrefix = "SOAUTH"

// Config holds all configuration for the engine and the admin CLI.
//
//nolint:tagliatelle
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogPretty bool   `mapstructure:"log_pretty"`

	StorageBackend string `mapstructure:"storage_backend"`
	MongoURI       string `mapstructure:"mongo_uri"`
	MongoDBName    string `mapstructure:"mongo_db_name"`
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	BoltPath       string `mapstructure:"bolt_path"`

	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPrefix    string        `mapstructure:"redis_prefix"`
	ClientCacheTTL time.Duration `mapstructure:"client_cache_ttl"`

	GrantLifetime time.Duration `mapstructure:"grant_lifetime"`
	TokenLifetime time.Duration `mapstructure:"token_lifetime"`

	OtelServiceName string `mapstructure:"otel_service_name"`
	MetricsEnabled  bool   `mapstructure:"metrics_enabled"`
	AuditEnabled    bool   `mapstructure:"audit_enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("storage_backend", BackendMemory)
	v.SetDefault("mongo_uri", "mongodb://localhost:27017")
	v.SetDefault("mongo_db_name", "shadow_oauth")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("bolt_path", "shadow-oauth.db")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_prefix", "soauth")
	v.SetDefault("client_cache_ttl", 30*time.Second)
	v.SetDefault("grant_lifetime", 5*time.Minute)
	v.SetDefault("token_lifetime", time.Duration(0))
	v.SetDefault("otel_service_name", "shadow-oauth")
	v.SetDefault("metrics_enabled", false)
	v.SetDefault("audit_enabled", false)
}

// LoadConfig reads configuration from file, environment variables and
// defaults. An empty path searches for oauth.yaml in the working directory,
// /etc/shadow-oauth/ and $HOME/.shadow-oauth; a missing file is not an error
// in that case.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("oauth")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/shadow-oauth/")
		v.AddConfigPath("$HOME/.shadow-oauth")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected backend has what it needs.
func (c *Config) Validate() error {
	switch c.StorageBackend {
	case BackendMemory:
	case BackendBolt:
		if c.BoltPath == "" {
			return errors.New("config: bolt_path is required for the bolt backend")
		}
	case BackendMongoDB:
		if c.MongoURI == "" || c.MongoDBName == "" {
			return errors.New("config: mongo_uri and mongo_db_name are required for the mongodb backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return errors.New("config: postgres_dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("config: unknown storage_backend %q", c.StorageBackend)
	}

	if c.GrantLifetime <= 0 {
		return errors.New("config: grant_lifetime must be positive")
	}
	if c.TokenLifetime < 0 {
		return errors.New("config: token_lifetime must not be negative")
	}
	if c.ClientCacheTTL < 0 {
		return errors.New("config: client_cache_ttl must not be negative")
	}
	return nil
}
