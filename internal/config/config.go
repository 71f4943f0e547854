// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	rolerepo "orgscope/internal/role/repository"
	"orgscope/internal/selection"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Required by the server, migrate and seed.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Only
	// needed by binaries that issue tokens (seed).
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file used to verify access tokens.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// Env is the application environment ("development", "production").
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	OTLPEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// FetchTimeout bounds each membership and role load.
	FetchTimeout time.Duration `mapstructure:"FETCH_TIMEOUT"`
	// RoleScope is "global" (roles apply in every organization) or "tenant".
	RoleScope     string        `mapstructure:"ROLE_SCOPE"`
	RoleCacheSize int           `mapstructure:"ROLE_CACHE_SIZE"`
	RoleCacheTTL  time.Duration `mapstructure:"ROLE_CACHE_TTL"`
	// PolicyCacheSize bounds the compiled capability policies kept per process.
	PolicyCacheSize int `mapstructure:"POLICY_CACHE_SIZE"`

	// SelectionStore is "file", "redis" or "memory".
	SelectionStore string `mapstructure:"SELECTION_STORE"`
	// SelectionFile overrides the file store location.
	SelectionFile string        `mapstructure:"SELECTION_FILE"`
	SelectionTTL  time.Duration `mapstructure:"SELECTION_TTL"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`
	RedisTLS      bool          `mapstructure:"REDIS_TLS"`

	// SwitchOnCreate makes a newly created organization the current one.
	SwitchOnCreate bool   `mapstructure:"ORG_SWITCH_ON_CREATE"`
	LoginPath      string `mapstructure:"LOGIN_PATH"`
	OrgCreatePath  string `mapstructure:"ORG_CREATE_PATH"`
	// AccessAwaitTimeout bounds how long a request waits for session data to settle.
	AccessAwaitTimeout time.Duration `mapstructure:"ACCESS_AWAIT_TIMEOUT"`
	// HealthInterval is the period of readiness probes.
	HealthInterval time.Duration `mapstructure:"HEALTH_INTERVAL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "orgscope-auth")
	v.SetDefault("JWT_AUDIENCE", "orgscope-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "orgscope")
	v.SetDefault("FETCH_TIMEOUT", "10s")
	v.SetDefault("ROLE_SCOPE", string(rolerepo.ScopeGlobal))
	v.SetDefault("ROLE_CACHE_SIZE", 1024)
	v.SetDefault("ROLE_CACHE_TTL", "30s")
	v.SetDefault("POLICY_CACHE_SIZE", 256)
	v.SetDefault("SELECTION_STORE", string(selection.KindFile))
	v.SetDefault("SELECTION_FILE", "")
	v.SetDefault("SELECTION_TTL", "0s")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TLS", false)
	v.SetDefault("ORG_SWITCH_ON_CREATE", false)
	v.SetDefault("LOGIN_PATH", "/login")
	v.SetDefault("ORG_CREATE_PATH", "/organizations/new")
	v.SetDefault("ACCESS_AWAIT_TIMEOUT", "5s")
	v.SetDefault("HEALTH_INTERVAL", "15s")
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.FetchTimeout <= 0 {
		return errors.New("config: FETCH_TIMEOUT must be positive")
	}
	if _, err := rolerepo.ParseScope(c.RoleScope); err != nil {
		return fmt.Errorf("config: ROLE_SCOPE: %w", err)
	}
	kind, err := selection.ParseKind(c.SelectionStore)
	if err != nil {
		return fmt.Errorf("config: SELECTION_STORE: %w", err)
	}
	if kind == selection.KindRedis && c.RedisAddr == "" {
		return errors.New("config: REDIS_ADDR must be set when SELECTION_STORE=redis")
	}
	if c.RoleCacheSize < 0 {
		return errors.New("config: ROLE_CACHE_SIZE must not be negative")
	}
	return nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// Scope returns the validated role scope.
func (c *Config) Scope() rolerepo.Scope {
	s, _ := rolerepo.ParseScope(c.RoleScope)
	return s
}

// SelectionKind returns the validated selection store kind.
func (c *Config) SelectionKind() selection.Kind {
	k, _ := selection.ParseKind(c.SelectionStore)
	return k
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return c.Env == "production"
}

// Redis returns the Redis connection settings.
func (c *Config) Redis() selection.RedisConfig {
	return selection.RedisConfig{
		Address:      c.RedisAddr,
		Password:     c.RedisPassword,
		DB:           c.RedisDB,
		UseTLS:       c.RedisTLS,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}
