package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	pkgconfig "github.com/KingHarry001/portfolio/pkg/config"
	"github.com/KingHarry001/portfolio/pkg/database"
)

// defaultJWTSecret is only accepted in development.
const defaultJWTSecret = "change-this-to-the-identity-provider-jwt-secret"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all configuration for the review service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"REVIEW_HTTP_PORT" envDefault:"8010"`

	// Review store: postgres or memory
	Store string `env:"REVIEW_STORE" envDefault:"postgres"`

	// Reviews
	MinTextLength int `env:"REVIEW_MIN_TEXT_LENGTH" envDefault:"10"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"portfolio"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"portfolio"`
	PostgresDB   string `env:"REVIEW_DB_NAME" envDefault:"reviews"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis stats cache
	RedisAddr         string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass         string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB           int    `env:"REDIS_DB" envDefault:"0"`
	StatsCacheEnabled bool   `env:"STATS_CACHE_ENABLED" envDefault:"false"`
	StatsCacheTTLSecs int    `env:"STATS_CACHE_TTL_SECONDS" envDefault:"300"`

	// Kafka
	KafkaEnabled       bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers       []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"review-service"`

	// Identity provider
	JWTSecret          string `env:"IDENTITY_JWT_SECRET" envDefault:"change-this-to-the-identity-provider-jwt-secret"`
	JWTIssuer          string `env:"IDENTITY_ISSUER" envDefault:""`
	ProfileURL         string `env:"IDENTITY_PROFILE_URL" envDefault:""`
	IdentityServiceKey string `env:"IDENTITY_SERVICE_KEY" envDefault:""`

	// Submit rate limiting, per client IP
	SubmitRateLimitRPS   float64 `env:"SUBMIT_RATE_LIMIT_RPS" envDefault:"0.5"`
	SubmitRateLimitBurst int     `env:"SUBMIT_RATE_LIMIT_BURST" envDefault:"5"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load review config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.Store {
	case StorePostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("REVIEW_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.MinTextLength < 1 {
		return fmt.Errorf("REVIEW_MIN_TEXT_LENGTH must be at least 1, got %d", c.MinTextLength)
	}
	if c.StatsCacheEnabled {
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when STATS_CACHE_ENABLED is set")
		}
		if c.StatsCacheTTLSecs <= 0 {
			return fmt.Errorf("STATS_CACHE_TTL_SECONDS must be positive, got %d", c.StatsCacheTTLSecs)
		}
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.Environment != "development" {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("IDENTITY_JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("IDENTITY_JWT_SECRET must be at least 32 characters long, got %d", len(c.JWTSecret))
		}
	}
	if c.SubmitRateLimitRPS <= 0 || c.SubmitRateLimitBurst <= 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT_RPS and SUBMIT_RATE_LIMIT_BURST must be positive")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	for _, cidr := range c.PprofAllowedCIDRs {
		cidr = strings.TrimSpace(cidr)
		if _, err := netip.ParsePrefix(cidr); err != nil {
			if _, err := netip.ParseAddr(cidr); err != nil {
				return fmt.Errorf("invalid PPROF_ALLOWED_CIDRS entry %q", cidr)
			}
		}
	}
	return nil
}

// Postgres returns the pool configuration for the review database. Pool
// settings that are not positive keep the package defaults.
func (c *Config) Postgres() *database.PostgresConfig {
	cfg := database.DefaultPostgresConfig()
	cfg.Host = c.PostgresHost
	cfg.Port = c.PostgresPort
	cfg.User = c.PostgresUser
	cfg.Password = c.PostgresPass
	cfg.DBName = c.PostgresDB
	cfg.SSLMode = c.PostgresSSL

	if c.DBMaxConns > 0 {
		cfg.MaxConns = c.DBMaxConns
	}
	if c.DBMinConns > 0 {
		cfg.MinConns = c.DBMinConns
	}
	if c.DBMaxConnLifetimeMins > 0 {
		cfg.MaxConnLifetime = time.Duration(c.DBMaxConnLifetimeMins) * time.Minute
	}
	if c.DBMaxConnIdleTimeMins > 0 {
		cfg.MaxConnIdleTime = time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute
	}
	return &cfg
}

// Redis returns the client configuration for the stats cache.
func (c *Config) Redis() database.RedisConfig {
	cfg := database.DefaultRedisConfig()
	cfg.Addr = c.RedisAddr
	cfg.Password = c.RedisPass
	cfg.DB = c.RedisDB
	return cfg
}

// StatsCacheTTL returns the stats cache TTL.
func (c *Config) StatsCacheTTL() time.Duration {
	return time.Duration(c.StatsCacheTTLSecs) * time.Second
}

// SlowQueryThreshold returns the slow query logging threshold.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
