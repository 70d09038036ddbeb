package config

import (
	"fmt"
	"os"
	"time"

	pkgcfg "github.com/Skotchmaster/vending_machine/pkg/config"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DatabaseURL string
	DBSQLDriver string

	JWTSecret       []byte
	RefreshSecret   []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	CookieSecure    bool

	MaxUserSessions      int
	SessionSweepInterval time.Duration

	RedisURL     string
	KafkaBrokers []string
	OTLPEndpoint string
	CORSOrigins  []string
}

// Load reads the environment (after .env, when present). It does not check
// required keys; Validate does.
func Load() (*Config, error) {
	if err := pkgcfg.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	return &Config{
		ServiceName: pkgcfg.EnvDefault("SERVICE_NAME", "vending"),
		ServerPort:  pkgcfg.EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    pkgcfg.EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBSQLDriver: pkgcfg.EnvDefault("DB_SQL_DRIVER", "pgx"),

		JWTSecret:       []byte(os.Getenv("JWT_SECRET")),
		RefreshSecret:   []byte(os.Getenv("JWT_REFRESH_SECRET")),
		AccessTokenTTL:  pkgcfg.EnvDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: pkgcfg.EnvDurationDefault("REFRESH_TOKEN_TTL", 24*time.Hour),
		CookieSecure:    pkgcfg.EnvBoolDefault("COOKIE_SECURE", true),

		MaxUserSessions:      pkgcfg.EnvIntDefault("MAX_USER_SESSIONS", 1),
		SessionSweepInterval: pkgcfg.EnvDurationDefault("SESSION_SWEEP_INTERVAL", 0),

		RedisURL:     os.Getenv("REDIS_URL"),
		KafkaBrokers: pkgcfg.CSV(os.Getenv("KAFKA_BROKERS")),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		CORSOrigins:  pkgcfg.CSV(os.Getenv("CORS_ORIGINS")),
	}, nil
}

// ValidateDB checks what every command touching the database needs.
func (c *Config) ValidateDB() error {
	return pkgcfg.MustNonEmpty(c.DatabaseURL, "DATABASE_URL")
}

// Validate checks everything the HTTP server needs.
func (c *Config) Validate() error {
	if err := c.ValidateDB(); err != nil {
		return err
	}
	if err := pkgcfg.MustNonEmptyBytes(c.JWTSecret, "JWT_SECRET"); err != nil {
		return err
	}
	if err := pkgcfg.MustNonEmptyBytes(c.RefreshSecret, "JWT_REFRESH_SECRET"); err != nil {
		return err
	}
	if c.MaxUserSessions < 1 {
		return fmt.Errorf("MAX_USER_SESSIONS must be positive, got %d", c.MaxUserSessions)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
