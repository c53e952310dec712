package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/auth-gateway/internal/domain"
)

// ErrMissingSigningKey is returned when AUTH_JWT_SECRET is absent or empty.
var ErrMissingSigningKey = errors.New("AUTH_JWT_SECRET is not configured")

// Ledger backends.
const (
	LedgerBackendRedis    = "redis"
	LedgerBackendPostgres = "postgres"
	LedgerBackendMemory   = "memory"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Ledger   LedgerConfig
	Identity IdentityConfig
	Metrics  MetricsConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token verification parameters.
type AuthConfig struct {
	// SigningKey is the decoded HMAC key. Never empty after Load.
	SigningKey    []byte
	CookieName    string
	RevokeTimeout time.Duration
}

// LedgerConfig selects and tunes the revocation ledger.
type LedgerConfig struct {
	Backend           string
	KeyPrefix         string
	Timeout           time.Duration
	UnavailablePolicy domain.FailurePolicy
	ReclaimInterval   time.Duration
}

// IdentityConfig points at the identity authority.
type IdentityConfig struct {
	URL                string
	Timeout            time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
	MaxRetryDelay      time.Duration
	ExistsErrorPolicy  domain.FailurePolicy
	EnabledErrorPolicy domain.FailurePolicy
}

// MetricsConfig toggles prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	signingKey, err := DecodeSigningKey(os.Getenv("AUTH_JWT_SECRET"))
	if err != nil {
		return nil, err
	}

	ledgerPolicy, err := getEnvAsPolicy("LEDGER_UNAVAILABLE_POLICY", domain.FailClosed)
	if err != nil {
		return nil, err
	}
	existsPolicy, err := getEnvAsPolicy("IDENTITY_EXISTS_ERROR_POLICY", domain.FailClosed)
	if err != nil {
		return nil, err
	}
	enabledPolicy, err := getEnvAsPolicy("IDENTITY_ENABLED_ERROR_POLICY", domain.FailOpen)
	if err != nil {
		return nil, err
	}

	backend := strings.ToLower(getEnv("LEDGER_BACKEND", LedgerBackendRedis))
	switch backend {
	case LedgerBackendRedis, LedgerBackendPostgres, LedgerBackendMemory:
	default:
		return nil, fmt.Errorf("invalid LEDGER_BACKEND %q", backend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "auth-gateway"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           redisDB,
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 0),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			SigningKey:    signingKey,
			CookieName:    getEnv("AUTH_COOKIE_NAME", "JWT"),
			RevokeTimeout: getEnvAsDuration("REVOKE_TIMEOUT", 3*time.Second),
		},
		Ledger: LedgerConfig{
			Backend:           backend,
			KeyPrefix:         getEnv("LEDGER_KEY_PREFIX", "revoked-token:"),
			Timeout:           getEnvAsDuration("LEDGER_TIMEOUT", 500*time.Millisecond),
			UnavailablePolicy: ledgerPolicy,
			ReclaimInterval:   getEnvAsDuration("LEDGER_RECLAIM_INTERVAL", time.Minute),
		},
		Identity: IdentityConfig{
			URL:                strings.TrimRight(getEnv("IDENTITY_URL", "http://localhost:8081"), "/"),
			Timeout:            getEnvAsDuration("IDENTITY_TIMEOUT", 2*time.Second),
			MaxRetries:         getEnvAsInt("IDENTITY_MAX_RETRIES", 1),
			RetryDelay:         getEnvAsDuration("IDENTITY_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay:      getEnvAsDuration("IDENTITY_MAX_RETRY_DELAY", 500*time.Millisecond),
			ExistsErrorPolicy:  existsPolicy,
			EnabledErrorPolicy: enabledPolicy,
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	return cfg, nil
}

// DecodeSigningKey decodes the base64 HMAC secret. An empty value is fatal.
func DecodeSigningKey(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMissingSigningKey
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_JWT_SECRET: %w", err)
	}
	if len(key) == 0 {
		return nil, ErrMissingSigningKey
	}
	return key, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvAsPolicy(key string, fallback domain.FailurePolicy) (domain.FailurePolicy, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	policy, err := domain.ParseFailurePolicy(val)
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", key, err)
	}
	return policy, nil
}
