package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "magnus.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "MAGNUS_PORT")
	setString(&cfg.Server.CORSOrigin, "MAGNUS_CORS_ORIGIN")
	setString(&cfg.Server.AppURL, "MAGNUS_APP_URL")

	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "MAGNUS_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "MAGNUS_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "MAGNUS_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "MAGNUS_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "MAGNUS_PG_HEALTH_CHECK")

	setString(&cfg.NATS.URL, "NATS_URL")

	setString(&cfg.Auth.JWTSecret, "MAGNUS_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTTL, "MAGNUS_ACCESS_TTL")
	setDuration(&cfg.Auth.RefreshTTL, "MAGNUS_REFRESH_TTL")
	setDuration(&cfg.Auth.VerificationTTL, "MAGNUS_VERIFICATION_TTL")
	setDuration(&cfg.Auth.ResetTTL, "MAGNUS_RESET_TTL")
	setInt(&cfg.Auth.LockoutThreshold, "MAGNUS_LOCKOUT_THRESHOLD")
	setDuration(&cfg.Auth.LockoutDuration, "MAGNUS_LOCKOUT_DURATION")
	setInt(&cfg.Auth.BcryptCost, "MAGNUS_BCRYPT_COST")
	setString(&cfg.Auth.AdminEmail, "MAGNUS_ADMIN_EMAIL")
	setString(&cfg.Auth.AdminPassword, "MAGNUS_ADMIN_PASSWORD")
	setDuration(&cfg.Auth.CleanupInterval, "MAGNUS_AUTH_CLEANUP_INTERVAL")

	setBool(&cfg.Email.Enabled, "MAGNUS_EMAIL_ENABLED")
	setString(&cfg.Email.Host, "MAGNUS_SMTP_HOST")
	setInt(&cfg.Email.Port, "MAGNUS_SMTP_PORT")
	setString(&cfg.Email.Username, "MAGNUS_SMTP_USERNAME")
	setString(&cfg.Email.Password, "MAGNUS_SMTP_PASSWORD")
	setString(&cfg.Email.From, "MAGNUS_SMTP_FROM")
	setBool(&cfg.Email.UseTLS, "MAGNUS_SMTP_TLS")

	setString(&cfg.Engine.BaseURL, "MAGNUS_ENGINE_URL")
	setDuration(&cfg.Engine.Timeout, "MAGNUS_ENGINE_TIMEOUT")
	setDuration(&cfg.Engine.StreamTimeout, "MAGNUS_ENGINE_STREAM_TIMEOUT")
	setDuration(&cfg.Engine.CardTTL, "MAGNUS_ENGINE_CARD_TTL")

	setString(&cfg.Webhook.Secret, "MAGNUS_WEBHOOK_SECRET")
	setInt(&cfg.Webhook.MaxAttempts, "MAGNUS_WEBHOOK_MAX_ATTEMPTS")
	setDuration(&cfg.Webhook.BaseBackoff, "MAGNUS_WEBHOOK_BASE_BACKOFF")
	setDuration(&cfg.Webhook.MaxBackoff, "MAGNUS_WEBHOOK_MAX_BACKOFF")
	setDuration(&cfg.Webhook.Timeout, "MAGNUS_WEBHOOK_TIMEOUT")
	setString(&cfg.Webhook.EngineSecret, "MAGNUS_WEBHOOK_ENGINE_SECRET")

	setInt64(&cfg.Cache.MaxSizeMB, "MAGNUS_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.AgentTTL, "MAGNUS_CACHE_AGENT_TTL")

	setString(&cfg.Logging.Level, "MAGNUS_LOG_LEVEL")
	setString(&cfg.Logging.Service, "MAGNUS_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "MAGNUS_LOG_ASYNC")

	setInt(&cfg.Breaker.MaxFailures, "MAGNUS_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "MAGNUS_BREAKER_TIMEOUT")

	setFloat64(&cfg.Rate.RequestsPerSecond, "MAGNUS_RATE_RPS")
	setInt(&cfg.Rate.Burst, "MAGNUS_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "MAGNUS_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "MAGNUS_RATE_MAX_IDLE_TIME")

	setBool(&cfg.Otel.Enabled, "MAGNUS_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setBool(&cfg.Otel.Insecure, "MAGNUS_OTEL_INSECURE")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (set MAGNUS_JWT_SECRET)")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes")
	}
	if cfg.Auth.LockoutThreshold < 1 {
		return errors.New("auth.lockout_threshold must be >= 1")
	}
	if cfg.Webhook.MaxAttempts < 1 {
		return errors.New("webhook.max_attempts must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Email.Enabled && cfg.Email.Host == "" {
		return errors.New("email.host is required when email is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
