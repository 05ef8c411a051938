package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the resolved runtime configuration for M91.
type Config struct {
	ServiceID string

	HTTPPort int
	GRPCPort int

	StorageDriver string
	DatabaseURL   string
	MaxDBConns    int32
	RedisURL      string

	KafkaBrokers       []string
	KafkaTopic         string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int

	PublicRateLimitPerMinute int
	KeyGenerationMaxAttempts int
	DefaultListLimit         int
	MaxListLimit             int

	AdminTokenSecret  string
	AdminTokenIssuer  string
	AdminAuthDisabled bool

	MetricsNamespace string
	LogLevel         slog.Level
}

type configFile struct {
	Service struct {
		ID       string `yaml:"id"`
		HTTPPort int    `yaml:"http_port"`
		GRPCPort int    `yaml:"grpc_port"`
	} `yaml:"service"`
	Dependencies struct {
		StorageDriver string   `yaml:"storage_driver"`
		PostgresURL   string   `yaml:"postgres_url"`
		RedisURL      string   `yaml:"redis_url"`
		KafkaBrokers  []string `yaml:"kafka_brokers"`
		KafkaTopic    string   `yaml:"kafka_topic_license_events"`
	} `yaml:"dependencies"`
	Licensing struct {
		PublicRateLimitPerMinute int    `yaml:"public_rate_limit_per_minute"`
		KeyGenerationMaxAttempts int    `yaml:"key_generation_max_attempts"`
		DefaultListLimit         int    `yaml:"default_list_limit"`
		MaxListLimit             int    `yaml:"max_list_limit"`
		AdminTokenIssuer         string `yaml:"admin_token_issuer"`
	} `yaml:"licensing"`
}

// LoadConfig resolves configuration in priority order: defaults, then file, then env.
// A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := Config{
		ServiceID:                "M91-License-Service",
		HTTPPort:                 8080,
		GRPCPort:                 9090,
		StorageDriver:            StoragePostgres,
		MaxDBConns:               20,
		KafkaTopic:               "license.events",
		OutboxPollInterval:       2 * time.Second,
		OutboxBatchSize:          100,
		PublicRateLimitPerMinute: 120,
		KeyGenerationMaxAttempts: 64,
		DefaultListLimit:         50,
		MaxListLimit:             500,
		MetricsNamespace:         "m91",
		LogLevel:                 slog.LevelInfo,
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.applyFile(raw); err != nil {
			return Config{}, err
		}
	case !errors.Is(err, os.ErrNotExist):
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg.ServiceID = envOrDefault("SERVICE_ID", cfg.ServiceID)
	cfg.HTTPPort = envInt("HTTP_PORT", cfg.HTTPPort)
	cfg.GRPCPort = envInt("GRPC_PORT", cfg.GRPCPort)
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(envOrDefault("STORAGE_DRIVER", cfg.StorageDriver)))
	cfg.DatabaseURL = envOrDefault("DB_URL", envOrDefault("POSTGRES_URL", cfg.DatabaseURL))
	cfg.MaxDBConns = int32(envInt("DB_MAX_CONNS", int(cfg.MaxDBConns)))
	cfg.RedisURL = envOrDefault("REDIS_URL", cfg.RedisURL)
	cfg.KafkaBrokers = envCSV("KAFKA_BROKERS", cfg.KafkaBrokers)
	cfg.KafkaTopic = envOrDefault("KAFKA_TOPIC_LICENSE_EVENTS", cfg.KafkaTopic)
	cfg.OutboxPollInterval = time.Duration(envInt("OUTBOX_POLL_SECONDS", int(cfg.OutboxPollInterval.Seconds()))) * time.Second
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.PublicRateLimitPerMinute = envInt("PUBLIC_RATE_LIMIT_PER_MINUTE", cfg.PublicRateLimitPerMinute)
	cfg.KeyGenerationMaxAttempts = envInt("KEY_GENERATION_MAX_ATTEMPTS", cfg.KeyGenerationMaxAttempts)
	cfg.AdminTokenSecret = envOrDefault("ADMIN_TOKEN_SECRET", cfg.AdminTokenSecret)
	cfg.AdminTokenIssuer = envOrDefault("ADMIN_TOKEN_ISSUER", cfg.AdminTokenIssuer)
	cfg.AdminAuthDisabled = envBool("ADMIN_AUTH_DISABLED", cfg.AdminAuthDisabled)
	cfg.MetricsNamespace = envOrDefault("METRICS_NAMESPACE", cfg.MetricsNamespace)
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(level)); err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyFile(raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if f.Service.ID != "" {
		cfg.ServiceID = f.Service.ID
	}
	if f.Service.HTTPPort > 0 {
		cfg.HTTPPort = f.Service.HTTPPort
	}
	if f.Service.GRPCPort > 0 {
		cfg.GRPCPort = f.Service.GRPCPort
	}
	if f.Dependencies.StorageDriver != "" {
		cfg.StorageDriver = f.Dependencies.StorageDriver
	}
	if f.Dependencies.PostgresURL != "" {
		cfg.DatabaseURL = f.Dependencies.PostgresURL
	}
	if f.Dependencies.RedisURL != "" {
		cfg.RedisURL = f.Dependencies.RedisURL
	}
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	if f.Dependencies.KafkaTopic != "" {
		cfg.KafkaTopic = f.Dependencies.KafkaTopic
	}
	if f.Licensing.PublicRateLimitPerMinute != 0 {
		cfg.PublicRateLimitPerMinute = f.Licensing.PublicRateLimitPerMinute
	}
	if f.Licensing.KeyGenerationMaxAttempts > 0 {
		cfg.KeyGenerationMaxAttempts = f.Licensing.KeyGenerationMaxAttempts
	}
	if f.Licensing.DefaultListLimit > 0 {
		cfg.DefaultListLimit = f.Licensing.DefaultListLimit
	}
	if f.Licensing.MaxListLimit > 0 {
		cfg.MaxListLimit = f.Licensing.MaxListLimit
	}
	if f.Licensing.AdminTokenIssuer != "" {
		cfg.AdminTokenIssuer = f.Licensing.AdminTokenIssuer
	}
	return nil
}

func (cfg Config) validate() error {
	switch cfg.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("missing DB_URL/POSTGRES_URL")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
	if cfg.AdminTokenSecret == "" && !cfg.AdminAuthDisabled {
		return fmt.Errorf("missing ADMIN_TOKEN_SECRET")
	}
	if cfg.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_SECONDS must be positive")
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt falls back on empty or unparsable values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}
