package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

type Config struct {
	Profile       Profile
	Debug         bool
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	AI            AIConfig
	Pipeline      PipelineConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// APIKeys lists "key:operator:role|role" entries. Empty disables auth.
	APIKeys string
}

type DatabaseConfig struct {
	URL             string
	Timeout         time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// AutoMigrate creates the registro table on start.
	AutoMigrate bool
}

type AIConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	RateLimit    float64
}

type PipelineConfig struct {
	RowCap              int
	SchemaFile          string
	ExtraIntentKeywords []string
	ExtraDenyKeywords   []string
}

type AuditConfig struct {
	Enabled          bool
	BatchSize        int
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// MissingError reports required settings that were not provided. Binaries
// treat it as fatal before serving any request.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return "missing required configuration: " + strings.Join(e.Keys, ", ")
}

// LoadFromEnv reads .env and .env.local when present, then the process
// environment.
func LoadFromEnv(serviceName string) (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return Config{}, fmt.Errorf("load .env.local: %w", err)
		}
	}
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("ASKDB_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid ASKDB_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	steps := []func() error{
		func() error { return applyString(lookup, "ASKDB_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyBool(lookup, "ASKDB_DEBUG", &cfg.Debug) },
		func() error { return applyString(lookup, "ASKDB_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "ASKDB_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "ASKDB_API_KEYS", &cfg.HTTP.APIKeys) },
		func() error { return applyString(lookup, "DATABASE_URL", &cfg.Database.URL) },
		func() error { return applyString(lookup, "ASKDB_DATABASE_URL", &cfg.Database.URL) },
		func() error { return applyDuration(lookup, "ASKDB_DB_TIMEOUT", &cfg.Database.Timeout) },
		func() error { return applyInt(lookup, "ASKDB_DB_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns) },
		func() error { return applyInt(lookup, "ASKDB_DB_MAX_IDLE_CONNS", &cfg.Database.MaxIdleConns) },
		func() error {
			return applyDuration(lookup, "ASKDB_DB_CONN_MAX_LIFETIME", &cfg.Database.ConnMaxLifetime)
		},
		func() error { return applyBool(lookup, "ASKDB_DB_AUTO_MIGRATE", &cfg.Database.AutoMigrate) },
		func() error { return applyString(lookup, "ASKDB_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "OPENAI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "ASKDB_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "OPENAI_MODEL", &cfg.AI.Model) },
		func() error { return applyString(lookup, "ASKDB_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "ASKDB_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "ASKDB_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "ASKDB_AI_MAX_RETRIES", &cfg.AI.MaxRetries) },
		func() error { return applyDuration(lookup, "ASKDB_AI_RETRY_BACKOFF", &cfg.AI.RetryBackoff) },
		func() error { return applyFloat(lookup, "ASKDB_AI_RATE_LIMIT", &cfg.AI.RateLimit) },
		func() error { return applyInt(lookup, "ASKDB_ROW_CAP", &cfg.Pipeline.RowCap) },
		func() error { return applyString(lookup, "ASKDB_SCHEMA_FILE", &cfg.Pipeline.SchemaFile) },
		func() error {
			return applyList(lookup, "ASKDB_INTENT_EXTRA_KEYWORDS", &cfg.Pipeline.ExtraIntentKeywords)
		},
		func() error { return applyList(lookup, "ASKDB_GUARD_EXTRA_DENY", &cfg.Pipeline.ExtraDenyKeywords) },
		func() error { return applyBool(lookup, "ASKDB_AUDIT_ENABLED", &cfg.Audit.Enabled) },
		func() error { return applyInt(lookup, "ASKDB_AUDIT_BATCH_SIZE", &cfg.Audit.BatchSize) },
		func() error { return applyString(lookup, "ASKDB_AUDIT_ENDPOINT", &cfg.Audit.Endpoint) },
		func() error { return applyString(lookup, "ASKDB_AUDIT_REGION", &cfg.Audit.Region) },
		func() error { return applyString(lookup, "ASKDB_AUDIT_BUCKET", &cfg.Audit.Bucket) },
		func() error { return applyString(lookup, "ASKDB_AUDIT_ACCESS_KEY", &cfg.Audit.AccessKeyID) },
		func() error { return applyString(lookup, "ASKDB_AUDIT_SECRET_KEY", &cfg.Audit.SecretAccessKey) },
		func() error { return applyBool(lookup, "ASKDB_AUDIT_USE_SSL", &cfg.Audit.UseSSL) },
		func() error { return applyString(lookup, "ASKDB_AUDIT_PREFIX", &cfg.Audit.Prefix) },
		func() error { return applyBool(lookup, "ASKDB_AUDIT_AUTO_CREATE_BUCKET", &cfg.Audit.AutoCreateBucket) },
		func() error { return applyBool(lookup, "ASKDB_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "ASKDB_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return Config{}, err
		}
	}

	if cfg.Debug {
		cfg.Observability.LogLevel = slog.LevelDebug
	}
	if cfg.Service.Name == "" {
		return Config{}, fmt.Errorf("service name is required")
	}
	if cfg.Pipeline.RowCap <= 0 {
		return Config{}, fmt.Errorf("invalid ASKDB_ROW_CAP: must be > 0")
	}
	if cfg.AI.MaxRetries < 0 {
		return Config{}, fmt.Errorf("invalid ASKDB_AI_MAX_RETRIES: must be >= 0")
	}
	return cfg, nil
}

// Validate checks the settings without which no request can be answered:
// the model credential and the database connection string.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.AI.APIKey) == "" {
		missing = append(missing, "ASKDB_AI_API_KEY (or OPENAI_API_KEY)")
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		missing = append(missing, "ASKDB_DATABASE_URL (or DATABASE_URL)")
	}
	if len(missing) > 0 {
		return &MissingError{Keys: missing}
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Bucket) == "" {
		return errors.New("ASKDB_AUDIT_BUCKET is required when auditing is enabled")
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "askdb"},
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Timeout:         15 * time.Second,
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			AutoMigrate:     true,
		},
		AI: AIConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			Temperature:  0,
			Timeout:      30 * time.Second,
			MaxRetries:   2,
			RetryBackoff: 500 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			RowCap: 50,
		},
		Audit: AuditConfig{
			Enabled:          false,
			BatchSize:        50,
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "askdb-audit",
			UseSSL:           false,
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelInfo,
			LogJSON:  false,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.AI.RetryBackoff = 10 * time.Millisecond
	case ProfileProd:
		cfg.Observability.LogJSON = true
		cfg.Audit.UseSSL = true
		cfg.Audit.AutoCreateBucket = false
		cfg.Database.AutoMigrate = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	var values []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			values = append(values, part)
		}
	}
	*dst = values
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
