// Package config loads server configuration. Values come from an optional
// YAML profile first, then environment variables on top; env always wins.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds server configuration.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	// Store selects the persistence backend: memory, local, sqlite,
	// postgres, s3, or redis.
	Store     string `yaml:"store"`
	StorePath string `yaml:"store_path"` // local dir or sqlite file
	StoreDSN  string `yaml:"store_dsn"`  // postgres connection string

	RedisAddr string `yaml:"redis_addr"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"` // non-empty enables path-style (MinIO)
	S3Prefix   string `yaml:"s3_prefix"`

	// Executions is the per-job fan-out for consensus runs.
	Executions int `yaml:"executions"`

	// PolicyExpr is the CEL acceptance policy; empty means accept-all.
	PolicyExpr    string `yaml:"policy_expr"`
	PolicyVersion string `yaml:"policy_version"`

	// APIKeys enables request authentication when non-empty. Keys are only
	// accepted from the environment, never from the profile file.
	APIKeys []string `yaml:"-"`
}

func defaults() *Config {
	return &Config{
		Port:          "8080",
		LogLevel:      "INFO",
		Store:         "memory",
		StorePath:     "./data",
		S3Region:      "us-east-1",
		Executions:    3,
		PolicyVersion: "accept-all",
	}
}

// Load builds the configuration. When DATANET_CONFIG_FILE is set, that YAML
// profile is read first; individual environment variables then override it.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("DATANET_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read profile %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse profile %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Port, "PORT")
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Store, "DATANET_STORE")
	setString(&cfg.StorePath, "DATANET_STORE_PATH")
	setString(&cfg.StoreDSN, "DATABASE_URL")
	setString(&cfg.RedisAddr, "REDIS_ADDR")
	setString(&cfg.S3Bucket, "S3_BUCKET")
	setString(&cfg.S3Region, "S3_REGION")
	setString(&cfg.S3Endpoint, "S3_ENDPOINT")
	setString(&cfg.S3Prefix, "S3_PREFIX")
	setString(&cfg.PolicyExpr, "DATANET_POLICY")
	setString(&cfg.PolicyVersion, "DATANET_POLICY_VERSION")

	if v := os.Getenv("DATANET_EXECUTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Executions = n
		}
	}

	if v := os.Getenv("DATANET_API_KEYS"); v != "" {
		for _, key := range strings.Split(v, ",") {
			if key = strings.TrimSpace(key); key != "" {
				cfg.APIKeys = append(cfg.APIKeys, key)
			}
		}
	}
}

func (c *Config) validate() error {
	switch c.Store {
	case "memory", "local", "sqlite", "postgres", "s3", "redis":
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store)
	}
	if c.Store == "postgres" && c.StoreDSN == "" {
		return fmt.Errorf("config: postgres store requires DATABASE_URL")
	}
	if c.Store == "s3" && c.S3Bucket == "" {
		return fmt.Errorf("config: s3 store requires S3_BUCKET")
	}
	if c.Store == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("config: redis store requires REDIS_ADDR")
	}
	return nil
}

// AuthEnabled reports whether API requests must present a key.
func (c *Config) AuthEnabled() bool {
	return len(c.APIKeys) > 0
}

// SlogLevel maps the configured level name onto slog, defaulting to Info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
