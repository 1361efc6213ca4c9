// Package config loads and validates the runtime configuration the
// serve command and its HTTP layer depend on.
//
// Configuration can be loaded from:
//   - Environment variables (recommended for Docker/K8s)
//   - YAML configuration file
//   - Programmatic defaults
//
// Environment Variables:
//
//	ENVIRONMENT                              - development, test, or production (default: development)
//	ASSISTSUPPORT_API_KEY                    - API key checked on /search, /feedback and /stats in production (default: dev-key-change-in-production)
//	ASSISTSUPPORT_API_PORT                   - HTTP listen port (default: 3000)
//	ASSISTSUPPORT_RATE_LIMIT_STORAGE_URI     - memory:// or redis://... (default: memory://)
//	ASSISTSUPPORT_DB_HOST                    - Badger data directory host placeholder (default: localhost)
//	ASSISTSUPPORT_DB_PORT                    - reserved for a future networked store (default: 5432)
//	ASSISTSUPPORT_DB_USER                    - reserved for a future networked store (default: assistsupport_dev)
//	ASSISTSUPPORT_DB_PASSWORD                - reserved for a future networked store
//	ASSISTSUPPORT_DB_NAME                    - reserved for a future networked store (default: assistsupport_dev)
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults that ValidateRuntime refuses to let a production deployment
// keep: shipping with either live is a good way to get breached.
const (
	DefaultAPIKey              = "dev-key-change-in-production"
	DefaultAPIPort             = 3000
	DefaultRateLimitStorageURI = "memory://"
)

// RuntimeConfig is everything the serve command needs to start the HTTP
// API. It is a plain value; the serve command overrides APIPort from its
// --port flag after LoadRuntimeFromEnv returns.
type RuntimeConfig struct {
	Environment         string `yaml:"environment"`
	APIKey              string `yaml:"api_key"`
	APIPort             int    `yaml:"api_port"`
	RateLimitStorageURI string `yaml:"rate_limit_storage_uri"`

	DBHost     string `yaml:"db_host"`
	DBPort     int    `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
}

// IsProduction reports whether Environment is "production", case
// insensitively.
func (c RuntimeConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// DefaultRuntimeConfig returns the configuration a fresh development
// checkout starts with. Every field here is intentionally insecure for
// production; that's what ValidateRuntime is for.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Environment:         "development",
		APIKey:              DefaultAPIKey,
		APIPort:             DefaultAPIPort,
		RateLimitStorageURI: DefaultRateLimitStorageURI,
		DBHost:              "localhost",
		DBPort:              5432,
		DBUser:              "assistsupport_dev",
		DBName:              "assistsupport_dev",
	}
}

// LoadRuntimeFromEnv loads RuntimeConfig from environment variables,
// falling back to DefaultRuntimeConfig for anything unset. A malformed
// integer variable (ASSISTSUPPORT_API_PORT="abc") is reported as an
// error rather than silently falling back, since a typo'd port number is
// exactly the kind of mistake validation exists to catch.
func LoadRuntimeFromEnv() (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("ASSISTSUPPORT_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("ASSISTSUPPORT_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("config: ASSISTSUPPORT_API_PORT must be an integer: %w", err)
		}
		cfg.APIPort = port
	}
	if v := os.Getenv("ASSISTSUPPORT_RATE_LIMIT_STORAGE_URI"); v != "" {
		cfg.RateLimitStorageURI = v
	}
	if v := os.Getenv("ASSISTSUPPORT_DB_HOST"); v != "" {
		cfg.DBHost = v
	}
	if v := os.Getenv("ASSISTSUPPORT_DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return RuntimeConfig{}, fmt.Errorf("config: ASSISTSUPPORT_DB_PORT must be an integer: %w", err)
		}
		cfg.DBPort = port
	}
	if v := os.Getenv("ASSISTSUPPORT_DB_USER"); v != "" {
		cfg.DBUser = v
	}
	if v := os.Getenv("ASSISTSUPPORT_DB_PASSWORD"); v != "" {
		cfg.DBPassword = v
	}
	if v := os.Getenv("ASSISTSUPPORT_DB_NAME"); v != "" {
		cfg.DBName = v
	}

	return cfg, nil
}

// LoadRuntimeFromFile loads a RuntimeConfig from a YAML file, applying
// DefaultRuntimeConfig first so an incomplete file still produces a
// usable config.
func LoadRuntimeFromFile(path string) (RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuntimeConfig{}, err
	}
	cfg := DefaultRuntimeConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

// ValidateRuntime checks cfg for configuration mistakes that would either
// crash on first use (a bad port) or silently ship an insecure production
// deployment (a default API key, an in-memory rate limiter). It returns
// every problem found rather than stopping at the first.
func ValidateRuntime(cfg RuntimeConfig) []string {
	var errs []string

	switch strings.ToLower(cfg.Environment) {
	case "development", "production", "test":
	default:
		errs = append(errs, "ENVIRONMENT must be one of development, production, or test")
	}

	if cfg.APIPort < 1 || cfg.APIPort > 65535 {
		errs = append(errs, "ASSISTSUPPORT_API_PORT must be between 1 and 65535")
	}
	if cfg.DBPort < 1 || cfg.DBPort > 65535 {
		errs = append(errs, "ASSISTSUPPORT_DB_PORT must be between 1 and 65535")
	}

	if cfg.IsProduction() {
		if cfg.APIKey == DefaultAPIKey {
			errs = append(errs, "ASSISTSUPPORT_API_KEY must be set to a non-default value in production")
		}
		if cfg.RateLimitStorageURI == DefaultRateLimitStorageURI {
			errs = append(errs, "ASSISTSUPPORT_RATE_LIMIT_STORAGE_URI must not use memory:// in production")
		}
	}

	return errs
}

// EnsureValidRuntime is ValidateRuntime collapsed into a single error, for
// callers (the serve command) that just want to fail fast on startup.
func EnsureValidRuntime(cfg RuntimeConfig) error {
	errs := ValidateRuntime(cfg)
	if len(errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(errs, "; "))
}
