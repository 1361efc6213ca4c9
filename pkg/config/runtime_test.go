package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRuntimeFromEnvAppliesDefaults(t *testing.T) {
	t.Setenv("ASSISTSUPPORT_API_KEY", "")
	t.Setenv("ENVIRONMENT", "")

	cfg, err := LoadRuntimeFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, DefaultAPIKey, cfg.APIKey)
	assert.Equal(t, DefaultAPIPort, cfg.APIPort)
}

func TestLoadRuntimeFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("ASSISTSUPPORT_API_KEY", "s3cret")
	t.Setenv("ASSISTSUPPORT_API_PORT", "8080")
	t.Setenv("ASSISTSUPPORT_RATE_LIMIT_STORAGE_URI", "redis://localhost:6379")

	cfg, err := LoadRuntimeFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "s3cret", cfg.APIKey)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.True(t, cfg.IsProduction())
}

func TestLoadRuntimeFromEnvRejectsMalformedPort(t *testing.T) {
	t.Setenv("ASSISTSUPPORT_API_PORT", "not-a-number")

	_, err := LoadRuntimeFromEnv()
	assert.Error(t, err)
}

func TestValidateRuntimeRejectsDefaultsInProduction(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Environment = "production"

	errs := ValidateRuntime(cfg)
	assert.Contains(t, errs, "ASSISTSUPPORT_API_KEY must be set to a non-default value in production")
	assert.Contains(t, errs, "ASSISTSUPPORT_RATE_LIMIT_STORAGE_URI must not use memory:// in production")
}

func TestValidateRuntimeAcceptsHardenedProductionConfig(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Environment = "production"
	cfg.APIKey = "s3cret"
	cfg.RateLimitStorageURI = "redis://localhost:6379"

	assert.Empty(t, ValidateRuntime(cfg))
}

func TestValidateRuntimeRejectsBadPortsAndEnvironment(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Environment = "staging"
	cfg.APIPort = 0
	cfg.DBPort = 70000

	errs := ValidateRuntime(cfg)
	assert.Contains(t, errs, "ENVIRONMENT must be one of development, production, or test")
	assert.Contains(t, errs, "ASSISTSUPPORT_API_PORT must be between 1 and 65535")
	assert.Contains(t, errs, "ASSISTSUPPORT_DB_PORT must be between 1 and 65535")
}

func TestEnsureValidRuntimeCollapsesErrors(t *testing.T) {
	cfg := DefaultRuntimeConfig()
	cfg.Environment = "production"

	err := EnsureValidRuntime(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ASSISTSUPPORT_API_KEY")
}
