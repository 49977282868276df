package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datanet-labs/datanet/pkg/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"DATANET_CONFIG_FILE", "PORT", "LOG_LEVEL", "DATANET_STORE",
		"DATANET_STORE_PATH", "DATABASE_URL", "REDIS_ADDR", "S3_BUCKET",
		"S3_REGION", "S3_ENDPOINT", "S3_PREFIX", "DATANET_EXECUTIONS",
		"DATANET_POLICY", "DATANET_POLICY_VERSION", "DATANET_API_KEYS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 3, cfg.Executions)
	assert.False(t, cfg.AuthEnabled())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATANET_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://production:5432/datanet")
	t.Setenv("DATANET_EXECUTIONS", "5")
	t.Setenv("DATANET_API_KEYS", "k1, k2,")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, "postgres://production:5432/datanet", cfg.StoreDSN)
	assert.Equal(t, 5, cfg.Executions)
	assert.Equal(t, []string{"k1", "k2"}, cfg.APIKeys)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_ProfileThenEnv(t *testing.T) {
	clearEnv(t)

	profile := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte(
		"port: \"7000\"\nstore: sqlite\nstore_path: /tmp/datanet.db\nexecutions: 7\n"), 0o600))
	t.Setenv("DATANET_CONFIG_FILE", profile)
	t.Setenv("PORT", "7100") // env wins over the profile

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "7100", cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, "/tmp/datanet.db", cfg.StorePath)
	assert.Equal(t, 7, cfg.Executions)
}

func TestLoad_Validation(t *testing.T) {
	clearEnv(t)

	t.Setenv("DATANET_STORE", "bogus")
	_, err := config.Load()
	assert.Error(t, err)

	t.Setenv("DATANET_STORE", "postgres")
	_, err = config.Load()
	assert.Error(t, err, "postgres without DSN must fail")

	t.Setenv("DATANET_STORE", "s3")
	_, err = config.Load()
	assert.Error(t, err, "s3 without bucket must fail")

	t.Setenv("DATANET_STORE", "redis")
	_, err = config.Load()
	assert.Error(t, err, "redis without address must fail")
}

func TestLoad_BadProfile(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATANET_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := config.Load()
	assert.Error(t, err)
}
