package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/taxiemissions/pkg/batch/core/config"
)

const sampleYAML = `
surfin:
  batch:
    job_name: taxiEmissionsJob
    chunk_size: 500
  system:
    timezone: America/New_York
  infrastructure:
    job_repository_db_ref: metadata
  adapter:
    database:
      metadata:
        type: sqlite
        database: ${TEST_CFG_DB_PATH:-/tmp/meta.db}
      workload:
        type: postgres
        password: ${TEST_CFG_DB_PASSWORD}
application:
  trips:
    cleaning:
      enabled: true
`

func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig()

	assert.Equal(t, 1000, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, "UTC", cfg.Surfin.System.Timezone)
	assert.Equal(t, "INFO", cfg.Surfin.System.Logging.Level)
	assert.Equal(t, "none", cfg.Surfin.Infrastructure.Metrics.Exporter)
	assert.NotNil(t, cfg.Surfin.Adapter.Database)
	assert.True(t, cfg.IsMaskedParameter("password"))
	assert.False(t, cfg.IsMaskedParameter("color"))

	loc, err := cfg.Surfin.System.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadConfig_YAMLAndExpansion(t *testing.T) {
	t.Setenv("TEST_CFG_DB_PASSWORD", "s3cr$t")

	cfg, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "taxiEmissionsJob", cfg.Surfin.Batch.JobName)
	assert.Equal(t, 500, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, 2, cfg.Surfin.Batch.PollingIntervalSeconds, "default kept when absent from yaml")
	assert.Equal(t, "America/New_York", cfg.Surfin.System.Timezone)

	meta := cfg.Surfin.Adapter.Database["metadata"].(map[string]interface{})
	assert.Equal(t, "/tmp/meta.db", meta["database"])
	workload := cfg.Surfin.Adapter.Database["workload"].(map[string]interface{})
	assert.Equal(t, "s3cr$t", workload["password"])

	trips := cfg.Application["trips"].(map[string]interface{})
	assert.NotNil(t, trips["cleaning"])
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("SURFIN_BATCH_CHUNK_SIZE", "42")
	t.Setenv("SURFIN_SYSTEM_LOGGING_LEVEL", "debug")
	t.Setenv("SURFIN_INFRASTRUCTURE_TRACING_ENABLED", "true")
	t.Setenv("SURFIN_SECURITY_MASKED_PARAMETER_KEYS", "token, password")

	cfg, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.Surfin.Batch.ChunkSize)
	assert.Equal(t, "debug", cfg.Surfin.System.Logging.Level)
	assert.True(t, cfg.Surfin.Infrastructure.Tracing.Enabled)
	assert.Equal(t, []string{"token", "password"}, cfg.Surfin.Security.MaskedParameterKeys)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TEST_CFG_FROM_DOTENV=/data/from-dotenv.db\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TEST_CFG_FROM_DOTENV") })

	doc := `
surfin:
  adapter:
    database:
      metadata:
        type: sqlite
        database: ${TEST_CFG_FROM_DOTENV}
`
	cfg, err := config.LoadConfig(envPath, config.EmbeddedConfig(doc))
	require.NoError(t, err)
	meta := cfg.Surfin.Adapter.Database["metadata"].(map[string]interface{})
	assert.Equal(t, "/data/from-dotenv.db", meta["database"])
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]string{
		"bad yaml":          "surfin: [",
		"bad chunk size":    "surfin:\n  batch:\n    chunk_size: -1\n",
		"bad timezone":      "surfin:\n  system:\n    timezone: Mars/Olympus\n",
		"unknown exporter":  "surfin:\n  infrastructure:\n    metrics:\n      exporter: statsd\n",
		"dangling repo ref": "surfin:\n  infrastructure:\n    job_repository_db_ref: nope\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.LoadConfig("", config.EmbeddedConfig(doc))
			assert.Error(t, err)
		})
	}
}

func TestOsEnvironmentExpander(t *testing.T) {
	t.Setenv("TEST_CFG_HOST", "db.internal")
	e := config.NewOsEnvironmentExpander()

	out, err := e.Expand([]byte("host=${TEST_CFG_HOST} port=${TEST_CFG_UNSET:-5432} user=${TEST_CFG_UNSET} cost=$5"))
	require.NoError(t, err)
	assert.Equal(t, "host=db.internal port=5432 user= cost=$5", string(out))
}
