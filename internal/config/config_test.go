package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.InDelta(t, 10.0, cfg.API.RateLimit, 0.001)
	assert.Equal(t, 30, cfg.API.TimeoutSecs)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, 2, cfg.Poll.IntervalSecs)
	assert.Equal(t, 600, cfg.Poll.TimeoutSecs)
	assert.InDelta(t, 10.0, cfg.Markup.OverheadPct, 0.001)
	assert.InDelta(t, 5.0, cfg.Markup.ProfitPct, 0.001)
	assert.InDelta(t, 3.0, cfg.Markup.ContingencyPct, 0.001)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.NotEmpty(t, cfg.Store.DatabaseURL)
	assert.NotEmpty(t, cfg.Auth.TokenPath)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
api:
  base_url: https://api.estimai.example.com
markup:
  overhead_pct: 12.5
store:
  driver: postgres
  database_url: postgres://localhost/estimai
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.estimai.example.com", cfg.API.BaseURL)
	assert.InDelta(t, 12.5, cfg.Markup.OverheadPct, 0.001)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Poll.IntervalSecs)
	assert.InDelta(t, 5.0, cfg.Markup.ProfitPct, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ESTIMAI_STORE_DRIVER", "postgres")
	t.Setenv("ESTIMAI_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("ESTIMAI_SERVER_PORT", "3000")
	t.Setenv("ESTIMAI_AUTH_TOKEN", "tok-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "tok-env", cfg.Auth.Token)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.API.BaseURL = "http://localhost:8000"
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "audit.db"
	cfg.Poll.IntervalSecs = 2
	cfg.Poll.TimeoutSecs = 600
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateReview_AllPresent(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("review"))
}

func TestValidateReview_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.API.BaseURL = ""
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("review")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "api.base_url is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("review")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidatePipeline_PollBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Poll.IntervalSecs = 0

	err := cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "poll.interval_secs must be >= 1")

	cfg.Poll.IntervalSecs = 10
	cfg.Poll.TimeoutSecs = 5
	err = cfg.Validate("pipeline")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "poll.timeout_secs")

	cfg.Poll.TimeoutSecs = 60
	assert.NoError(t, cfg.Validate("pipeline"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
