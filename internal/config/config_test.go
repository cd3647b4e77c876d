package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig returns defaults adjusted to pass validation.
func validConfig() Config {
	cfg := Defaults()
	cfg.Adapters.Algotest.Enabled = true
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresOneAdapter(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one adapter must be enabled")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "loud"
	cfg.System.QueueSize = 0
	cfg.Monitor.TradingStart = "9am"
	cfg.Monitor.AllowedWeekdays = []int{7}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "queue_size")
	assert.Contains(t, err.Error(), "trading_start")
	assert.Contains(t, err.Error(), "allowed_weekdays")
}

func TestValidateTradingWindowOrder(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.TradingStart = "16:00"
	cfg.Monitor.TradingEnd = "09:15"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be before")
}

func TestValidateRateLimiterParams(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters.Algotest.RateLimiterActive = true
	cfg.Adapters.Algotest.RateLimit = 0
	cfg.Adapters.Algotest.RateLimitPeriod = duration{0}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit must be >= 1")
	assert.Contains(t, err.Error(), "rate_limit_period must be > 0")
}

func TestValidateTradetronRequiresGrouping(t *testing.T) {
	cfg := validConfig()
	cfg.Adapters.Tradetron.Enabled = true
	cfg.Adapters.Tradetron.GroupingEnabled = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grouping_enabled")
}

func TestValidatePremarketBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Monitor.AllowPremarket = true
	cfg.Monitor.PremarketStart = "09:30"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "premarket_start")
}

func TestTradingWindow(t *testing.T) {
	cfg := Defaults()
	start, end := cfg.Monitor.TradingWindow()
	assert.Equal(t, 9*60+15, start)
	assert.Equal(t, 15*60+30, end)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	doc := `
log_level = "debug"

[monitor]
log_path = "/var/log/broker"

[adapters.algotest]
enabled = true
timeout = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/var/log/broker", cfg.Monitor.LogPath)
	assert.Equal(t, 5*time.Second, cfg.Adapters.Algotest.Timeout.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, "GridLog.csv", cfg.Monitor.TargetFilename)
	assert.Equal(t, 10000, cfg.System.QueueSize)
}

func TestLoadFailsOnMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("log_level = \"info\"\n"), 0o644))

	t.Setenv("STOXXO_LOG_LEVEL", "warn")
	t.Setenv("STOXXO_SYSTEM_QUEUE_SIZE", "500")
	t.Setenv("STOXXO_MONITOR_ALLOWED_WEEKDAYS", "0, 2, 4")
	t.Setenv("STOXXO_ALGOTEST_ENABLED", "true")
	t.Setenv("STOXXO_TRADETRON_RATE_LIMIT_PERIOD", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 500, cfg.System.QueueSize)
	assert.Equal(t, []int{0, 2, 4}, cfg.Monitor.AllowedWeekdays)
	assert.True(t, cfg.Adapters.Algotest.Enabled)
	assert.Equal(t, 2*time.Second, cfg.Adapters.Tradetron.RateLimitPeriod.Duration)
}
