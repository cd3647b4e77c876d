package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STOXXO_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STOXXO_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators adjust a deployment without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── System ──
	setInt(&cfg.System.QueueSize, "STOXXO_SYSTEM_QUEUE_SIZE")
	setDuration(&cfg.System.DrainTimeout, "STOXXO_SYSTEM_DRAIN_TIMEOUT")
	setStr(&cfg.System.MetricsAddr, "STOXXO_SYSTEM_METRICS_ADDR")
	setStr(&cfg.System.OutputPath, "STOXXO_SYSTEM_OUTPUT_PATH")

	// ── Monitor ──
	setStr(&cfg.Monitor.LogPath, "STOXXO_MONITOR_LOG_PATH")
	setStr(&cfg.Monitor.TargetFilename, "STOXXO_MONITOR_TARGET_FILENAME")
	setIntSlice(&cfg.Monitor.AllowedWeekdays, "STOXXO_MONITOR_ALLOWED_WEEKDAYS")
	setStr(&cfg.Monitor.TradingStart, "STOXXO_MONITOR_TRADING_START")
	setStr(&cfg.Monitor.TradingEnd, "STOXXO_MONITOR_TRADING_END")
	setBool(&cfg.Monitor.AllowPremarket, "STOXXO_MONITOR_ALLOW_PREMARKET")
	setStr(&cfg.Monitor.PremarketStart, "STOXXO_MONITOR_PREMARKET_START")
	setBool(&cfg.Monitor.AllowPostmarket, "STOXXO_MONITOR_ALLOW_POSTMARKET")
	setStr(&cfg.Monitor.PostmarketEnd, "STOXXO_MONITOR_POSTMARKET_END")
	setInt(&cfg.Monitor.MinQuantity, "STOXXO_MONITOR_MIN_QUANTITY")
	setInt(&cfg.Monitor.MaxQuantity, "STOXXO_MONITOR_MAX_QUANTITY")

	// ── Tradetron ──
	setBool(&cfg.Adapters.Tradetron.Enabled, "STOXXO_TRADETRON_ENABLED")
	setStr(&cfg.Adapters.Tradetron.BaseURL, "STOXXO_TRADETRON_BASE_URL")
	setDuration(&cfg.Adapters.Tradetron.Timeout, "STOXXO_TRADETRON_TIMEOUT")
	setBool(&cfg.Adapters.Tradetron.RateLimiterActive, "STOXXO_TRADETRON_RATE_LIMITER_ACTIVE")
	setInt(&cfg.Adapters.Tradetron.RateLimit, "STOXXO_TRADETRON_RATE_LIMIT")
	setDuration(&cfg.Adapters.Tradetron.RateLimitPeriod, "STOXXO_TRADETRON_RATE_LIMIT_PERIOD")
	setDuration(&cfg.Adapters.Tradetron.OrderDelay, "STOXXO_TRADETRON_ORDER_DELAY")
	setInt(&cfg.Adapters.Tradetron.GroupLimit, "STOXXO_TRADETRON_GROUP_LIMIT")
	setInt(&cfg.Adapters.Tradetron.CounterSize, "STOXXO_TRADETRON_COUNTER_SIZE")

	// ── Algotest ──
	setBool(&cfg.Adapters.Algotest.Enabled, "STOXXO_ALGOTEST_ENABLED")
	setDuration(&cfg.Adapters.Algotest.Timeout, "STOXXO_ALGOTEST_TIMEOUT")
	setBool(&cfg.Adapters.Algotest.RateLimiterActive, "STOXXO_ALGOTEST_RATE_LIMITER_ACTIVE")
	setInt(&cfg.Adapters.Algotest.RateLimit, "STOXXO_ALGOTEST_RATE_LIMIT")
	setDuration(&cfg.Adapters.Algotest.RateLimitPeriod, "STOXXO_ALGOTEST_RATE_LIMIT_PERIOD")
	setDuration(&cfg.Adapters.Algotest.OrderDelay, "STOXXO_ALGOTEST_ORDER_DELAY")

	// ── Cache ──
	setStr(&cfg.Cache.Path, "STOXXO_CACHE_PATH")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "STOXXO_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
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

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setIntSlice(dst *[]int, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]int, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				return
			}
			cleaned = append(cleaned, n)
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
