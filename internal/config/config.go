// Package config defines the top-level configuration for the order forwarder
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STOXXO_* environment variables.
type Config struct {
	System   SystemConfig   `toml:"system"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Adapters AdaptersConfig `toml:"adapters"`
	Cache    CacheConfig    `toml:"cache"`
	LogLevel string         `toml:"log_level"`
}

// SystemConfig holds pipeline-wide parameters.
type SystemConfig struct {
	QueueSize    int      `toml:"queue_size"`
	DrainTimeout duration `toml:"drain_timeout"`
	MetricsAddr  string   `toml:"metrics_addr"`
	OutputPath   string   `toml:"output_path"`
}

// MonitorConfig holds the log-tailing and trading-hours parameters.
// AllowedWeekdays uses Monday=0 through Sunday=6; TradingStart and TradingEnd
// are wall-clock "HH:MM" strings.
type MonitorConfig struct {
	LogPath         string `toml:"log_path"`
	TargetFilename  string `toml:"target_filename"`
	AllowedWeekdays []int  `toml:"allowed_weekdays"`
	TradingStart    string `toml:"trading_start"`
	TradingEnd      string `toml:"trading_end"`
	AllowPremarket  bool   `toml:"allow_premarket"`
	PremarketStart  string `toml:"premarket_start"`
	AllowPostmarket bool   `toml:"allow_postmarket"`
	PostmarketEnd   string `toml:"postmarket_end"`
	MinQuantity     int    `toml:"min_quantity"`
	MaxQuantity     int    `toml:"max_quantity"`
}

// AdaptersConfig groups the per-provider adapter sections.
type AdaptersConfig struct {
	Tradetron AdapterConfig `toml:"tradetron"`
	Algotest  AdapterConfig `toml:"algotest"`
}

// AdapterConfig holds one provider's dispatch parameters. An OrderDelay of
// zero disables inter-order pacing.
type AdapterConfig struct {
	Enabled           bool     `toml:"enabled"`
	BaseURL           string   `toml:"base_url"`
	Timeout           duration `toml:"timeout"`
	RateLimiterActive bool     `toml:"rate_limiter_active"`
	RateLimit         int      `toml:"rate_limit"`
	RateLimitPeriod   duration `toml:"rate_limit_period"`
	OrderDelay        duration `toml:"order_delay"`
	GroupingEnabled   bool     `toml:"grouping_enabled"`
	GroupLimit        int      `toml:"group_limit"`
	CounterSize       int      `toml:"counter_size"`
}

// CacheConfig points at the YAML strategy/instrument mapping file.
type CacheConfig struct {
	Path string `toml:"path"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		System: SystemConfig{
			QueueSize:    10_000,
			DrainTimeout: duration{30 * time.Second},
			MetricsAddr:  "",
			OutputPath:   "Orders",
		},
		Monitor: MonitorConfig{
			LogPath:         ".",
			TargetFilename:  "GridLog.csv",
			AllowedWeekdays: []int{0, 1, 2, 3, 4},
			TradingStart:    "09:15",
			TradingEnd:      "15:30",
			AllowPremarket:  false,
			PremarketStart:  "09:00",
			AllowPostmarket: false,
			PostmarketEnd:   "16:00",
			MinQuantity:     1,
			MaxQuantity:     10_000,
		},
		Adapters: AdaptersConfig{
			Tradetron: AdapterConfig{
				Enabled:           false,
				BaseURL:           "https://api.tradetron.tech/api",
				Timeout:           duration{10 * time.Second},
				RateLimiterActive: true,
				RateLimit:         10,
				RateLimitPeriod:   duration{time.Second},
				GroupingEnabled:   true,
				GroupLimit:        4,
				CounterSize:       5,
			},
			Algotest: AdapterConfig{
				Enabled:           false,
				Timeout:           duration{10 * time.Second},
				RateLimiterActive: true,
				RateLimit:         10,
				RateLimitPeriod:   duration{time.Second},
			},
		},
		Cache: CacheConfig{
			Path: "strategies.yaml",
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// TradingWindow parses TradingStart and TradingEnd into minutes from
// midnight. It assumes the config has already passed Validate.
func (m *MonitorConfig) TradingWindow() (startMin, endMin int) {
	startMin, _ = parseHHMM(m.TradingStart)
	endMin, _ = parseHHMM(m.TradingEnd)
	return startMin, endMin
}

// ExtendedWindow parses the premarket and postmarket bounds into minutes from
// midnight. It assumes the config has already passed Validate.
func (m *MonitorConfig) ExtendedWindow() (preStartMin, postEndMin int) {
	preStartMin, _ = parseHHMM(m.PremarketStart)
	postEndMin, _ = parseHHMM(m.PostmarketEnd)
	return preStartMin, postEndMin
}

func parseHHMM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// System
	if c.System.QueueSize < 1 {
		errs = append(errs, "system: queue_size must be >= 1")
	}
	if c.System.DrainTimeout.Duration <= 0 {
		errs = append(errs, "system: drain_timeout must be > 0")
	}
	if c.System.OutputPath == "" {
		errs = append(errs, "system: output_path must not be empty")
	}

	// Monitor
	if c.Monitor.LogPath == "" {
		errs = append(errs, "monitor: log_path must not be empty")
	}
	if c.Monitor.TargetFilename == "" {
		errs = append(errs, "monitor: target_filename must not be empty")
	}
	if len(c.Monitor.AllowedWeekdays) == 0 {
		errs = append(errs, "monitor: allowed_weekdays must not be empty")
	}
	for _, d := range c.Monitor.AllowedWeekdays {
		if d < 0 || d > 6 {
			errs = append(errs, fmt.Sprintf("monitor: allowed_weekdays entries must be 0 (Monday) through 6 (Sunday), got %d", d))
		}
	}
	start, startErr := parseHHMM(c.Monitor.TradingStart)
	if startErr != nil {
		errs = append(errs, fmt.Sprintf("monitor: trading_start %q is not HH:MM", c.Monitor.TradingStart))
	}
	end, endErr := parseHHMM(c.Monitor.TradingEnd)
	if endErr != nil {
		errs = append(errs, fmt.Sprintf("monitor: trading_end %q is not HH:MM", c.Monitor.TradingEnd))
	}
	if startErr == nil && endErr == nil && start >= end {
		errs = append(errs, fmt.Sprintf("monitor: trading_start %s must be before trading_end %s", c.Monitor.TradingStart, c.Monitor.TradingEnd))
	}
	if c.Monitor.AllowPremarket {
		pre, err := parseHHMM(c.Monitor.PremarketStart)
		if err != nil {
			errs = append(errs, fmt.Sprintf("monitor: premarket_start %q is not HH:MM", c.Monitor.PremarketStart))
		} else if startErr == nil && pre >= start {
			errs = append(errs, fmt.Sprintf("monitor: premarket_start %s must be before trading_start %s", c.Monitor.PremarketStart, c.Monitor.TradingStart))
		}
	}
	if c.Monitor.AllowPostmarket {
		post, err := parseHHMM(c.Monitor.PostmarketEnd)
		if err != nil {
			errs = append(errs, fmt.Sprintf("monitor: postmarket_end %q is not HH:MM", c.Monitor.PostmarketEnd))
		} else if endErr == nil && post <= end {
			errs = append(errs, fmt.Sprintf("monitor: postmarket_end %s must be after trading_end %s", c.Monitor.PostmarketEnd, c.Monitor.TradingEnd))
		}
	}
	if c.Monitor.MinQuantity < 1 {
		errs = append(errs, "monitor: min_quantity must be >= 1")
	}
	if c.Monitor.MaxQuantity < c.Monitor.MinQuantity {
		errs = append(errs, "monitor: max_quantity must be >= min_quantity")
	}

	// Adapters
	errs = append(errs, validateAdapter("tradetron", &c.Adapters.Tradetron)...)
	errs = append(errs, validateAdapter("algotest", &c.Adapters.Algotest)...)
	if c.Adapters.Tradetron.Enabled && !c.Adapters.Tradetron.GroupingEnabled {
		errs = append(errs, "adapters.tradetron: grouping_enabled must be true, the signal payload packs whole batches")
	}
	if !c.Adapters.Tradetron.Enabled && !c.Adapters.Algotest.Enabled {
		errs = append(errs, "adapters: at least one adapter must be enabled")
	}

	// Cache
	if c.Cache.Path == "" {
		errs = append(errs, "cache: path must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateAdapter(name string, a *AdapterConfig) []string {
	if !a.Enabled {
		return nil
	}
	var errs []string
	if name == "tradetron" && a.BaseURL == "" {
		errs = append(errs, fmt.Sprintf("adapters.%s: base_url must not be empty", name))
	}
	if a.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Sprintf("adapters.%s: timeout must be > 0", name))
	}
	if a.RateLimiterActive {
		if a.RateLimit < 1 {
			errs = append(errs, fmt.Sprintf("adapters.%s: rate_limit must be >= 1 when the rate limiter is active", name))
		}
		if a.RateLimitPeriod.Duration <= 0 {
			errs = append(errs, fmt.Sprintf("adapters.%s: rate_limit_period must be > 0 when the rate limiter is active", name))
		}
	}
	if a.OrderDelay.Duration < 0 {
		errs = append(errs, fmt.Sprintf("adapters.%s: order_delay must be >= 0", name))
	}
	if a.GroupingEnabled {
		if a.GroupLimit < 1 {
			errs = append(errs, fmt.Sprintf("adapters.%s: group_limit must be >= 1 when grouping is enabled", name))
		}
		if a.CounterSize < 1 {
			errs = append(errs, fmt.Sprintf("adapters.%s: counter_size must be >= 1 when grouping is enabled", name))
		}
	}
	return errs
}
