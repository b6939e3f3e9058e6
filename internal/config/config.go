// Package config loads and validates the single configuration document via
// viper: named keys bound into an explicit struct, never free-form
// dynamic keys.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/SamoraDC/algotrading-core/internal/schema"
)

// VenueConfig holds exchange credentials and connection endpoints.
type VenueConfig struct {
	APIKey string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	RESTURL string `mapstructure:"rest_url"`
	WSURL string `mapstructure:"ws_url"`
	PaperMode bool `mapstructure:"paper_mode"`
	Simulated bool `mapstructure:"simulated"`
	ReplaySource string `mapstructure:"replay_source"`
	ReplaySpeed int `mapstructure:"replay_speed"`
}

// RiskConfig holds the limit-check parameters.
type RiskConfig struct {
	MaxPositionSize float64 `mapstructure:"max_position_size"`
	MaxOrderSize float64 `mapstructure:"max_order_size"`
	MaxNotionalExposure float64 `mapstructure:"max_notional_exposure"`
	MaxOpenPositions int `mapstructure:"max_open_positions"`
	ConcentrationPct float64 `mapstructure:"concentration_pct"`
	MaxDailyLoss float64 `mapstructure:"max_daily_loss"`
	StopLossPct float64 `mapstructure:"stop_loss_pct"`
	TrailingStopPct float64 `mapstructure:"trailing_stop_pct"`
	TrailingStopRef string `mapstructure:"trailing_stop_ref"` // "trade" | "bar_close"
	BreakerCooldownSecs int `mapstructure:"breaker_cooldown_secs"`
	SessionBoundaryUTC string `mapstructure:"session_boundary_utc"` // "HH:MM"
}

// ExecutionConfig holds retry/rate-limit/slippage parameters.
type ExecutionConfig struct {
	MaxRetries int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffCapMs int `mapstructure:"backoff_cap_ms"`
	RateLimitPerMinute int `mapstructure:"rate_limit_per_minute"`
	MaxSlippageBps float64 `mapstructure:"max_slippage_bps"`
	RequestTimeoutSecs int `mapstructure:"request_timeout_secs"`
	RateLimitWaitSecs int `mapstructure:"rate_limit_wait_secs"`
}

// BusConfig holds the messaging bus endpoints per service.
type BusConfig struct {
	MarketDataURL string `mapstructure:"market_data_url"`
	SignalBridgeURL string `mapstructure:"signal_bridge_url"`
	RiskManagerURL string `mapstructure:"risk_manager_url"`
	ExecutionURL string `mapstructure:"execution_url"`
}

// IntervalsConfig names the bar aggregation windows.
type IntervalsConfig struct {
	BarIntervals []string `mapstructure:"bar_intervals"` // e.g. ["1s","1m","5m"]
}

// Config is the full enumerated configuration record.
type Config struct {
	Venue VenueConfig `mapstructure:"venue"`
	Symbols []string `mapstructure:"symbols"`
	Risk RiskConfig `mapstructure:"risk"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Bus BusConfig `mapstructure:"bus"`
	Intervals IntervalsConfig `mapstructure:"intervals"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Load reads the configuration document at path (any viper-supported
// format: yaml, json, toml) with environment-variable overrides prefixed
// ALGOTRADE_, applies defaults, and validates the result. A malformed or
// invalid configuration is a fatal error at process start.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ALGOTRADE")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, schema.NewFatalError(schema.ErrConfigInvalid, "read config", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, schema.NewFatalError(schema.ErrConfigInvalid, "unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, schema.NewFatalError(schema.ErrConfigInvalid, "validate config", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("risk.breaker_cooldown_secs", 300)
	v.SetDefault("risk.trailing_stop_ref", "trade")
	v.SetDefault("risk.session_boundary_utc", "00:00")
	v.SetDefault("execution.max_retries", 5)
	v.SetDefault("execution.backoff_initial_ms", 200)
	v.SetDefault("execution.backoff_cap_ms", 10_000)
	v.SetDefault("execution.rate_limit_per_minute", 600)
	v.SetDefault("execution.max_slippage_bps", 50.0)
	v.SetDefault("execution.request_timeout_secs", 5)
	v.SetDefault("execution.rate_limit_wait_secs", 10)
	v.SetDefault("intervals.bar_intervals", []string{"1s", "1m", "5m"})
	v.SetDefault("metrics_addr", ":8080")
}

// Validate enforces the required-field and range invariants.
func (c *Config) Validate() error {
	offline := c.Venue.Simulated || c.Venue.ReplaySource != ""
	if !offline && (c.Venue.RESTURL == "" || c.Venue.WSURL == "") {
		return fmt.Errorf("venue.rest_url and venue.ws_url are required unless venue.simulated or venue.replay_source is set")
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("at least one symbol is required")
	}
	if c.Risk.MaxOrderSize <= 0 {
		return fmt.Errorf("risk.max_order_size must be positive")
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("risk.max_position_size must be positive")
	}
	if c.Risk.ConcentrationPct < 0 || c.Risk.ConcentrationPct > 1 {
		return fmt.Errorf("risk.concentration_pct must be in [0,1]")
	}
	if c.Risk.TrailingStopRef != "" && c.Risk.TrailingStopRef != "trade" && c.Risk.TrailingStopRef != "bar_close" {
		return fmt.Errorf("risk.trailing_stop_ref must be 'trade' or 'bar_close'")
	}
	if c.Execution.MaxRetries < 0 {
		return fmt.Errorf("execution.max_retries must be >= 0")
	}
	if c.Execution.RateLimitPerMinute <= 0 {
		return fmt.Errorf("execution.rate_limit_per_minute must be positive")
	}
	if c.Execution.MaxSlippageBps <= 0 {
		return fmt.Errorf("execution.max_slippage_bps must be positive")
	}
	return nil
}

// RequestTimeout returns the configured per-call HTTP/WS deadline.
func (c *ExecutionConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}
