// Package config provides configuration management for the order
// supervisor.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Environment    EnvironmentConfig    `yaml:"environment"`
	Broker         BrokerConfig         `yaml:"broker"`
	Safety         SafetyConfig         `yaml:"safety"`
	FreeTrading    FreeTradingConfig    `yaml:"free_trading"`
	Schedule       ScheduleConfig       `yaml:"schedule"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Storage        StorageConfig        `yaml:"storage"`
	Dashboard      DashboardConfig      `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	AccountID string `yaml:"account_id"`
}

// SafetyConfig gates whether orders actually reach the broker.
type SafetyConfig struct {
	DryRun bool `yaml:"dry_run"`
}

// FreeTradingConfig mirrors the pre-trade check parameters this spec
// names (free_trading.*), converted to validator.Config at wiring time.
type FreeTradingConfig struct {
	DepositRub             float64 `yaml:"deposit_rub"`
	MaxPositionPct         float64 `yaml:"max_position_pct"`          // fraction, e.g. 0.2
	RiskPerTradePct        float64 `yaml:"risk_per_trade_pct"`        // fraction, e.g. 0.01
	MaxPriceDeviationPct   float64 `yaml:"max_price_deviation_pct"`   // percent, e.g. 5.0
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions"`
	MaxDailyTrades         int     `yaml:"max_daily_trades"`
	MaxDailyLossRub        float64 `yaml:"max_daily_loss_rub"`
	SLATRMultiplier        float64 `yaml:"sl_atr_multiplier"`
	TPATRMultiplier        float64 `yaml:"tp_atr_multiplier"`
	PriceTick              float64 `yaml:"price_tick"`
}

// ScheduleConfig defines trading schedule and the watcher/intake timings.
type ScheduleConfig struct {
	Timezone              string `yaml:"timezone"` // e.g. "Europe/Moscow"
	TradingStart          string `yaml:"trading_start"`
	TradingEnd            string `yaml:"trading_end"`
	PollInterval          string `yaml:"poll_interval"`           // e.g. "5s"
	SLPlacementTimeout    string `yaml:"sl_placement_timeout"`    // e.g. "10s"
	ConfirmTimeout        string `yaml:"confirm_timeout"`         // e.g. "2m"
	IntakeSweepInterval   string `yaml:"intake_sweep_interval"`   // e.g. "15s"
}

// CircuitBreakerConfig mirrors gobreaker.Settings' tunable fields.
type CircuitBreakerConfig struct {
	MaxRequests  uint32  `yaml:"max_requests"`
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// StorageConfig defines storage settings for the durable JSON document.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the read-only JSON dashboard's HTTP settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// resolveLocation returns the configured timezone, defaulting to MSK
// (this supervisor's trading venue) if unset.
func (c *Config) resolveLocation() (*time.Location, error) {
	tz := c.Schedule.Timezone
	if strings.TrimSpace(tz) == "" {
		tz = "Europe/Moscow"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Normalize sets default values for configuration fields.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.Mode) == "" {
		c.Environment.Mode = "paper"
	}
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if strings.TrimSpace(c.Schedule.Timezone) == "" {
		c.Schedule.Timezone = "Europe/Moscow"
	}
	if strings.TrimSpace(c.Schedule.TradingStart) == "" {
		c.Schedule.TradingStart = "10:05"
	}
	if strings.TrimSpace(c.Schedule.TradingEnd) == "" {
		c.Schedule.TradingEnd = "18:40"
	}
	if strings.TrimSpace(c.Schedule.PollInterval) == "" {
		c.Schedule.PollInterval = "5s"
	}
	if strings.TrimSpace(c.Schedule.SLPlacementTimeout) == "" {
		c.Schedule.SLPlacementTimeout = "10s"
	}
	if strings.TrimSpace(c.Schedule.ConfirmTimeout) == "" {
		c.Schedule.ConfirmTimeout = "60s"
	}
	if strings.TrimSpace(c.Schedule.IntakeSweepInterval) == "" {
		c.Schedule.IntakeSweepInterval = "15s"
	}
	if c.FreeTrading.DepositRub == 0 {
		c.FreeTrading.DepositRub = 100000
	}
	if c.FreeTrading.MaxPositionPct == 0 {
		c.FreeTrading.MaxPositionPct = 0.2
	}
	if c.FreeTrading.RiskPerTradePct == 0 {
		c.FreeTrading.RiskPerTradePct = 0.01
	}
	if c.FreeTrading.MaxPriceDeviationPct == 0 {
		c.FreeTrading.MaxPriceDeviationPct = 5.0
	}
	if c.FreeTrading.MaxConcurrentPositions == 0 {
		c.FreeTrading.MaxConcurrentPositions = 3
	}
	if c.FreeTrading.MaxDailyTrades == 0 {
		c.FreeTrading.MaxDailyTrades = 10
	}
	if c.FreeTrading.MaxDailyLossRub == 0 {
		c.FreeTrading.MaxDailyLossRub = 10000
	}
	if c.FreeTrading.SLATRMultiplier == 0 {
		c.FreeTrading.SLATRMultiplier = 1.0
	}
	if c.FreeTrading.TPATRMultiplier == 0 {
		c.FreeTrading.TPATRMultiplier = 3.0
	}
	if c.FreeTrading.PriceTick == 0 {
		c.FreeTrading.PriceTick = 0.01
	}
	if c.CircuitBreaker.MaxRequests == 0 {
		c.CircuitBreaker.MaxRequests = 3
	}
	if strings.TrimSpace(c.CircuitBreaker.Interval) == "" {
		c.CircuitBreaker.Interval = "60s"
	}
	if strings.TrimSpace(c.CircuitBreaker.Timeout) == "" {
		c.CircuitBreaker.Timeout = "30s"
	}
	if c.CircuitBreaker.MinRequests == 0 {
		c.CircuitBreaker.MinRequests = 3
	}
	if c.CircuitBreaker.FailureRatio == 0 {
		c.CircuitBreaker.FailureRatio = 0.6
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "data/state.json"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 9847
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if c.Environment.Mode == "live" && !c.Safety.DryRun {
		if strings.TrimSpace(c.Broker.APIKey) == "" {
			return fmt.Errorf("broker.api_key is required in live mode")
		}
		if strings.TrimSpace(c.Broker.AccountID) == "" {
			return fmt.Errorf("broker.account_id is required in live mode")
		}
	}

	if c.FreeTrading.MaxPositionPct <= 0 || c.FreeTrading.MaxPositionPct > 1.0 {
		return fmt.Errorf("free_trading.max_position_pct must be between 0 and 1.0")
	}
	if c.FreeTrading.RiskPerTradePct <= 0 || c.FreeTrading.RiskPerTradePct > 1.0 {
		return fmt.Errorf("free_trading.risk_per_trade_pct must be between 0 and 1.0")
	}
	if c.FreeTrading.MaxPriceDeviationPct <= 0 {
		return fmt.Errorf("free_trading.max_price_deviation_pct must be > 0")
	}
	if c.FreeTrading.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("free_trading.max_concurrent_positions must be > 0")
	}
	if c.FreeTrading.MaxDailyTrades <= 0 {
		return fmt.Errorf("free_trading.max_daily_trades must be > 0")
	}
	if c.FreeTrading.MaxDailyLossRub <= 0 {
		return fmt.Errorf("free_trading.max_daily_loss_rub must be > 0")
	}
	if c.FreeTrading.SLATRMultiplier <= 0 {
		return fmt.Errorf("free_trading.sl_atr_multiplier must be > 0")
	}
	if c.FreeTrading.TPATRMultiplier <= 0 {
		return fmt.Errorf("free_trading.tp_atr_multiplier must be > 0")
	}
	if c.FreeTrading.PriceTick <= 0 {
		return fmt.Errorf("free_trading.price_tick must be > 0")
	}

	loc, err := c.resolveLocation()
	if err != nil {
		return fmt.Errorf("timezone resolution failed: %w", err)
	}
	s, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil || !s.Before(e) {
		return fmt.Errorf("schedule trading window invalid (start/end parse/order)")
	}
	for name, val := range map[string]string{
		"schedule.poll_interval":           c.Schedule.PollInterval,
		"schedule.sl_placement_timeout":    c.Schedule.SLPlacementTimeout,
		"schedule.confirm_timeout":         c.Schedule.ConfirmTimeout,
		"schedule.intake_sweep_interval":   c.Schedule.IntakeSweepInterval,
		"circuit_breaker.interval":         c.CircuitBreaker.Interval,
		"circuit_breaker.timeout":          c.CircuitBreaker.Timeout,
	} {
		if d, err := time.ParseDuration(val); err != nil {
			return fmt.Errorf("%s invalid duration: %w", name, err)
		} else if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1.0 {
		return fmt.Errorf("circuit_breaker.failure_ratio must be between 0 and 1.0")
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Dashboard.Enabled {
		if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
			return fmt.Errorf("dashboard.port must be between 1 and 65535")
		}
	}

	return nil
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// IsWithinTradingHours checks if the given time falls within configured
// trading hours, Monday-Friday inclusive start / exclusive end.
func (c *Config) IsWithinTradingHours(now time.Time) (bool, error) {
	loc, err := c.resolveLocation()
	if err != nil {
		return false, fmt.Errorf("timezone resolution failed: %w", err)
	}
	today := now.In(loc)
	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false, nil
	}

	startClock, err1 := time.ParseInLocation("15:04", c.Schedule.TradingStart, loc)
	endClock, err2 := time.ParseInLocation("15:04", c.Schedule.TradingEnd, loc)
	if err1 != nil || err2 != nil {
		startClock = time.Date(0, 1, 1, 10, 5, 0, 0, loc)
		endClock = time.Date(0, 1, 1, 18, 40, 0, 0, loc)
	}
	start := time.Date(today.Year(), today.Month(), today.Day(),
		startClock.Hour(), startClock.Minute(), 0, 0, loc)
	end := time.Date(today.Year(), today.Month(), today.Day(),
		endClock.Hour(), endClock.Minute(), 0, 0, loc)

	return !today.Before(start) && today.Before(end), nil
}

// Duration parses a schedule/circuit-breaker duration string, falling back
// to fallback if the string is empty or invalid (defensive only: Validate
// already rejects an invalid config before this is ever called).
func Duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
