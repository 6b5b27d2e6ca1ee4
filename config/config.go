package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	Account    AccountConfig    `json:"account" yaml:"account"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Protection ProtectionConfig `json:"protection" yaml:"protection"`
	Monitor    MonitorConfig    `json:"monitor" yaml:"monitor"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// AccountConfig identifies the trading account the engine guards.
type AccountConfig struct {
	ID      string  `json:"id" yaml:"id"`
	Mode    string  `json:"mode" yaml:"mode"` // "paper" or "live"
	Balance float64 `json:"balance" yaml:"balance"`
}

// RiskConfig holds the safety-gate policy knobs. Percentages are fractions
// (0.10 = 10%).
type RiskConfig struct {
	MinBalance           float64 `json:"min_balance" yaml:"min_balance"`
	MaxPositionPct       float64 `json:"max_position_pct" yaml:"max_position_pct"`
	MaxPortfolioHeatPct  float64 `json:"max_portfolio_heat_pct" yaml:"max_portfolio_heat_pct"`
	MaxSlippagePct       float64 `json:"max_slippage_pct" yaml:"max_slippage_pct"`
	DailyLossLimit       float64 `json:"daily_loss_limit" yaml:"daily_loss_limit"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses" yaml:"max_consecutive_losses"`
}

// ProtectionConfig controls automatic SL/TP placement after an opening fill.
type ProtectionConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	StopLossPct   float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	Trailing      bool    `json:"trailing" yaml:"trailing"`
	TrailingPct   float64 `json:"trailing_pct" yaml:"trailing_pct"`
}

// MonitorConfig controls the price-monitor loop.
type MonitorConfig struct {
	Interval     string `json:"interval" yaml:"interval"`           // e.g. "5s"
	PriceTimeout string `json:"price_timeout" yaml:"price_timeout"` // per-symbol fetch budget
	MaxFetches   int    `json:"max_fetches" yaml:"max_fetches"`     // concurrent price fetches
}

// ParseInterval converts the interval string to a duration.
func (mc MonitorConfig) ParseInterval() (time.Duration, error) {
	if mc.Interval == "" {
		return 5 * time.Second, nil
	}
	return time.ParseDuration(mc.Interval)
}

// ParsePriceTimeout converts the fetch budget string to a duration.
func (mc MonitorConfig) ParsePriceTimeout() (time.Duration, error) {
	if mc.PriceTimeout == "" {
		return 3 * time.Second, nil
	}
	return time.ParseDuration(mc.PriceTimeout)
}

// StoreConfig locates the durable state database.
type StoreConfig struct {
	Path string `json:"path" yaml:"path"`
}

// JournalConfig selects the history journal backend.
type JournalConfig struct {
	Type string `json:"type" yaml:"type"` // "sqlite" or "csv"
	Path string `json:"path" yaml:"path"`
}

// MetricsConfig controls the Prometheus listener. Empty Listen disables it.
type MetricsConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level            string   `json:"level" yaml:"level"`
	Encoding         string   `json:"encoding" yaml:"encoding"`
	OutputPaths      []string `json:"output_paths" yaml:"output_paths"`
	ErrorOutputPaths []string `json:"error_output_paths" yaml:"error_output_paths"`
}

// Default returns a configuration with conservative paper-mode defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			ID:      "paper-1",
			Mode:    "paper",
			Balance: 10_000,
		},
		Risk: RiskConfig{
			MinBalance:           100,
			MaxPositionPct:       0.10,
			MaxPortfolioHeatPct:  0.50,
			MaxSlippagePct:       0.01,
			DailyLossLimit:       500,
			MaxConsecutiveLosses: 3,
		},
		Protection: ProtectionConfig{
			Enabled:       true,
			StopLossPct:   0.02,
			TakeProfitPct: 0.05,
		},
		Monitor: MonitorConfig{
			Interval:     "5s",
			PriceTimeout: "3s",
			MaxFetches:   4,
		},
		Store:   StoreConfig{Path: "./tradeguard.sqlite"},
		Journal: JournalConfig{Type: "sqlite", Path: "./journal.sqlite"},
		Logging: LoggingConfig{Level: "info", Encoding: "json"},
	}
}

// Load reads a YAML or JSON config file and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if strings.HasSuffix(path, ".json") {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Account.ID == "" {
		return fmt.Errorf("config: account id required")
	}
	if c.Account.Mode != "paper" && c.Account.Mode != "live" {
		return fmt.Errorf("config: account mode must be paper or live, got %q", c.Account.Mode)
	}
	if c.Account.Balance <= 0 {
		return fmt.Errorf("config: account balance must be positive")
	}
	if c.Risk.MaxPositionPct <= 0 || c.Risk.MaxPositionPct > 1 {
		return fmt.Errorf("config: max_position_pct must be in (0, 1]")
	}
	if c.Risk.MaxPortfolioHeatPct <= 0 || c.Risk.MaxPortfolioHeatPct > 1 {
		return fmt.Errorf("config: max_portfolio_heat_pct must be in (0, 1]")
	}
	if c.Risk.DailyLossLimit <= 0 {
		return fmt.Errorf("config: daily_loss_limit must be positive")
	}
	if c.Risk.MaxConsecutiveLosses <= 0 {
		return fmt.Errorf("config: max_consecutive_losses must be positive")
	}
	if c.Protection.Enabled {
		if c.Protection.StopLossPct <= 0 || c.Protection.StopLossPct >= 1 {
			return fmt.Errorf("config: stop_loss_pct must be in (0, 1)")
		}
		if c.Protection.TakeProfitPct <= 0 {
			return fmt.Errorf("config: take_profit_pct must be positive")
		}
		if c.Protection.Trailing && (c.Protection.TrailingPct <= 0 || c.Protection.TrailingPct >= 1) {
			return fmt.Errorf("config: trailing_pct must be in (0, 1)")
		}
	}
	if _, err := c.Monitor.ParseInterval(); err != nil {
		return fmt.Errorf("config: bad monitor interval: %w", err)
	}
	if _, err := c.Monitor.ParsePriceTimeout(); err != nil {
		return fmt.Errorf("config: bad price timeout: %w", err)
	}
	if c.Journal.Type != "" && c.Journal.Type != "sqlite" && c.Journal.Type != "csv" {
		return fmt.Errorf("config: journal type must be sqlite or csv, got %q", c.Journal.Type)
	}
	return nil
}
