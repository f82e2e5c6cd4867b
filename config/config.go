package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rustyeddy/papertrader/risk"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the environment overrides, e.g. TRADER_INITIAL_CAPITAL.
const EnvPrefix = "TRADER_"

// Config represents the complete trader configuration
type Config struct {
	Account   AccountConfig   `json:"account" yaml:"account"`
	Risk      RiskConfig      `json:"risk" yaml:"risk"`
	Execution ExecutionConfig `json:"execution" yaml:"execution"`
	Backtest  BacktestConfig  `json:"backtest" yaml:"backtest"`
	Paper     PaperConfig     `json:"paper" yaml:"paper"`
	Journal   JournalConfig   `json:"journal" yaml:"journal"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Server    ServerConfig    `json:"server" yaml:"server"`
}

// AccountConfig contains account initialization parameters
type AccountConfig struct {
	ID             string  `json:"id" yaml:"id"`
	InitialCapital float64 `json:"initial_capital" yaml:"initial_capital"`
}

// RiskConfig mirrors risk.Params. All values are fractions (0.05 is 5%).
type RiskConfig struct {
	MaxPositionSizePct float64 `json:"max_position_size_pct" yaml:"max_position_size_pct"`
	StopLossPct        float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct" yaml:"max_daily_loss_pct"`
	RiskPerTradePct    float64 `json:"risk_per_trade_pct" yaml:"risk_per_trade_pct"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct" yaml:"max_drawdown_pct"`
	TakeProfitPct      float64 `json:"take_profit_pct,omitempty" yaml:"take_profit_pct,omitempty"`
	TrailingStopPct    float64 `json:"trailing_stop_pct,omitempty" yaml:"trailing_stop_pct,omitempty"`
}

// Params converts the section to risk parameters.
func (r RiskConfig) Params() risk.Params {
	return risk.Params{
		MaxPositionSizePct: r.MaxPositionSizePct,
		StopLossPct:        r.StopLossPct,
		MaxDailyLossPct:    r.MaxDailyLossPct,
		RiskPerTradePct:    r.RiskPerTradePct,
		MaxDrawdownPct:     r.MaxDrawdownPct,
		TakeProfitPct:      r.TakeProfitPct,
		TrailingStopPct:    r.TrailingStopPct,
	}
}

// ExecutionConfig contains fill parameters
type ExecutionConfig struct {
	FeeRate float64 `json:"fee_rate" yaml:"fee_rate"`
	FillAt  string  `json:"fill_at" yaml:"fill_at"` // "open" or "close"
}

// BacktestConfig contains replay inputs
type BacktestConfig struct {
	BarsFile    string `json:"bars_file,omitempty" yaml:"bars_file,omitempty"`
	SignalsFile string `json:"signals_file,omitempty" yaml:"signals_file,omitempty"`
	From        string `json:"from,omitempty" yaml:"from,omitempty"`
	To          string `json:"to,omitempty" yaml:"to,omitempty"`
	CloseAtEnd  bool   `json:"close_at_end" yaml:"close_at_end"`
	OrgPath     string `json:"org_path,omitempty" yaml:"org_path,omitempty"`
}

// PaperConfig contains the paper trading loop parameters
type PaperConfig struct {
	Watchlist   []string `json:"watchlist" yaml:"watchlist"`
	Interval    string   `json:"interval" yaml:"interval"` // e.g. "1m", "1h"
	PricesFile  string   `json:"prices_file,omitempty" yaml:"prices_file,omitempty"`
	SignalsFile string   `json:"signals_file,omitempty" yaml:"signals_file,omitempty"`

	RequestsPerSecond   float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	ConsecutiveFailures uint32  `json:"consecutive_failures,omitempty" yaml:"consecutive_failures,omitempty"`
}

// ParseInterval converts the interval string to time.Duration
func (p PaperConfig) ParseInterval() (time.Duration, error) {
	if p.Interval == "" {
		return 0, nil
	}
	return time.ParseDuration(p.Interval)
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "csv", "sqlite" or "none"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LogConfig controls zerolog output
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "console" or "json"
}

// ServerConfig controls the status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Load reads path when it is not empty, otherwise starts from Default, then
// applies .env and TRADER_* environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = readFile(path); err != nil {
			return nil, err
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file (YAML, falling back to JSON)
func LoadFromFile(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Unset fields keep their defaults.
	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, JSON otherwise)
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from TRADER_* variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	floats := map[string]*float64{
		"INITIAL_CAPITAL":       &c.Account.InitialCapital,
		"MAX_POSITION_SIZE_PCT": &c.Risk.MaxPositionSizePct,
		"STOP_LOSS_PCT":         &c.Risk.StopLossPct,
		"MAX_DAILY_LOSS_PCT":    &c.Risk.MaxDailyLossPct,
		"RISK_PER_TRADE_PCT":    &c.Risk.RiskPerTradePct,
		"MAX_DRAWDOWN_PCT":      &c.Risk.MaxDrawdownPct,
		"TAKE_PROFIT_PCT":       &c.Risk.TakeProfitPct,
		"TRAILING_STOP_PCT":     &c.Risk.TrailingStopPct,
		"FEE_RATE":              &c.Execution.FeeRate,
	}
	for key, dst := range floats {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = f
	}

	strs := map[string]*string{
		"FILL_AT":         &c.Execution.FillAt,
		"PAPER_INTERVAL":  &c.Paper.Interval,
		"JOURNAL_TYPE":    &c.Journal.Type,
		"JOURNAL_DB_PATH": &c.Journal.DBPath,
		"LOG_LEVEL":       &c.Log.Level,
		"LOG_FORMAT":      &c.Log.Format,
		"SERVER_ADDR":     &c.Server.Addr,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup(EnvPrefix + "WATCHLIST"); ok && v != "" {
		c.Paper.Watchlist = splitAndTrim(v)
	}
	return nil
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.ToUpper(strings.TrimSpace(p)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// RiskConfig builds the validated risk configuration.
func (c *Config) RiskConfig() (*risk.Config, error) {
	return risk.NewConfig(c.Risk.Params())
}

// FillAtClose reports whether backtest entries fill at the bar close.
func (c *Config) FillAtClose() bool {
	return strings.EqualFold(c.Execution.FillAt, "close")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.InitialCapital <= 0 {
		return fmt.Errorf("account.initial_capital must be positive")
	}
	if _, err := c.RiskConfig(); err != nil {
		return err
	}
	if c.Execution.FeeRate < 0 || c.Execution.FeeRate >= 1 {
		return fmt.Errorf("execution.fee_rate must be in [0,1)")
	}
	switch strings.ToLower(c.Execution.FillAt) {
	case "", "open", "close":
	default:
		return fmt.Errorf("execution.fill_at must be 'open' or 'close'")
	}
	if _, err := c.Backtest.Range(); err != nil {
		return err
	}
	if d, err := c.Paper.ParseInterval(); err != nil {
		return fmt.Errorf("paper.interval: %w", err)
	} else if d < 0 {
		return fmt.Errorf("paper.interval must not be negative")
	}
	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'csv', 'sqlite' or 'none'")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("log.format must be 'console' or 'json'")
	}
	return nil
}

// Range parses From and To. Zero times mean unbounded.
func (b BacktestConfig) Range() ([2]time.Time, error) {
	var out [2]time.Time
	for i, s := range []string{b.From, b.To} {
		if s == "" {
			continue
		}
		t, err := parseDate(s)
		if err != nil {
			return out, fmt.Errorf("backtest range: %w", err)
		}
		out[i] = t
	}
	if !out[0].IsZero() && !out[1].IsZero() && out[1].Before(out[0]) {
		return out, fmt.Errorf("backtest.to is before backtest.from")
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	p := risk.DefaultParams()
	return &Config{
		Account: AccountConfig{
			ID:             "PAPER-001",
			InitialCapital: 100000,
		},
		Risk: RiskConfig{
			MaxPositionSizePct: p.MaxPositionSizePct,
			StopLossPct:        p.StopLossPct,
			MaxDailyLossPct:    p.MaxDailyLossPct,
			RiskPerTradePct:    p.RiskPerTradePct,
			MaxDrawdownPct:     p.MaxDrawdownPct,
		},
		Execution: ExecutionConfig{
			FeeRate: 0,
			FillAt:  "open",
		},
		Backtest: BacktestConfig{
			CloseAtEnd: true,
		},
		Paper: PaperConfig{
			Interval:            "1m",
			RequestsPerSecond:   5,
			ConsecutiveFailures: 5,
		},
		Journal: JournalConfig{
			Type:       "csv",
			TradesFile: "./trades.csv",
			EquityFile: "./equity.csv",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
