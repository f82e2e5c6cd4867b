package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rustyeddy/papertrader/risk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, 100000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 0.20, cfg.Risk.MaxPositionSizePct)
	assert.Equal(t, 0.05, cfg.Risk.StopLossPct)
	assert.False(t, cfg.FillAtClose())
	assert.NoError(t, cfg.Validate())

	rc, err := cfg.RiskConfig()
	require.NoError(t, err)
	assert.Equal(t, risk.DefaultParams(), rc.Params())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid config", func(*Config) {}, ""},
		{"zero capital", func(c *Config) { c.Account.InitialCapital = 0 }, "account.initial_capital must be positive"},
		{"risk out of range", func(c *Config) { c.Risk.StopLossPct = 1.5 }, "stop_loss_pct"},
		{"negative fee", func(c *Config) { c.Execution.FeeRate = -0.1 }, "execution.fee_rate"},
		{"bad fill", func(c *Config) { c.Execution.FillAt = "vwap" }, "execution.fill_at"},
		{"close fill", func(c *Config) { c.Execution.FillAt = "CLOSE" }, ""},
		{"bad from", func(c *Config) { c.Backtest.From = "yesterday" }, "backtest range"},
		{"reversed range", func(c *Config) { c.Backtest.From, c.Backtest.To = "2024-02-01", "2024-01-01" }, "before"},
		{"bad interval", func(c *Config) { c.Paper.Interval = "often" }, "paper.interval"},
		{"csv without files", func(c *Config) { c.Journal.TradesFile = "" }, "trades_file and equity_file"},
		{"sqlite without path", func(c *Config) { c.Journal.Type = "sqlite" }, "db_path required"},
		{"no journal", func(c *Config) { c.Journal.Type = "none" }, ""},
		{"unknown journal", func(c *Config) { c.Journal.Type = "kafka" }, "journal.type"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRiskErrorIsTyped(t *testing.T) {
	cfg := Default()
	cfg.Risk.MaxDrawdownPct = 0

	var ce *risk.ConfigError
	assert.True(t, errors.As(cfg.Validate(), &ce))
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Risk.TrailingStopPct = 0.1
			cfg.Paper.Watchlist = []string{"AAPL", "MSFT"}
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account:\n  initial_capital: 50000\nrisk:\n  stop_loss_pct: 0.08\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 0.08, cfg.Risk.StopLossPct)
	assert.Equal(t, 0.20, cfg.Risk.MaxPositionSizePct)
	assert.Equal(t, "csv", cfg.Journal.Type)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("account: [unterminated"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TRADER_INITIAL_CAPITAL": "25000",
		"TRADER_STOP_LOSS_PCT":   "0.03",
		"TRADER_FEE_RATE":        "0.001",
		"TRADER_WATCHLIST":       " aapl, msft ,,nvda",
		"TRADER_LOG_LEVEL":       "debug",
		"TRADER_SERVER_ADDR":     ":9090",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 25000.0, cfg.Account.InitialCapital)
	assert.Equal(t, 0.03, cfg.Risk.StopLossPct)
	assert.Equal(t, 0.001, cfg.Execution.FeeRate)
	assert.Equal(t, []string{"AAPL", "MSFT", "NVDA"}, cfg.Paper.Watchlist)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9090", cfg.Server.Addr)

	env["TRADER_FEE_RATE"] = "lots"
	assert.ErrorContains(t, Default().ApplyEnv(lookup), "TRADER_FEE_RATE")
}

func TestLoadUsesEnvironment(t *testing.T) {
	t.Setenv("TRADER_INITIAL_CAPITAL", "75000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 75000.0, cfg.Account.InitialCapital)

	t.Setenv("TRADER_INITIAL_CAPITAL", "-1")
	_, err = Load("")
	assert.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		interval string
		expected time.Duration
		wantErr  bool
	}{
		{"1h", time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"", 0, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			d, err := PaperConfig{Interval: tt.interval}.ParseInterval()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestBacktestRange(t *testing.T) {
	r, err := BacktestConfig{From: "2024-01-02", To: "2024-03-01T00:00:00Z"}.Range()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), r[0])
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), r[1])

	r, err = BacktestConfig{}.Range()
	require.NoError(t, err)
	assert.True(t, r[0].IsZero() && r[1].IsZero())
}
