package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with fresh flag state and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

// fixture writes a config with a SQLite journal plus bar, price and signal
// files.
func fixture(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	cfgPath = write(t, dir, "trader.yaml", `
account:
  initial_capital: 100000
journal:
  type: sqlite
  db_path: `+filepath.Join(dir, "journal.sqlite")+`
log:
  level: error
`)
	write(t, dir, "bars.csv", "time,ticker,open,high,low,close\n"+
		"2024-01-01,AAPL,100,100,100,100\n"+
		"2024-01-02,AAPL,100,101,99,100\n"+
		"2024-01-03,AAPL,98,98,94,94\n")
	write(t, dir, "signals.csv", "time,ticker,signal\n"+
		"2024-01-01,AAPL,BUY\n"+
		"2024-05-01T15:00:00Z,AAPL,BUY\n")
	write(t, dir, "prices.csv", "time,ticker,price\n"+
		"2024-05-01T15:00:00Z,AAPL,100\n")
	return dir, cfgPath
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "trader version "+version)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.yaml")

	out, err := run(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	out, err = run(t, "config", "validate", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")

	out, err = run(t, "config", "show", "-c", path)
	require.NoError(t, err)
	assert.Contains(t, out, "initial_capital: 100000")

	bad := write(t, t.TempDir(), "bad.yaml", "account:\n  initial_capital: -5\n")
	_, err = run(t, "config", "validate", "-f", bad)
	assert.ErrorContains(t, err, "initial_capital")
}

func TestBacktestThenExportJournal(t *testing.T) {
	dir, cfgPath := fixture(t)
	orgPath := filepath.Join(dir, "run.org")

	out, err := run(t, "backtest", "-c", cfgPath,
		"--bars", filepath.Join(dir, "bars.csv"),
		"--signals", filepath.Join(dir, "signals.csv"),
		"--org", orgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest Result")

	org, err := os.ReadFile(orgPath)
	require.NoError(t, err)
	assert.Contains(t, string(org), "* BACKTEST: AAPL")

	out, err = run(t, "journal", "export", "-c", cfgPath, "--format", "csv")
	require.NoError(t, err)
	assert.Contains(t, out, ",AAPL,BUY,200,")
	assert.Contains(t, out, ",AAPL,STOP,200,")

	out, err = run(t, "journal", "day", "2024-01-03", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "STOP AAPL")
}

func TestBacktestNeedsInputs(t *testing.T) {
	_, cfgPath := fixture(t)
	_, err := run(t, "backtest", "-c", cfgPath)
	assert.ErrorContains(t, err, "--bars")
}

func TestBacktestBaselineEMA(t *testing.T) {
	dir, cfgPath := fixture(t)

	out, err := run(t, "backtest", "-c", cfgPath,
		"--bars", filepath.Join(dir, "bars.csv"),
		"--ema", "1,2")
	require.NoError(t, err)
	assert.Contains(t, out, "Backtest Result")

	_, err = run(t, "backtest", "-c", cfgPath,
		"--bars", filepath.Join(dir, "bars.csv"),
		"--ema", "3,2")
	assert.ErrorContains(t, err, "--ema")
}

func TestBacktestSweep(t *testing.T) {
	dir, cfgPath := fixture(t)

	out, err := run(t, "backtest", "-c", cfgPath,
		"--bars", filepath.Join(dir, "bars.csv"),
		"--signals", filepath.Join(dir, "signals.csv"),
		"--sweep-stops", "0.05,0.10")
	require.NoError(t, err)
	assert.Contains(t, out, "stop=5.00%")
	assert.Contains(t, out, "stop=10.00%")
}

func TestPaperOnce(t *testing.T) {
	dir, cfgPath := fixture(t)

	out, err := run(t, "paper", "-c", cfgPath,
		"--watchlist", "aapl",
		"--prices", filepath.Join(dir, "prices.csv"),
		"--signals", filepath.Join(dir, "signals.csv"),
		"--once", "--as-of", "2024-05-01T15:30:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "Paper Trading Session")

	out, err = run(t, "journal", "export", "-c", cfgPath, "--format", "org")
	require.NoError(t, err)
	assert.Contains(t, out, "BUY AAPL")
}
