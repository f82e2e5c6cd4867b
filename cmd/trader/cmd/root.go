package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// Set by the root PersistentPreRunE for every subcommand.
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Signal-driven paper trading and backtesting",
	Long: `Trader turns BUY/SELL/HOLD model signals into risk-managed simulated trades.

It provides tools for:
  - Backtesting signals against historical bars without look-ahead
  - Paper trading a watchlist on a fixed interval
  - Risk-based position sizing, stop losses and circuit breakers
  - Journaling trades and equity to CSV or SQLite
  - Serving status, trades and Prometheus metrics over HTTP`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON); defaults plus TRADER_* env when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if cfg, err = config.Load(cfgFile); err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err = newLogger(cmd.ErrOrStderr(), cfg.Log)
	return err
}

func newLogger(w io.Writer, lc config.LogConfig) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if lc.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
		if err != nil {
			return zerolog.Nop(), err
		}
		level = l
	}

	if w == nil {
		w = os.Stderr
	}
	if lc.Format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
