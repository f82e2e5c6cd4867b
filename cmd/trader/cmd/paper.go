package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/paper"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/server"
	"github.com/spf13/cobra"
)

var paperCmd = &cobra.Command{
	Use:   "paper",
	Short: "Paper trade a watchlist on a fixed interval",
	Long: `Paper runs a trading cycle for every watchlist ticker each interval: fetch the
latest price and model signal, execute through the risk engine, check stops and
revalue the portfolio. A ticker without a price or signal is skipped for that
cycle only.

Prices CSV:  time,ticker,price
Signals CSV: time,ticker,signal

Upstream reads are paced and guarded by a circuit breaker. With --addr the
status server exposes /status, /trades, /positions, /metrics and POST
/halt/reset.

Examples:
  trader paper --watchlist AAPL,MSFT --prices prices.csv --signals signals.csv
  trader paper -c trader.yaml --addr :8080
  trader paper -c trader.yaml --once --as-of 2024-05-01T15:30:00Z`,
	RunE: runPaper,
}

var (
	ppWatchlist   string
	ppInterval    string
	ppPricesPath  string
	ppSignalsPath string
	ppAddr        string
	ppOnce        bool
	ppAsOf        string
)

func init() {
	rootCmd.AddCommand(paperCmd)

	f := paperCmd.Flags()
	f.StringVarP(&ppWatchlist, "watchlist", "w", "", "comma-separated tickers (overrides paper.watchlist)")
	f.StringVar(&ppInterval, "interval", "", "cycle interval, e.g. 1m (overrides paper.interval)")
	f.StringVar(&ppPricesPath, "prices", "", "prices CSV (overrides paper.prices_file)")
	f.StringVar(&ppSignalsPath, "signals", "", "signals CSV (overrides paper.signals_file)")
	f.StringVar(&ppAddr, "addr", "", "status server address (overrides server.addr)")
	f.BoolVar(&ppOnce, "once", false, "run a single cycle and exit")
	f.StringVar(&ppAsOf, "as-of", "", "cycle time for --once (RFC3339, default now)")
}

func runPaper(cmd *cobra.Command, args []string) error {
	pc := cfg.Paper
	if ppWatchlist != "" {
		pc.Watchlist = strings.Split(strings.ToUpper(ppWatchlist), ",")
	}
	if ppInterval != "" {
		pc.Interval = ppInterval
	}
	if ppPricesPath != "" {
		pc.PricesFile = ppPricesPath
	}
	if ppSignalsPath != "" {
		pc.SignalsFile = ppSignalsPath
	}
	addr := cfg.Server.Addr
	if ppAddr != "" {
		addr = ppAddr
	}

	if len(pc.Watchlist) == 0 {
		return fmt.Errorf("paper needs a watchlist (--watchlist or paper.watchlist)")
	}
	if pc.PricesFile == "" || pc.SignalsFile == "" {
		return fmt.Errorf("paper needs --prices and --signals (or paper.prices_file and paper.signals_file)")
	}
	interval, err := pc.ParseInterval()
	if err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	if interval <= 0 && !ppOnce {
		return fmt.Errorf("interval must be positive")
	}

	store := feed.NewStore()
	if _, err := feed.LoadPricesFile(pc.PricesFile, store); err != nil {
		return fmt.Errorf("load prices: %w", err)
	}
	if _, err := feed.LoadSignalsFile(pc.SignalsFile, store); err != nil {
		return fmt.Errorf("load signals: %w", err)
	}
	guard := feed.NewGuard(store, store, feed.GuardSettings{
		Name:                "paper-feed",
		RequestsPerSecond:   pc.RequestsPerSecond,
		ConsecutiveFailures: pc.ConsecutiveFailures,
	}, logger)

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	rec := metrics.NewRecorder()
	engine, err := newEngine(cfg, j, logger, rec)
	if err != nil {
		return err
	}

	trader := &paper.Trader{
		Engine:    engine,
		Prices:    guard,
		Signals:   guard,
		Watchlist: pc.Watchlist,
		Log:       logger,
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	srvErr := make(chan error, 1)
	if addr != "" {
		srv := server.New(engine, rec, logger)
		go func() { srvErr <- srv.ListenAndServe(ctx, addr) }()
	}

	start := time.Now().UTC()
	if ppOnce {
		asOf := start
		if ppAsOf != "" {
			if asOf, err = feed.ParseTime(ppAsOf); err != nil {
				return fmt.Errorf("--as-of: %w", err)
			}
		}
		if _, err := trader.RunCycle(ctx, asOf); err != nil {
			return err
		}
	} else {
		logger.Info().Strs("watchlist", pc.Watchlist).Dur("interval", interval).Msg("paper trading started")
		if err := trader.Run(ctx, interval, nil); err != nil {
			return err
		}
	}

	cancel()
	if addr != "" {
		if err := <-srvErr; err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("status server")
		}
	}

	trades := engine.Trades()
	sum := report.RunSummary{
		Created:     start,
		Mode:        "paper",
		Tickers:     pc.Watchlist,
		Risk:        cfg.Risk.Params(),
		FeeRate:     cfg.Execution.FeeRate,
		Start:       start,
		End:         time.Now().UTC(),
		StartEquity: cfg.Account.InitialCapital,
		Status:      engine.Status(),
		Performance: report.Analyze(trades, nil, report.TradingDaysPerYear),
	}
	sum.RunID = id.New().At(start)
	sum.EndEquity = sum.Status.Equity
	sum.Cycles = sum.Status.Cycle
	report.PrintSummary(cmd.OutOrStdout(), sum)
	return nil
}
