package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/papertrader/backtest"
	"github.com/rustyeddy/papertrader/feed"
	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/strategies"
	"github.com/spf13/cobra"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical bars and model signals",
	Long: `Backtest replays OHLC bars and BUY/SELL/HOLD signals through the execution engine.

A signal stamped at bar t is traded at bar t+1 (open by default), so the replay
never sees the future. Stops are checked and the portfolio is valued at each
bar's close.

Bars CSV:    time,ticker,open,high,low,close[,volume]
Signals CSV: time,ticker,signal

Without a signals file, --ema generates baseline EMA crossover signals from the
bars themselves.

Examples:
  trader backtest --bars data/bars.csv --signals data/signals.csv
  trader backtest -c trader.yaml --from 2023-01-01 --to 2024-01-01 --org run.org
  trader backtest --bars b.csv --signals s.csv --sweep-stops 0.03,0.05,0.08
  trader backtest --bars b.csv --ema 10,20`,
	RunE: runBacktest,
}

var (
	btBarsPath    string
	btSignalsPath string
	btFrom        string
	btTo          string
	btFillAt      string
	btCloseEnd    bool
	btOrgPath     string
	btSweepStops  string
	btParallel    int
	btEMA         string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	f := backtestCmd.Flags()
	f.StringVarP(&btBarsPath, "bars", "b", "", "bars CSV (overrides backtest.bars_file)")
	f.StringVarP(&btSignalsPath, "signals", "s", "", "signals CSV (overrides backtest.signals_file)")
	f.StringVar(&btFrom, "from", "", "first bar date, inclusive (YYYY-MM-DD or RFC3339)")
	f.StringVar(&btTo, "to", "", "last bar date, exclusive")
	f.StringVar(&btFillAt, "fill-at", "", "fill signals at the bar 'open' or 'close'")
	f.BoolVar(&btCloseEnd, "close-end", true, "close all open positions at the end of the replay")
	f.StringVar(&btOrgPath, "org", "", "write an Org-mode summary to this path")
	f.StringVar(&btSweepStops, "sweep-stops", "", "comma-separated stop-loss fractions to compare in parallel")
	f.IntVar(&btParallel, "parallel", 0, "sweep concurrency (0 = GOMAXPROCS)")
	f.StringVar(&btEMA, "ema", "", "generate EMA crossover signals as fast,slow periods instead of reading --signals")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	bc := cfg.Backtest
	if btBarsPath != "" {
		bc.BarsFile = btBarsPath
	}
	if btSignalsPath != "" {
		bc.SignalsFile = btSignalsPath
	}
	if btFrom != "" {
		bc.From = btFrom
	}
	if btTo != "" {
		bc.To = btTo
	}
	if btOrgPath != "" {
		bc.OrgPath = btOrgPath
	}
	if cmd.Flags().Changed("close-end") {
		bc.CloseAtEnd = btCloseEnd
	}
	if btFillAt != "" {
		cfg.Execution.FillAt = btFillAt
	}
	if bc.BarsFile == "" || (bc.SignalsFile == "" && btEMA == "") {
		return fmt.Errorf("backtest needs --bars and --signals or --ema (or backtest.bars_file and backtest.signals_file)")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	rng, err := bc.Range()
	if err != nil {
		return err
	}

	signals := feed.NewStore()
	if btEMA != "" {
		if err := generateSignals(bc.BarsFile, btEMA, signals); err != nil {
			return err
		}
	} else {
		n, err := feed.LoadSignalsFile(bc.SignalsFile, signals)
		if err != nil {
			return fmt.Errorf("load signals: %w", err)
		}
		logger.Info().Str("file", bc.SignalsFile).Int("signals", n).Msg("signals loaded")
	}

	opts := backtest.Options{
		FillAtClose: cfg.FillAtClose(),
		CloseAtEnd:  bc.CloseAtEnd,
	}

	if btSweepStops != "" {
		return runSweep(cmd, bc.BarsFile, rng, signals, opts)
	}

	j, err := openJournal(cfg.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	engine, err := newEngine(cfg, j, logger)
	if err != nil {
		return err
	}
	bars, err := feed.NewCSVBarFeed(bc.BarsFile, rng[0], rng[1])
	if err != nil {
		return fmt.Errorf("open bars: %w", err)
	}

	runner := &backtest.Runner{
		Engine:  engine,
		Bars:    bars,
		Signals: signals,
		Options: opts,
		Log:     logger,
	}
	res, err := runner.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	sum := res.Summary()
	sum.RunID = id.New().At(sum.Created)
	sum.Dataset = bc.BarsFile
	sum.OrgPath = bc.OrgPath
	if ej := engine.JournalErrors(); ej > 0 {
		sum.Notes = append(sum.Notes, fmt.Sprintf("%d journal writes failed", ej))
	}

	report.PrintSummary(cmd.OutOrStdout(), sum)
	if sum.OrgPath != "" {
		if err := sum.WriteOrgFile(); err != nil {
			return fmt.Errorf("write org summary: %w", err)
		}
		logger.Info().Str("path", sum.OrgPath).Msg("org summary written")
	}
	return nil
}

func runSweep(cmd *cobra.Command, barsPath string, rng [2]time.Time, signals feed.SignalSource, opts backtest.Options) error {
	stops, err := parseFractions(btSweepStops)
	if err != nil {
		return fmt.Errorf("--sweep-stops: %w", err)
	}

	src, err := feed.NewCSVBarFeed(barsPath, rng[0], rng[1])
	if err != nil {
		return fmt.Errorf("open bars: %w", err)
	}
	var bars []feed.Bar
	for {
		b, ok, err := src.Next()
		if err != nil {
			_ = src.Close()
			return fmt.Errorf("read bars: %w", err)
		}
		if !ok {
			break
		}
		bars = append(bars, b)
	}
	_ = src.Close()

	base, err := portfolio.NewLedger(cfg.Account.InitialCapital)
	if err != nil {
		return err
	}

	variants := make([]backtest.Variant, len(stops))
	for i, s := range stops {
		p := cfg.Risk.Params()
		p.StopLossPct = s
		variants[i] = backtest.Variant{
			Name:    fmt.Sprintf("stop=%.2f%%", s*100),
			Params:  p,
			FeeRate: cfg.Execution.FeeRate,
		}
	}

	results := backtest.Sweep(cmd.Context(), base, bars, signals, variants, opts, btParallel, logger)
	printSweep(cmd.OutOrStdout(), results)
	return nil
}

func generateSignals(barsPath, periods string, store *feed.Store) error {
	ec := strategies.EMACrossDefaults()
	if _, err := fmt.Sscanf(periods, "%d,%d", &ec.FastPeriod, &ec.SlowPeriod); err != nil {
		return fmt.Errorf("--ema: want fast,slow periods: %w", err)
	}
	f, err := os.Open(barsPath)
	if err != nil {
		return fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()
	bars, err := feed.LoadBars(f)
	if err != nil {
		return fmt.Errorf("read bars: %w", err)
	}
	n, err := strategies.Populate(ec, bars, store)
	if err != nil {
		return fmt.Errorf("--ema: %w", err)
	}
	logger.Info().Int("fast", ec.FastPeriod).Int("slow", ec.SlowPeriod).Int("signals", n).Msg("baseline signals generated")
	return nil
}

func parseFractions(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values")
	}
	return out, nil
}

func printSweep(w io.Writer, results []backtest.SweepResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tRETURN %\tMAX DD %\tSHARPE\tTRADES\tWIN %\tERROR")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%v\n", r.Variant.Name, r.Err)
			continue
		}
		p := r.Result.Performance
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t%.1f\t\n",
			r.Variant.Name, r.Result.Status.TotalReturnPct, p.Curve.MaxDrawdownPct,
			p.Curve.Sharpe, p.Closed, p.WinRate*100)
	}
	_ = tw.Flush()
}
