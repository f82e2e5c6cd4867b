package report

import (
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/rustyeddy/papertrader/risk"
)

// RunSummary describes one backtest or paper session.
type RunSummary struct {
	RunID   string
	Created time.Time
	Mode    string // backtest | paper
	Dataset string
	Tickers []string

	Risk    risk.Params
	FeeRate float64
	FillAt  string

	Start  time.Time
	End    time.Time
	Bars   int
	Cycles int

	StartEquity float64
	EndEquity   float64
	Status      Status
	Performance Performance
	Skipped     map[string]int

	OrgPath string
	Notes   []string
}

// NetPL is the change in equity over the run.
func (r RunSummary) NetPL() float64 { return r.EndEquity - r.StartEquity }

var summaryOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"orTime": func(t time.Time) time.Time {
		if t.IsZero() {
			return time.Now()
		}
		return t
	},
}

var summaryOrg = template.Must(template.New("summary").Funcs(summaryOrgFuncs).Parse(SummaryOrgTemplate))

// WriteOrg renders the summary as an Org-mode entry.
func (r RunSummary) WriteOrg(w io.Writer) error {
	return summaryOrg.Execute(w, r)
}

// WriteOrgFile writes the Org entry to r.OrgPath.
func (r RunSummary) WriteOrgFile() error {
	if r.OrgPath == "" {
		return fmt.Errorf("report: no org path for run %q", r.RunID)
	}
	fh, err := os.Create(r.OrgPath)
	if err != nil {
		return err
	}
	if err := r.WriteOrg(fh); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}

const SummaryOrgTemplate = `* {{if eq .Mode "paper"}}PAPER{{else}}BACKTEST{{end}}: {{range $i, $t := .Tickers}}{{if $i}} {{end}}{{$t}}{{end}}
:PROPERTIES:
:RUN_ID:      {{if .RunID}}{{.RunID}}{{else}}(run-id?){{end}}
:DATASET:     {{if .Dataset}}{{.Dataset}}{{else}}(dataset?){{end}}
:START_DATE:  {{.Start.Format "2006-01-02"}}
:END_DATE:    {{.End.Format "2006-01-02"}}
:START_EQ:    {{printf "%.2f" .StartEquity}}
:END_EQ:      {{printf "%.2f" .EndEquity}}
:NET_PL:      {{printf "%.2f" .NetPL}}
:RETURN_PCT:  {{printf "%.2f" .Status.TotalReturnPct}}
:MAX_DD_PCT:  {{printf "%.2f" .Performance.Curve.MaxDrawdownPct}}
:TRADES:      {{.Performance.Trades}}
:WINS:        {{.Performance.Wins}}
:LOSSES:      {{.Performance.Losses}}
:WIN_RATE:    {{printf "%.2f" (mul100 .Performance.WinRate)}}
:PROFIT_FAC:  {{if ne .Performance.ProfitFactor 0.0}}{{printf "%.2f" .Performance.ProfitFactor}}{{else}}(no-losses){{end}}
:CREATED:     [{{(orTime .Created).Format "2006-01-02 Mon 15:04"}}]
:END:

** Risk Parameters
| Parameter         | Value |
|-------------------+-------|
| Max Position %    | {{printf "%.2f" (mul100 .Risk.MaxPositionSizePct)}} |
| Stop Loss %       | {{printf "%.2f" (mul100 .Risk.StopLossPct)}} |
| Risk per Trade %  | {{printf "%.2f" (mul100 .Risk.RiskPerTradePct)}} |
| Max Daily Loss %  | {{printf "%.2f" (mul100 .Risk.MaxDailyLossPct)}} |
| Max Drawdown %    | {{printf "%.2f" (mul100 .Risk.MaxDrawdownPct)}} |
| Take Profit %     | {{printf "%.2f" (mul100 .Risk.TakeProfitPct)}} |
| Trailing Stop %   | {{printf "%.2f" (mul100 .Risk.TrailingStopPct)}} |
| Fee Rate %        | {{printf "%.3f" (mul100 .FeeRate)}} |

** Performance Summary
- Net P/L:          *{{printf "%.2f" .NetPL}}*
- Total Return:     *{{printf "%.2f" .Performance.Curve.TotalReturnPct}}%*
- CAGR:             *{{printf "%.2f" .Performance.Curve.CAGRPct}}%*
- Sharpe:           *{{printf "%.2f" .Performance.Curve.Sharpe}}*
- Max Drawdown:     *{{printf "%.2f" .Performance.Curve.MaxDrawdownPct}}%*
- Fees:             *{{printf "%.2f" .Performance.Fees}}*
- Half-Kelly:       *{{printf "%.2f" (mul100 .Performance.Kelly)}}%*

** Trade Distribution
| Outcome | Count |
|---------+-------|
| Wins    | {{.Performance.Wins}} |
| Losses  | {{.Performance.Losses}} |
| Closed  | {{.Performance.Closed}} |

{{- if .Notes }}
** Observations
{{- range .Notes }}
- {{.}}
{{- end }}
{{- end }}
`

// PrintSummary writes a plain-text report of the run.
func PrintSummary(w io.Writer, r RunSummary) {
	line := "--------------------------------------------------"
	fmt.Fprintln(w, "==================================================")
	if r.Mode == "paper" {
		fmt.Fprintln(w, " Paper Trading Session")
	} else {
		fmt.Fprintln(w, " Backtest Result")
	}
	fmt.Fprintln(w, "==================================================")

	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:         %s\n", r.RunID)
	}
	if r.Dataset != "" {
		fmt.Fprintf(w, "Dataset:        %s\n", r.Dataset)
	}
	fmt.Fprintf(w, "Tickers:        %v\n", r.Tickers)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Start:          %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:            %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Bars:           %d\n", r.Bars)
	fmt.Fprintf(w, "Cycles:         %d\n", r.Cycles)

	p := r.Performance
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Closed Trades:  %d\n", p.Closed)
	fmt.Fprintf(w, "Wins:           %d\n", p.Wins)
	fmt.Fprintf(w, "Losses:         %d\n", p.Losses)
	fmt.Fprintf(w, "Win Rate:       %.2f%%\n", p.WinRate*100)
	fmt.Fprintf(w, "Avg Gain:       %.2f%%\n", p.AvgGainPct)
	fmt.Fprintf(w, "Avg Loss:       %.2f%%\n", p.AvgLossPct)
	fmt.Fprintf(w, "Best / Worst:   %.2f%% / %.2f%%\n", p.BestPct, p.WorstPct)
	fmt.Fprintf(w, "Profit Factor:  %.2f\n", p.ProfitFactor)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, line)
	fmt.Fprintf(w, "Start Equity:   %.2f\n", r.StartEquity)
	fmt.Fprintf(w, "End Equity:     %.2f\n", r.EndEquity)
	fmt.Fprintf(w, "Net P/L:        %.2f\n", r.NetPL())
	fmt.Fprintf(w, "Fees:           %.2f\n", p.Fees)
	fmt.Fprintf(w, "Total Return:   %.2f%%\n", p.Curve.TotalReturnPct)
	fmt.Fprintf(w, "CAGR:           %.2f%%\n", p.Curve.CAGRPct)
	fmt.Fprintf(w, "Sharpe:         %.2f\n", p.Curve.Sharpe)
	fmt.Fprintf(w, "Max Drawdown:   %.2f%%\n", p.Curve.MaxDrawdownPct)

	if r.Status.Halted() {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "HALTED: daily_loss=%v max_drawdown=%v\n", r.Status.DailyLossExceeded, r.Status.MaxDrawdownExceeded)
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Skipped")
		fmt.Fprintln(w, line)
		for _, t := range r.Tickers {
			if n := r.Skipped[t]; n > 0 {
				fmt.Fprintf(w, "%-15s %d\n", t+":", n)
			}
		}
	}
	fmt.Fprintln(w, "==================================================")
}
