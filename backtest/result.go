package backtest

import (
	"sort"
	"time"

	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/risk"
)

// Result is the outcome of one replay.
type Result struct {
	Start  time.Time
	End    time.Time
	Bars   int
	Cycles int

	Risk    risk.Params
	FeeRate float64
	FillAt  string

	StartEquity float64
	EndEquity   float64

	Status         report.Status
	Performance    report.Performance
	Reconciliation report.Reconciliation
	Equity         []report.EquityPoint
	Trades         []portfolio.Trade

	// Skipped counts bars per ticker not traded because of an invalid price or
	// a failed signal fetch.
	Skipped map[string]int
}

// Tickers lists every ticker that traded, sorted.
func (r Result) Tickers() []string {
	seen := make(map[string]bool)
	for _, t := range r.Trades {
		seen[t.Ticker] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Summary converts the result into a run summary. The caller fills RunID,
// Dataset and OrgPath.
func (r Result) Summary() report.RunSummary {
	s := report.RunSummary{
		Created:     time.Now().UTC(),
		Mode:        "backtest",
		Tickers:     r.Tickers(),
		Risk:        r.Risk,
		FeeRate:     r.FeeRate,
		FillAt:      r.FillAt,
		Start:       r.Start,
		End:         r.End,
		Bars:        r.Bars,
		Cycles:      r.Cycles,
		StartEquity: r.StartEquity,
		EndEquity:   r.EndEquity,
		Status:      r.Status,
		Performance: r.Performance,
		Skipped:     r.Skipped,
	}
	if err := r.Reconciliation.Err(); err != nil {
		s.Notes = append(s.Notes, err.Error())
	}
	return s
}
