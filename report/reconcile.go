package report

import (
	"fmt"

	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/shopspring/decimal"
)

// Tolerance for float noise when reconciling, in currency units.
var reconcileTolerance = decimal.New(1, -4)

// Reconciliation checks that the trade log explains the equity change:
//
//	realized + unrealized - fees == final equity - initial capital
type Reconciliation struct {
	Realized     decimal.Decimal
	Unrealized   decimal.Decimal
	Fees         decimal.Decimal
	EquityChange decimal.Decimal
	Diff         decimal.Decimal
}

func (r Reconciliation) OK() bool {
	return r.Diff.Abs().LessThanOrEqual(reconcileTolerance)
}

func (r Reconciliation) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("report: ledger does not reconcile: realized %s unrealized %s fees %s equity change %s (diff %s)",
		r.Realized.StringFixed(4), r.Unrealized.StringFixed(4), r.Fees.StringFixed(4),
		r.EquityChange.StringFixed(4), r.Diff.StringFixed(6))
}

// Reconcile sums the trade log in decimal arithmetic. unrealized is the
// open positions' gross P&L at final marks; pass zero for a flat book.
func Reconcile(initial, finalEquity, unrealized float64, trades []portfolio.Trade) Reconciliation {
	r := Reconciliation{
		Unrealized:   decimal.NewFromFloat(unrealized),
		EquityChange: decimal.NewFromFloat(finalEquity).Sub(decimal.NewFromFloat(initial)),
	}
	for _, t := range trades {
		r.Fees = r.Fees.Add(decimal.NewFromFloat(t.Fee))
		if t.RealizedPL != nil {
			r.Realized = r.Realized.Add(decimal.NewFromFloat(*t.RealizedPL))
		}
	}
	r.Diff = r.Realized.Add(r.Unrealized).Sub(r.Fees).Sub(r.EquityChange)
	return r
}

// ReconcileLedger reconciles a ledger against its own trade log.
func ReconcileLedger(l *portfolio.Ledger) Reconciliation {
	return Reconcile(l.InitialCapital(), l.Equity(), l.UnrealizedPL(), l.Trades())
}
