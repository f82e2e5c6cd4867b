package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block for a trading
// journal: facts in a PROPERTIES drawer, narrative headings left blank.
func FormatTradeOrg(t TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s x%d (%s)\n", t.Side, t.Ticker, t.Quantity, shortID(t.TradeID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":TICKER: %s\n", t.Ticker)
	fmt.Fprintf(&b, ":SIDE: %s\n", t.Side)
	fmt.Fprintf(&b, ":QUANTITY: %d\n", t.Quantity)
	fmt.Fprintf(&b, ":PRICE: %.4f\n", t.Price)
	fmt.Fprintf(&b, ":FEE: %.2f\n", t.Fee)
	fmt.Fprintf(&b, ":TIME: %s\n", t.Time.UTC().Format(time.RFC3339))
	if t.RealizedPL != nil {
		fmt.Fprintf(&b, ":ENTRY_PRICE: %.4f\n", t.EntryPrice)
		fmt.Fprintf(&b, ":REALIZED_PL: %.2f\n", *t.RealizedPL)
	}
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n\n")

	if t.RealizedPL == nil {
		b.WriteString("*** Thesis\n- \n\n")
		b.WriteString("*** Execution\n- \n")
	} else {
		b.WriteString("*** Review\n- \n")
	}
	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[:8]
}
