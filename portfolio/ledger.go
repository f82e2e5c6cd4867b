package portfolio

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	ErrPositionExists = errors.New("portfolio: position already open")
	ErrNoPosition     = errors.New("portfolio: no open position")
	ErrNegativeCash   = errors.New("portfolio: trade would make cash negative")
	ErrBadQuantity    = errors.New("portfolio: quantity must be positive")
	ErrBadPrice       = errors.New("portfolio: price must be positive and finite")
)

// Ledger is the single owned portfolio state. It is not safe for concurrent
// mutation; the execution engine serializes access to it.
//
// Every mutating method either applies completely or returns an error
// without touching the state. Version increases on every mutation.
type Ledger struct {
	initial float64
	cash    float64
	fees    float64

	positions map[string]*Position
	marks     map[string]float64
	trades    []Trade

	hwm        float64
	dailyStart float64
	dailyLoss  bool
	maxDD      bool

	cycle   int
	version uint64
}

// NewLedger starts a ledger holding only cash.
func NewLedger(initialCapital float64) (*Ledger, error) {
	if initialCapital <= 0 || math.IsNaN(initialCapital) || math.IsInf(initialCapital, 0) {
		return nil, fmt.Errorf("portfolio: initial capital must be positive, got %v", initialCapital)
	}
	return &Ledger{
		initial:    initialCapital,
		cash:       initialCapital,
		positions:  make(map[string]*Position),
		marks:      make(map[string]float64),
		hwm:        initialCapital,
		dailyStart: initialCapital,
	}, nil
}

func (l *Ledger) InitialCapital() float64 { return l.initial }
func (l *Ledger) Cash() float64           { return l.cash }
func (l *Ledger) Fees() float64           { return l.fees }
func (l *Ledger) HighWaterMark() float64  { return l.hwm }
func (l *Ledger) DailyStartEquity() float64 {
	return l.dailyStart
}
func (l *Ledger) DailyLossExceeded() bool   { return l.dailyLoss }
func (l *Ledger) MaxDrawdownExceeded() bool { return l.maxDD }
func (l *Ledger) Cycle() int                { return l.cycle }
func (l *Ledger) Version() uint64           { return l.version }
func (l *Ledger) TradeCount() int           { return len(l.trades) }
func (l *Ledger) OpenCount() int            { return len(l.positions) }

// Equity is cash plus every open position valued at its last mark. A
// position that was never marked is valued at its entry price.
func (l *Ledger) Equity() float64 {
	eq := l.cash
	for _, p := range l.positions {
		eq += p.MarketValue(l.markOf(p))
	}
	return eq
}

// UnrealizedPL sums the open positions' gross P/L at their marks.
func (l *Ledger) UnrealizedPL() float64 {
	var pl float64
	for _, p := range l.positions {
		pl += p.UnrealizedPL(l.markOf(p))
	}
	return pl
}

// RealizedPL sums the realized P/L in the trade log.
func (l *Ledger) RealizedPL() float64 {
	var pl float64
	for _, t := range l.trades {
		pl += t.PL()
	}
	return pl
}

// OpenQuantity returns the held quantity for ticker, zero when flat.
func (l *Ledger) OpenQuantity(ticker string) int64 {
	if p, ok := l.positions[ticker]; ok {
		return p.Quantity
	}
	return 0
}

// Position returns a copy of the open position for ticker.
func (l *Ledger) Position(ticker string) (Position, bool) {
	p, ok := l.positions[ticker]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns copies of the open positions ordered by ticker.
func (l *Ledger) Positions() []Position {
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// PositionViews returns the open positions with their marks and unrealized P/L.
func (l *Ledger) PositionViews() []PositionView {
	ps := l.Positions()
	out := make([]PositionView, 0, len(ps))
	for _, p := range ps {
		mark := l.markOf(&p)
		v := PositionView{
			Position:     p,
			Mark:         mark,
			MarketValue:  p.MarketValue(mark),
			UnrealizedPL: p.UnrealizedPL(mark),
		}
		if entry := p.MarketValue(p.EntryPrice); entry > 0 {
			v.UnrealizedPLPct = v.UnrealizedPL / entry * 100
		}
		out = append(out, v)
	}
	return out
}

// Trades returns a copy of the trade log in append order.
func (l *Ledger) Trades() []Trade {
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// RecentTrades returns up to n of the latest trades, oldest first.
func (l *Ledger) RecentTrades(n int) []Trade {
	if n <= 0 {
		return nil
	}
	start := len(l.trades) - n
	if start < 0 {
		start = 0
	}
	out := make([]Trade, len(l.trades)-start)
	copy(out, l.trades[start:])
	return out
}

// Mark returns the last price seen for ticker.
func (l *Ledger) Mark(ticker string) (float64, bool) {
	m, ok := l.marks[ticker]
	return m, ok
}

// SetMark records the latest price for ticker.
func (l *Ledger) SetMark(ticker string, price float64) error {
	if !validPrice(price) {
		return fmt.Errorf("%w: %s at %v", ErrBadPrice, ticker, price)
	}
	l.marks[ticker] = price
	l.version++
	return nil
}

// OpenRequest describes a new long position.
type OpenRequest struct {
	ID         string
	Ticker     string
	Quantity   int64
	Price      float64
	Fee        float64
	StopLoss   float64
	TakeProfit float64
	Time       time.Time
	Reason     Reason
}

// Open debits quantity*price plus fee, creates the position and appends a
// BUY trade.
func (l *Ledger) Open(req OpenRequest) (Trade, error) {
	if req.Quantity <= 0 {
		return Trade{}, ErrBadQuantity
	}
	if !validPrice(req.Price) {
		return Trade{}, fmt.Errorf("%w: %s at %v", ErrBadPrice, req.Ticker, req.Price)
	}
	if req.Fee < 0 {
		return Trade{}, fmt.Errorf("portfolio: negative fee %v", req.Fee)
	}
	if _, ok := l.positions[req.Ticker]; ok {
		return Trade{}, fmt.Errorf("%w: %s", ErrPositionExists, req.Ticker)
	}

	notional := float64(req.Quantity) * req.Price
	debit := notional + req.Fee
	if l.cash-debit < 0 {
		return Trade{}, fmt.Errorf("%w: need %.2f, have %.2f", ErrNegativeCash, debit, l.cash)
	}

	reason := req.Reason
	if reason == "" {
		reason = ReasonSignalEntry
	}

	l.cash -= debit
	l.fees += req.Fee
	l.positions[req.Ticker] = &Position{
		Ticker:     req.Ticker,
		Quantity:   req.Quantity,
		EntryPrice: req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		PeakPrice:  req.Price,
		CostBasis:  debit,
		OpenedAt:   req.Time,
	}
	l.marks[req.Ticker] = req.Price

	t := Trade{
		ID:       req.ID,
		Ticker:   req.Ticker,
		Side:     SideBuy,
		Quantity: req.Quantity,
		Price:    req.Price,
		Fee:      req.Fee,
		Time:     req.Time,
		Reason:   reason,
	}
	l.trades = append(l.trades, t)
	l.version++
	return t, nil
}

// CloseRequest ends an open position in full.
type CloseRequest struct {
	ID     string
	Ticker string
	Side   Side
	Price  float64
	Fee    float64
	Time   time.Time
	Reason Reason
}

// Close credits quantity*price minus fee, removes the position and appends a
// closing trade carrying the gross realized P/L.
func (l *Ledger) Close(req CloseRequest) (Trade, error) {
	p, ok := l.positions[req.Ticker]
	if !ok {
		return Trade{}, fmt.Errorf("%w: %s", ErrNoPosition, req.Ticker)
	}
	if !validPrice(req.Price) {
		return Trade{}, fmt.Errorf("%w: %s at %v", ErrBadPrice, req.Ticker, req.Price)
	}
	if req.Fee < 0 {
		return Trade{}, fmt.Errorf("portfolio: negative fee %v", req.Fee)
	}
	if req.Side == SideBuy || req.Side == "" {
		return Trade{}, fmt.Errorf("portfolio: invalid closing side %q", req.Side)
	}

	credit := float64(p.Quantity)*req.Price - req.Fee
	if l.cash+credit < 0 {
		return Trade{}, fmt.Errorf("%w: fee %.2f exceeds proceeds", ErrNegativeCash, req.Fee)
	}

	pl := p.UnrealizedPL(req.Price)

	l.cash += credit
	l.fees += req.Fee
	delete(l.positions, req.Ticker)
	l.marks[req.Ticker] = req.Price

	t := Trade{
		ID:         req.ID,
		Ticker:     req.Ticker,
		Side:       req.Side,
		Quantity:   p.Quantity,
		Price:      req.Price,
		Fee:        req.Fee,
		Time:       req.Time,
		RealizedPL: &pl,
		Reason:     req.Reason,
		EntryPrice: p.EntryPrice,
	}
	l.trades = append(l.trades, t)
	l.version++
	return t, nil
}

// RaiseStop moves the stop for ticker up to stop. A lower value is ignored,
// so stops only ever ratchet upward. It also tracks the peak price.
func (l *Ledger) RaiseStop(ticker string, peak, stop float64) bool {
	p, ok := l.positions[ticker]
	if !ok {
		return false
	}
	changed := false
	if peak > p.PeakPrice {
		p.PeakPrice = peak
		changed = true
	}
	if stop > p.StopLoss {
		p.StopLoss = stop
		changed = true
	}
	if changed {
		l.version++
	}
	return changed
}

// BeginCycle starts a new trading day or bar: the daily loss flag is cleared
// and the daily starting equity is the current equity.
func (l *Ledger) BeginCycle() {
	l.cycle++
	l.dailyStart = l.Equity()
	l.dailyLoss = false
	l.version++
}

// Observe records a valuation: the high-water mark only ever rises.
func (l *Ledger) Observe(equity float64) {
	if equity > l.hwm {
		l.hwm = equity
	}
	l.version++
}

// SetBreakers stores the circuit-breaker results of a valuation. The
// drawdown flag is sticky: false never clears it, only ClearDrawdownHalt does.
func (l *Ledger) SetBreakers(dailyLoss, maxDrawdown bool) {
	l.dailyLoss = dailyLoss
	if maxDrawdown {
		l.maxDD = true
	}
	l.version++
}

// ClearDrawdownHalt is the operator re-enable for a drawdown halt.
func (l *Ledger) ClearDrawdownHalt() {
	l.maxDD = false
	l.version++
}

// Clone deep-copies the ledger so a what-if run cannot touch the original.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.positions = make(map[string]*Position, len(l.positions))
	for k, p := range l.positions {
		cp := *p
		c.positions[k] = &cp
	}
	c.marks = make(map[string]float64, len(l.marks))
	for k, v := range l.marks {
		c.marks[k] = v
	}
	c.trades = make([]Trade, len(l.trades))
	copy(c.trades, l.trades)
	return &c
}

// Check verifies the ledger's invariants.
func (l *Ledger) Check() error {
	if l.cash < 0 {
		return fmt.Errorf("%w: cash %.2f", ErrNegativeCash, l.cash)
	}
	if l.hwm < l.initial {
		return fmt.Errorf("portfolio: high-water mark %.2f below initial capital %.2f", l.hwm, l.initial)
	}
	for k, p := range l.positions {
		if k != p.Ticker {
			return fmt.Errorf("portfolio: position keyed %q holds %q", k, p.Ticker)
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("%w: %s holds %d", ErrBadQuantity, k, p.Quantity)
		}
		if !validPrice(p.EntryPrice) {
			return fmt.Errorf("%w: %s entry %v", ErrBadPrice, k, p.EntryPrice)
		}
	}
	return nil
}

func (l *Ledger) markOf(p *Position) float64 {
	if m, ok := l.marks[p.Ticker]; ok {
		return m
	}
	return p.EntryPrice
}

func validPrice(p float64) bool {
	return p > 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}
