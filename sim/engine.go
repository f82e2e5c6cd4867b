// Package sim is the execution engine shared by paper trading and backtests.
// It owns the portfolio ledger, asks the risk engine for a decision on every
// signal and applies the result atomically.
package sim

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/internal/id"
	"github.com/rustyeddy/papertrader/journal"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/risk"
)

// Engine applies signals to a ledger. State changes happen under mu; the
// journal and listeners run after mu is released, in mutation order, so disk
// writes never block readers such as the status server. Listeners must not
// call the engine's mutating methods.
type Engine struct {
	mu        sync.Mutex
	pub       sync.Mutex // orders journal writes and listener calls
	cfg       *risk.Config
	ledger    *portfolio.Ledger
	feeRate   float64
	journal   journal.Journal
	listeners []Listener
	log       zerolog.Logger
	ids       *id.Generator

	journalErrors atomic.Int64
}

type Option func(*Engine)

// WithJournal sends every trade and valuation to j.
func WithJournal(j journal.Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithFeeRate charges rate * notional on every fill.
func WithFeeRate(rate float64) Option {
	return func(e *Engine) { e.feeRate = rate }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithListener(l Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// WithIDs replaces the trade ID generator, e.g. with a seeded one.
func WithIDs(g *id.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// NewEngine starts an engine with a fresh ledger holding capital in cash.
func NewEngine(cfg *risk.Config, capital float64, opts ...Option) (*Engine, error) {
	l, err := portfolio.NewLedger(capital)
	if err != nil {
		return nil, err
	}
	return NewEngineFromState(cfg, l, opts...)
}

// NewEngineFromState resumes from an existing ledger, which the engine then
// owns. Pass a clone to keep the original untouched.
func NewEngineFromState(cfg *risk.Config, l *portfolio.Ledger, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sim: risk config is required")
	}
	if l == nil {
		return nil, fmt.Errorf("sim: ledger is required")
	}
	e := &Engine{
		cfg:     cfg,
		ledger:  l,
		journal: journal.Discard,
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.feeRate < 0 || e.feeRate >= 1 {
		return nil, fmt.Errorf("sim: fee rate %v must be in [0,1)", e.feeRate)
	}
	if e.ids == nil {
		e.ids = id.New()
	}
	return e, nil
}

func (e *Engine) Config() *risk.Config { return e.cfg }

func (e *Engine) FeeRate() float64 { return e.feeRate }

// ExecuteTrade asks the risk engine what to do with sig at price and applies
// the decision. Only an executed trade changes the ledger, including the
// ticker's mark; NoAction and Rejected leave it untouched. Rejections are
// results, not errors; only an invalid price or a malformed signal returns an
// error.
func (e *Engine) ExecuteTrade(ticker string, sig risk.Signal, price float64, ts time.Time) (ExecutionResult, error) {
	e.mu.Lock()
	res, events, err := e.executeLocked(ticker, sig, price, ts)
	e.release(events)
	return res, err
}

func (e *Engine) executeLocked(ticker string, sig risk.Signal, price float64, ts time.Time) (ExecutionResult, []event, error) {
	res := ExecutionResult{Ticker: ticker, Signal: sig, Price: price, Time: ts}

	d, err := risk.Evaluate(e.ledger, ticker, sig, price, e.cfg)
	if err != nil {
		return res, nil, err
	}
	res.Decision = d

	switch d := d.(type) {
	case risk.NoAction:
		res.Status = StatusNoAction
		res.Reason = d.Reason
		return res, nil, nil

	case risk.Rejected:
		res = e.reject(res, d.Reason)
		return res, []event{{rejected: &res}}, nil

	case risk.Open:
		fee := e.fee(d.Quantity, price)
		required := float64(d.Quantity)*price + fee
		if cash := e.ledger.Cash(); required > cash {
			reason := (&risk.InsufficientCashError{Required: required, Available: cash}).Error()
			res.Decision = risk.Rejected{Reason: reason}
			res = e.reject(res, reason)
			return res, []event{{rejected: &res}}, nil
		}

		t, err := e.ledger.Open(portfolio.OpenRequest{
			ID:         e.ids.At(ts),
			Ticker:     ticker,
			Quantity:   d.Quantity,
			Price:      price,
			Fee:        fee,
			StopLoss:   d.StopLoss,
			TakeProfit: d.TakeProfit,
			Time:       ts,
			Reason:     portfolio.ReasonSignalEntry,
		})
		if err != nil {
			return res, nil, fmt.Errorf("sim: open %s: %w", ticker, err)
		}
		e.log.Info().
			Str("ticker", ticker).
			Int64("qty", t.Quantity).
			Float64("price", price).
			Float64("stop", d.StopLoss).
			Float64("planned_risk", d.PlannedRisk).
			Float64("risk_pct", risk.RiskPct(d.PlannedRisk, e.ledger.Equity())).
			Float64("rr", risk.RR(price, d.StopLoss, d.TakeProfit)).
			Float64("cash", e.ledger.Cash()).
			Msg("position opened")

		res.Status = StatusExecuted
		res.Trade = &t
		return res, []event{{trade: &t}}, nil

	case risk.Close:
		t, err := e.closeLocked(ticker, price, ts, portfolio.SideSell, d.Reason)
		if err != nil {
			return res, nil, err
		}
		res.Status = StatusExecuted
		res.Trade = &t
		return res, []event{{trade: &t}}, nil
	}

	return res, nil, fmt.Errorf("sim: unhandled decision %T", d)
}

func (e *Engine) reject(res ExecutionResult, reason string) ExecutionResult {
	res.Status = StatusRejected
	res.Reason = reason
	e.log.Debug().Str("ticker", res.Ticker).Str("signal", string(res.Signal)).Str("reason", reason).Msg("signal rejected")
	return res
}

func (e *Engine) fee(qty int64, price float64) float64 {
	return float64(qty) * price * e.feeRate
}

func (e *Engine) closeLocked(ticker string, price float64, ts time.Time, side portfolio.Side, reason portfolio.Reason) (portfolio.Trade, error) {
	qty := e.ledger.OpenQuantity(ticker)
	t, err := e.ledger.Close(portfolio.CloseRequest{
		ID:     e.ids.At(ts),
		Ticker: ticker,
		Side:   side,
		Price:  price,
		Fee:    e.fee(qty, price),
		Time:   ts,
		Reason: reason,
	})
	if err != nil {
		return portfolio.Trade{}, fmt.Errorf("sim: close %s: %w", ticker, err)
	}
	e.log.Info().
		Str("ticker", ticker).
		Str("side", string(side)).
		Str("reason", string(reason)).
		Int64("qty", t.Quantity).
		Float64("price", price).
		Float64("pl", t.PL()).
		Float64("cash", e.ledger.Cash()).
		Msg("position closed")
	return t, nil
}

// CheckStopLosses scans open positions in ticker order against prices.
// Trailing stops ratchet up first; a price at or below the stop closes the
// position with side STOP, a price at or above the take-profit closes it
// with side CLOSE. Tickers without a valid price are skipped. Calling it
// twice with the same prices closes nothing the second time.
func (e *Engine) CheckStopLosses(prices map[string]float64, ts time.Time) []portfolio.Trade {
	e.mu.Lock()
	var out []portfolio.Trade
	for _, p := range e.ledger.Positions() {
		px, ok := prices[p.Ticker]
		if !ok {
			continue
		}
		if err := e.ledger.SetMark(p.Ticker, px); err != nil {
			e.log.Warn().Str("ticker", p.Ticker).Float64("price", px).Msg("skipping stop check on invalid price")
			continue
		}

		if e.cfg.TrailingStopPct > 0 && px > p.PeakPrice {
			if e.ledger.RaiseStop(p.Ticker, px, e.cfg.TrailingStop(px)) {
				p, _ = e.ledger.Position(p.Ticker)
			}
		}

		var (
			side   portfolio.Side
			reason portfolio.Reason
		)
		switch {
		case p.StopHit(px):
			side, reason = portfolio.SideStop, portfolio.ReasonStopLoss
		case p.TakeProfitHit(px):
			side, reason = portfolio.SideClose, portfolio.ReasonTakeProfit
		default:
			continue
		}

		t, err := e.closeLocked(p.Ticker, px, ts, side, reason)
		if err != nil {
			e.log.Error().Err(err).Str("ticker", p.Ticker).Msg("stop close failed")
			continue
		}
		out = append(out, t)
	}
	e.release(tradeEvents(out))
	return out
}

// BeginCycle opens a new trading day or bar: it clears the daily loss
// breaker and takes the current equity as the day's starting equity.
func (e *Engine) BeginCycle(ts time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ledger.BeginCycle()
	e.log.Debug().
		Int("cycle", e.ledger.Cycle()).
		Time("at", ts).
		Float64("equity", e.ledger.DailyStartEquity()).
		Msg("cycle started")
}

// Revalue marks the given prices, raises the high-water mark, evaluates both
// circuit breakers and journals the valuation.
func (e *Engine) Revalue(prices map[string]float64, ts time.Time) Snapshot {
	e.mu.Lock()

	for ticker, px := range prices {
		if err := e.ledger.SetMark(ticker, px); err != nil {
			e.log.Warn().Str("ticker", ticker).Float64("price", px).Msg("ignoring invalid mark")
		}
	}

	eq := e.ledger.Equity()
	e.ledger.Observe(eq)

	wasDaily, wasDD := e.ledger.DailyLossExceeded(), e.ledger.MaxDrawdownExceeded()
	st := e.cfg.Breakers(eq, e.ledger.DailyStartEquity(), e.ledger.HighWaterMark())
	// The daily flag holds until the next cycle, the drawdown flag until an
	// operator reset.
	e.ledger.SetBreakers(wasDaily || st.DailyLossExceeded, st.MaxDrawdownExceeded)

	if !wasDaily && e.ledger.DailyLossExceeded() {
		e.log.Warn().Float64("daily_return", st.DailyReturn).Float64("equity", eq).Msg("daily loss limit hit, new positions halted")
	}
	if !wasDD && e.ledger.MaxDrawdownExceeded() {
		e.log.Warn().Float64("drawdown", st.Drawdown).Float64("equity", eq).Msg("max drawdown hit, new positions halted")
	}

	s := e.snapshotLocked(ts)
	e.release([]event{{valuation: &s}})
	return s
}

func (e *Engine) snapshotLocked(ts time.Time) Snapshot {
	eq := e.ledger.Equity()
	return Snapshot{
		Time:                ts,
		Cycle:               e.ledger.Cycle(),
		Cash:                e.ledger.Cash(),
		Equity:              eq,
		HighWaterMark:       e.ledger.HighWaterMark(),
		Drawdown:            risk.Drawdown(e.ledger.HighWaterMark(), eq),
		DailyReturn:         risk.DailyReturn(e.ledger.DailyStartEquity(), eq),
		DailyLossExceeded:   e.ledger.DailyLossExceeded(),
		MaxDrawdownExceeded: e.ledger.MaxDrawdownExceeded(),
		OpenPositions:       e.ledger.OpenCount(),
	}
}

// ResetDrawdownHalt is the operator action that re-enables trading after a
// drawdown halt. The high-water mark is kept, so a drawdown that still holds
// trips the breaker again at the next valuation.
func (e *Engine) ResetDrawdownHalt() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ledger.MaxDrawdownExceeded() {
		e.ledger.ClearDrawdownHalt()
		e.log.Warn().Float64("hwm", e.ledger.HighWaterMark()).Msg("drawdown halt reset by operator")
	}
}

// ClosePosition closes ticker at its last mark with side CLOSE.
func (e *Engine) ClosePosition(ticker string, reason portfolio.Reason, ts time.Time) (portfolio.Trade, error) {
	e.mu.Lock()
	px, ok := e.ledger.Mark(ticker)
	if !ok || e.ledger.OpenQuantity(ticker) == 0 {
		e.mu.Unlock()
		return portfolio.Trade{}, fmt.Errorf("sim: close %s: %w", ticker, portfolio.ErrNoPosition)
	}
	t, err := e.closeLocked(ticker, px, ts, portfolio.SideClose, reason)
	if err != nil {
		e.mu.Unlock()
		return portfolio.Trade{}, err
	}
	e.release([]event{{trade: &t}})
	return t, nil
}

// CloseAll closes every open position at its last mark with side CLOSE.
func (e *Engine) CloseAll(reason portfolio.Reason, ts time.Time) ([]portfolio.Trade, error) {
	e.mu.Lock()
	var (
		out []portfolio.Trade
		err error
	)
	for _, p := range e.ledger.Positions() {
		px, ok := e.ledger.Mark(p.Ticker)
		if !ok {
			px = p.EntryPrice
		}
		var t portfolio.Trade
		if t, err = e.closeLocked(p.Ticker, px, ts, portfolio.SideClose, reason); err != nil {
			break
		}
		out = append(out, t)
	}
	e.release(tradeEvents(out))
	return out, err
}

// Status is the reporter's view of the portfolio.
func (e *Engine) Status() report.Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return report.StatusOf(e.ledger)
}

// Snapshot values the portfolio at the last marks without side effects.
func (e *Engine) Snapshot(ts time.Time) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(ts)
}

func (e *Engine) Trades() []portfolio.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Trades()
}

func (e *Engine) RecentTrades(n int) []portfolio.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.RecentTrades(n)
}

func (e *Engine) Positions() []portfolio.PositionView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.PositionViews()
}

// State returns a deep copy of the ledger.
func (e *Engine) State() *portfolio.Ledger {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Clone()
}

// JournalErrors counts journal writes that failed.
func (e *Engine) JournalErrors() int {
	return int(e.journalErrors.Load())
}

// OpenTickers lists tickers with an open position, sorted.
func (e *Engine) OpenTickers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ps := e.ledger.Positions()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Ticker
	}
	return out
}

type event struct {
	trade     *portfolio.Trade
	rejected  *ExecutionResult
	valuation *Snapshot
}

func tradeEvents(ts []portfolio.Trade) []event {
	out := make([]event, len(ts))
	for i := range ts {
		out[i] = event{trade: &ts[i]}
	}
	return out
}

// release hands events from the locked section to the journal and
// listeners. It takes pub before dropping mu so events leave in the order
// the mutations happened.
func (e *Engine) release(events []event) {
	if len(events) == 0 {
		e.mu.Unlock()
		return
	}
	e.pub.Lock()
	e.mu.Unlock()
	defer e.pub.Unlock()

	e.record(events)
	e.notify(events)
}

// record writes trades and valuations to the journal. Failures are counted
// and never roll back state.
func (e *Engine) record(events []event) {
	for _, ev := range events {
		var err error
		switch {
		case ev.trade != nil:
			if err = e.journal.RecordTrade(journal.FromTrade(*ev.trade)); err != nil {
				e.log.Error().Err(err).Str("trade_id", ev.trade.ID).Msg("journal trade")
			}
		case ev.valuation != nil:
			if err = e.journal.RecordEquity(ev.valuation.record()); err != nil {
				e.log.Error().Err(err).Msg("journal equity")
			}
		}
		if err != nil {
			e.journalErrors.Add(1)
		}
	}
}

func (e *Engine) notify(events []event) {
	if len(e.listeners) == 0 {
		return
	}
	for _, ev := range events {
		for _, l := range e.listeners {
			switch {
			case ev.trade != nil:
				l.OnTrade(*ev.trade)
			case ev.rejected != nil:
				l.OnRejected(ev.rejected.Ticker, ev.rejected.Reason)
			case ev.valuation != nil:
				l.OnValuation(*ev.valuation)
			}
		}
	}
}
