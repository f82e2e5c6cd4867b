// Package metrics provides Prometheus instrumentation for the trading engine.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/risk"
	"github.com/rustyeddy/papertrader/sim"
)

const namespace = "papertrader"

// Recorder is a sim.Listener that exports engine activity. Each Recorder
// owns its registry so several engines (or tests) never collide.
type Recorder struct {
	reg *prometheus.Registry

	TradesTotal     *prometheus.CounterVec
	RejectionsTotal *prometheus.CounterVec
	RealizedPL      prometheus.Counter
	RealizedLoss    prometheus.Counter
	Fees            prometheus.Counter
	Equity          prometheus.Gauge
	Cash            prometheus.Gauge
	HighWaterMark   prometheus.Gauge
	Drawdown        prometheus.Gauge
	OpenPositions   prometheus.Gauge
	Halted          *prometheus.GaugeVec
	Cycle           prometheus.Gauge

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

var _ sim.Listener = (*Recorder)(nil)

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades executed, by side and reason",
		}, []string{"side", "reason"}),
		RejectionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Signals rejected by the risk engine, by reason",
		}, []string{"reason"}),
		RealizedPL: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_profit_total",
			Help:      "Gross realized profit of winning closes",
		}),
		RealizedLoss: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_loss_total",
			Help:      "Gross realized loss of losing closes, as a positive amount",
		}),
		Fees: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fees_total",
			Help:      "Transaction costs paid",
		}),
		Equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "equity",
			Help:      "Mark-to-market equity at the last valuation",
		}),
		Cash: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cash",
			Help:      "Cash at the last valuation",
		}),
		HighWaterMark: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "high_water_mark",
			Help:      "Highest equity seen",
		}),
		Drawdown: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "drawdown_ratio",
			Help:      "Current drawdown from the high-water mark",
		}),
		OpenPositions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Number of open positions",
		}),
		Halted: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_tripped",
			Help:      "1 while a circuit breaker blocks new positions",
		}, []string{"breaker"}),
		Cycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle",
			Help:      "Current trading cycle",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"method", "path"}),
	}
}

// Registry exposes the recorder's registry, e.g. for testutil.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) OnTrade(t portfolio.Trade) {
	r.TradesTotal.WithLabelValues(string(t.Side), string(t.Reason)).Inc()
	r.Fees.Add(t.Fee)
	switch pl := t.PL(); {
	case pl > 0:
		r.RealizedPL.Add(pl)
	case pl < 0:
		r.RealizedLoss.Add(-pl)
	}
}

func (r *Recorder) OnRejected(_ string, reason string) {
	r.RejectionsTotal.WithLabelValues(reasonLabel(reason)).Inc()
}

func (r *Recorder) OnValuation(s sim.Snapshot) {
	r.Equity.Set(s.Equity)
	r.Cash.Set(s.Cash)
	r.HighWaterMark.Set(s.HighWaterMark)
	r.Drawdown.Set(s.Drawdown)
	r.OpenPositions.Set(float64(s.OpenPositions))
	r.Cycle.Set(float64(s.Cycle))
	r.Halted.WithLabelValues("daily_loss").Set(b2f(s.DailyLossExceeded))
	r.Halted.WithLabelValues("max_drawdown").Set(b2f(s.MaxDrawdownExceeded))
}

// Handler serves the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Middleware records request counts and latency. pathOf maps a request to a
// low-cardinality label such as the route pattern.
func (r *Recorder) Middleware(pathOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, req)

			path := req.URL.Path
			if pathOf != nil {
				if p := pathOf(req); p != "" {
					path = p
				}
			}
			r.HTTPRequestsTotal.WithLabelValues(req.Method, path, strconv.Itoa(wrapped.status)).Inc()
			r.HTTPRequestDuration.WithLabelValues(req.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// reasonLabel folds free-text rejection reasons into a bounded label set.
func reasonLabel(reason string) string {
	switch reason {
	case risk.ReasonPositionOpen, risk.ReasonNoPosition, risk.ReasonHalted, risk.ReasonTooSmall:
		return reason
	}
	if strings.HasPrefix(reason, "insufficient cash") {
		return "insufficient cash"
	}
	return "other"
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
