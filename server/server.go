// Package server exposes the engine's read-only status surface and the
// operator actions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rustyeddy/papertrader/metrics"
	"github.com/rustyeddy/papertrader/portfolio"
	"github.com/rustyeddy/papertrader/report"
	"github.com/rustyeddy/papertrader/sim"
)

// Engine is what the server reads from and acts on. *sim.Engine satisfies it.
type Engine interface {
	Status() report.Status
	Trades() []portfolio.Trade
	RecentTrades(n int) []portfolio.Trade
	Positions() []portfolio.PositionView
	ResetDrawdownHalt()
	ClosePosition(ticker string, reason portfolio.Reason, ts time.Time) (portfolio.Trade, error)
}

var _ Engine = (*sim.Engine)(nil)

type Server struct {
	engine  Engine
	metrics *metrics.Recorder
	log     zerolog.Logger
	now     func() time.Time
	router  chi.Router
}

// New builds the router. rec may be nil, in which case /metrics is not served.
func New(e Engine, rec *metrics.Recorder, log zerolog.Logger) *Server {
	s := &Server{
		engine:  e,
		metrics: rec,
		log:     log,
		now:     time.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	if rec != nil {
		r.Use(rec.Middleware(routePattern))
		r.Handle("/metrics", rec.Handler())
	}

	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Get("/trades", s.trades)
	r.Get("/positions", s.positions)
	r.Post("/positions/{ticker}/close", s.closePosition)
	r.Post("/halt/reset", s.resetHalt)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("status server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.log.Info().Msg("status server shutting down")
	return srv.Shutdown(shutdown)
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Status())
}

// trades returns the trade log in execution order, or the last n trades
// when ?n= is given.
func (s *Server) trades(w http.ResponseWriter, r *http.Request) {
	var ts []portfolio.Trade
	if q := r.URL.Query().Get("n"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, "n must be a non-negative integer", http.StatusBadRequest)
			return
		}
		ts = s.engine.RecentTrades(n)
	} else {
		ts = s.engine.Trades()
	}
	if ts == nil {
		ts = []portfolio.Trade{}
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) positions(w http.ResponseWriter, _ *http.Request) {
	ps := s.engine.Positions()
	if ps == nil {
		ps = []portfolio.PositionView{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) closePosition(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	t, err := s.engine.ClosePosition(ticker, portfolio.ReasonManual, s.now())
	if err != nil {
		if errors.Is(err, portfolio.ErrNoPosition) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Warn().Str("ticker", ticker).Str("trade_id", t.ID).Msg("position closed by operator")
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) resetHalt(w http.ResponseWriter, _ *http.Request) {
	s.engine.ResetDrawdownHalt()
	writeJSON(w, http.StatusOK, s.engine.Status())
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

// routePattern labels metrics by route so ticker paths do not explode the
// label set.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
