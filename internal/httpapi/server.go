// Package httpapi exposes the analysis pipeline, accuracy feedback loop, and
// health surfaces over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/marketvet/marketvet/internal/accuracy"
	"github.com/marketvet/marketvet/internal/health"
	"github.com/marketvet/marketvet/internal/metrics"
	"github.com/marketvet/marketvet/internal/pipeline"
)

// Analyzer runs one decision pipeline pass.
type Analyzer interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Recommendation, error)
}

// Config controls the listener.
type Config struct {
	Listen          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Server wires the HTTP routes to the pipeline components.
type Server struct {
	cfg      Config
	analyzer Analyzer
	tracker  *accuracy.Tracker
	monitor  *health.Monitor
	metrics  *metrics.Collector
	router   *mux.Router
}

// NewServer builds the router. tracker, monitor, and metrics may be nil; their
// routes then answer 503.
func NewServer(cfg Config, analyzer Analyzer, tracker *accuracy.Tracker, monitor *health.Monitor, mc *metrics.Collector) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		analyzer: analyzer,
		tracker:  tracker,
		monitor:  monitor,
		metrics:  mc,
		router:   mux.NewRouter(),
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/outcomes", s.handleOutcome).Methods(http.MethodPost)
	api.HandleFunc("/accuracy", s.handleAccuracy).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if mc != nil {
		s.router.Handle("/metrics", mc.Handler()).Methods(http.MethodGet)
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", s.cfg.Listen).Msg("http api listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Symbol == "" {
		s.writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	rec, err := s.analyzer.Run(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("symbol", req.Symbol).Msg("analysis failed")
		s.writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.writeError(w, http.StatusServiceUnavailable, "accuracy tracking disabled")
		return
	}
	var o accuracy.Outcome
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now()
	}
	if err := s.tracker.RecordOutcome(o); err != nil {
		var status = http.StatusBadRequest
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) handleAccuracy(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		s.writeError(w, http.StatusServiceUnavailable, "accuracy tracking disabled")
		return
	}
	s.writeJSON(w, http.StatusOK, s.tracker.Stats())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "UNKNOWN"})
		return
	}
	rep := s.monitor.Report()
	status := http.StatusOK
	if rep.Status == health.StatusFailed.String() {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, rep)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
