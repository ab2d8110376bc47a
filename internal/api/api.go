// Package api provides the HTTP sidecar server for RoomPipe.
//
// It exposes a liveness endpoint, Prometheus metrics, and a read-only
// view of the booking ledger. The booking flow itself runs entirely
// over Telegram; this server is for operators.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/RoomPipe/internal/models"
	"github.com/BTreeMap/RoomPipe/internal/observability"
	"github.com/BTreeMap/RoomPipe/internal/store"
)

// Timeouts for the HTTP server.
const (
	DefaultAddr            = ":3000"
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr   string
	Ledger store.Store
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithLedger attaches the booking ledger backing GET /bookings.
func WithLedger(ledger store.Store) Option {
	return func(o *Opts) {
		o.Ledger = ledger
	}
}

// Server is the operator-facing HTTP server.
type Server struct {
	srv    *http.Server
	ledger store.Store
}

// NewServer creates the API server, applying any provided options.
func NewServer(opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	slog.Debug("API.NewServer options set", "addr", addr, "ledger_set", cfg.Ledger != nil)

	s := &Server{ledger: cfg.Ledger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleLiveness)
	r.Method(http.MethodGet, "/metrics", observability.MetricsHandler())
	r.Get("/bookings", s.handleListBookings)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	return s
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start listens and serves until Stop is called. It blocks.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	slog.Info("API server stopped")
	return nil
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(w, "RoomPipe is running")
}

func (s *Server) handleListBookings(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		http.Error(w, "booking ledger not configured", http.StatusServiceUnavailable)
		return
	}
	records, err := s.ledger.ListBookings()
	if err != nil {
		slog.Error("API ListBookings failed", "error", err)
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []models.BookingRecord{}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(records); err != nil {
		slog.Error("API ListBookings encode failed", "error", err)
	}
}
