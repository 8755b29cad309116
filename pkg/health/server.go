package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-hq/speedrun-intents/pkg/ledger"
	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/solver"
)

// Solver is the part of the solver engine the control server drives
type Solver interface {
	IsRunning() bool
	IsPaused() bool
	Pause()
	Resume()
	Status(ctx context.Context) (*solver.Status, error)
	ActiveIntents(ctx context.Context) ([]solver.BidState, error)
	IntentStatus(ctx context.Context, chainID int, intentID *big.Int) (*solver.IntentStatus, error)
	FinalizeAuction(ctx context.Context, chainID int, intentID *big.Int) (*models.Receipt, error)
	ResetCircuit(chainID int) error
}

// Server represents the solver health and control HTTP server
type Server struct {
	port            string
	solver          Solver
	metricsAPIKey   string
	shutdownTimeout time.Duration
	logger          logger.Logger
}

// NewServer creates a new health check server
func NewServer(port string, s Solver, metricsAPIKey string, shutdownTimeout time.Duration, logger logger.Logger) *Server {
	return &Server{
		port:            port,
		solver:          s,
		metricsAPIKey:   metricsAPIKey,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/ready", s.handleReady)
	r.Get("/status", s.handleStatus)
	r.Get("/active-intents", s.handleActiveIntents)
	r.Get("/intent-status/{chainId}/{intentId}", s.handleIntentStatus)
	r.Post("/finalize-auction/{chainId}/{intentId}", s.handleFinalizeAuction)
	r.Post("/stop", s.handlePause)
	r.Post("/start", s.handleResume)
	r.Post("/circuit/reset", s.handleCircuitReset)

	// Expose Prometheus metrics with API key authentication
	r.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))
	return r
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting health and control server on port %s", s.port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("health server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if !s.solver.IsRunning() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Solver not running"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.solver.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleActiveIntents(w http.ResponseWriter, r *http.Request) {
	active, err := s.solver.ActiveIntents(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if active == nil {
		active = []solver.BidState{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"count": len(active), "intents": active})
}

func (s *Server) handleIntentStatus(w http.ResponseWriter, r *http.Request) {
	chainID, intentID, ok := s.intentParams(w, r)
	if !ok {
		return
	}
	status, err := s.solver.IntentStatus(r.Context(), chainID, intentID)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleFinalizeAuction(w http.ResponseWriter, r *http.Request) {
	chainID, intentID, ok := s.intentParams(w, r)
	if !ok {
		return
	}
	receipt, err := s.solver.FinalizeAuction(r.Context(), chainID, intentID)
	if err != nil {
		status := http.StatusBadGateway
		if ledger.IsRevert(err) {
			status = http.StatusConflict
		}
		s.writeError(w, status, err)
		return
	}
	resp := map[string]interface{}{
		"success":   true,
		"intentId":  intentID.String(),
		"chainId":   chainID,
		"handedOff": receipt == nil,
	}
	if receipt != nil {
		resp["transactionHash"] = receipt.TxHash.Hex()
		resp["blockNumber"] = receipt.BlockNumber
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.solver.Pause()
	s.logger.Notice("Bidding paused through the control API")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	s.solver.Resume()
	s.logger.Notice("Bidding resumed through the control API")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "paused": false})
}

// handleCircuitReset resets one breaker with ?chain=<id>, or all of them without it
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	chainID := 0
	if raw := r.URL.Query().Get("chain"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid chain ID", http.StatusBadRequest)
			return
		}
		chainID = id
	}
	if err := s.solver.ResetCircuit(chainID); err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "chainId": chainID})
}

func (s *Server) intentParams(w http.ResponseWriter, r *http.Request) (int, *big.Int, bool) {
	chainID, err := strconv.Atoi(chi.URLParam(r, "chainId"))
	if err != nil || chainID <= 0 {
		http.Error(w, "Invalid chain ID", http.StatusBadRequest)
		return 0, nil, false
	}
	intentID, err := models.ParseIntentID(chi.URLParam(r, "intentId"))
	if err != nil {
		http.Error(w, "Invalid intent ID", http.StatusBadRequest)
		return 0, nil, false
	}
	return chainID, intentID, true
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.logger.Error("Control API request failed: %v", err)
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
