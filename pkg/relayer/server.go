package relayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/speedrun-hq/speedrun-intents/pkg/logger"
	"github.com/speedrun-hq/speedrun-intents/pkg/metrics"
	"github.com/speedrun-hq/speedrun-intents/pkg/models"
	"github.com/speedrun-hq/speedrun-intents/pkg/recipients"
)

const maxBodyBytes = 1 << 20

// Server exposes a Service over HTTP
type Server struct {
	service         *Service
	port            string
	shutdownTimeout time.Duration
	ready           *atomic.Bool
	logger          logger.Logger
}

// NewServer creates the relayer HTTP server
func NewServer(service *Service, port string, shutdownTimeout time.Duration, logger logger.Logger) *Server {
	return &Server{
		service:         service,
		port:            port,
		shutdownTimeout: shutdownTimeout,
		ready:           atomic.NewBool(false),
		logger:          logger,
	}
}

// Router builds the route table
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)
	r.Post("/verify", s.handleVerify)
	r.Post("/settle", s.handleSettle)
	r.Post("/settle-with-proof", s.handleSettleWithProof)
	r.Post("/submit-proof", s.handleSubmitProof)
	r.Get("/proof-status/{jobId}", s.handleProofStatus)
	r.Post("/store-recipients", s.handleStoreRecipients)
	r.Get("/get-recipients/{intentId}", s.handleGetRecipients)
	r.Delete("/delete-recipients/{intentId}", s.handleDeleteRecipients)
	r.Get("/list-stored-intents", s.handleListStoredIntents)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting relayer server on port %s", s.port)
		errCh <- srv.ListenAndServe()
	}()
	s.ready.Store(true)

	select {
	case err := <-errCh:
		s.ready.Store(false)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("relayer server error: %w", err)
	case <-ctx.Done():
	}

	s.ready.Store(false)
	s.logger.Info("Shutting down relayer server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relayer server shutdown: %w", err)
	}
	return nil
}

// SetReady toggles the readiness reported by /health
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		metrics.RequestDuration.WithLabelValues(route, strconv.Itoa(ww.Status())).Observe(time.Since(start).Seconds())
		s.logger.Debug("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := http.StatusOK
	if !s.ready.Load() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"success": status == http.StatusOK,
		"ready":   s.ready.Load(),
		"chains":  s.service.Chains(),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id, err := models.ParseIntentID(req.Chain2IntentID)
	if err != nil {
		writeError(w, newError(KindInvalidParameters, CodeInvalidIntentID, err, "invalid chain2IntentId"))
		return
	}
	solved, err := s.service.Verify(r.Context(), id, req.ChainID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.VerifyResponse{
		Success:        true,
		IsSolved:       solved,
		Chain2IntentID: id.String(),
		ChainID:        req.ChainID,
	})
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req models.SettleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.service.Settle(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSettleWithProof(w http.ResponseWriter, r *http.Request) {
	var req models.SettleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.service.SettleWithProof(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitProofRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := s.service.SubmitProof(r.Context(), req.ProofData)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProofStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.service.ProofStatus(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStoreRecipients(w http.ResponseWriter, r *http.Request) {
	var req models.StoreRecipientsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	manifest, err := s.service.StoreRecipients(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"intentId":    manifest.IntentID,
		"count":       len(manifest.Recipients),
		"totalAmount": manifest.TotalAmount.String(),
	})
}

func (s *Server) handleGetRecipients(w http.ResponseWriter, r *http.Request) {
	manifest, err := s.service.GetRecipients(r.Context(), chi.URLParam(r, "intentId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recipients.ToResponse(manifest))
}

func (s *Server) handleDeleteRecipients(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intentId")
	if err := s.service.DeleteRecipients(r.Context(), intentID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "intentId": intentID})
}

func (s *Server) handleListStoredIntents(w http.ResponseWriter, r *http.Request) {
	ids, err := s.service.ListRecipients(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "intentIds": ids, "count": len(ids)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(out); err != nil {
		writeError(w, newError(KindInvalidParameters, "InvalidBody", err, "failed to parse request"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, recipients.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: err.Error(), Code: "NotFound"})
		return
	}
	e, ok := AsError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}
	resp := models.ErrorResponse{
		Error:     e.Message,
		Kind:      string(e.Kind),
		Code:      e.Code,
		AttemptID: e.AttemptID,
	}
	if e.Err != nil {
		resp.Details = e.Err.Error()
	}
	writeJSON(w, e.HTTPStatus(), resp)
}
