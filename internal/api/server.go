// Package api exposes the HTTP interface for the retrieval service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

// BatchRunner executes submissions. The orchestrator implements it; tests
// substitute fakes.
type BatchRunner interface {
	RunBatch(ctx context.Context, links []string, recipientID string) retriever.BatchSummary
	RunProfile(ctx context.Context, handle, recipientID string) retriever.BatchSummary
}

// Server wires HTTP handlers to the runner and the ledger.
type Server struct {
	router   chi.Router
	runner   BatchRunner
	ledger   retriever.Ledger
	registry *registry
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner BatchRunner, ledger retriever.Ledger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:   runner,
		ledger:   ledger,
		registry: newRegistry(),
		logger:   logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches", s.submitBatch)
		r.Get("/batches/{batch_id}", s.getBatch)
		r.Post("/profiles", s.submitProfile)
		r.Get("/stats", s.getStats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type batchRequest struct {
	Links       []string `json:"links"`
	RecipientID string   `json:"recipient_id"`
	DisplayName string   `json:"display_name"`
}

type profileRequest struct {
	Handle      string `json:"handle"`
	RecipientID string `json:"recipient_id"`
	DisplayName string `json:"display_name"`
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Links) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one link required")
		return
	}
	s.registerRecipient(r.Context(), req.RecipientID, req.DisplayName)

	rec := s.registry.create("batch", req.RecipientID)
	go s.runBatch(rec.ID, req.Links, req.RecipientID)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": rec.ID})
}

func (s *Server) submitProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Handle == "" {
		s.writeError(w, http.StatusBadRequest, "handle required")
		return
	}
	s.registerRecipient(r.Context(), req.RecipientID, req.DisplayName)

	rec := s.registry.create("profile", req.RecipientID)
	handle := req.Handle
	go func() {
		summary := s.runner.RunProfile(context.Background(), handle, rec.RecipientID)
		s.registry.finish(rec.ID, summary)
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"batch_id": rec.ID})
}

// runBatch executes detached from the request context; clients poll the
// registry for completion.
func (s *Server) runBatch(id string, links []string, recipientID string) {
	summary := s.runner.RunBatch(context.Background(), links, recipientID)
	s.registry.finish(id, summary)
}

func (s *Server) getBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "batch_id")
	rec, ok := s.registry.get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ledger.Stats(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "ledger unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// registerRecipient is best-effort; a failed upsert never blocks submission.
func (s *Server) registerRecipient(ctx context.Context, recipientID, displayName string) {
	if recipientID == "" {
		return
	}
	if err := s.ledger.UpsertRecipient(ctx, recipientID, displayName); err != nil {
		s.logger.Warn("recipient upsert failed", zap.String("recipient", recipientID), zap.Error(err))
	}
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, reqID)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
