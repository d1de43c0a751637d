// Package api provides the HTTP server for cascade: scope and task
// management, dependency commands, date changes and critical-path reads.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tutu-network/cascade/internal/app/schedule"
	"github.com/tutu-network/cascade/internal/domain"
	"github.com/tutu-network/cascade/internal/health"
)

// Version is reported by /api/version.
var Version = "dev"

// ActorHeader names the caller recorded in the audit log.
const ActorHeader = "X-Cascade-Actor"

// Store is the read and catalog surface the server needs next to the
// command service.
type Store interface {
	domain.ScopeCatalog
	LoadScope(ctx context.Context, id domain.ScopeID) (*domain.Snapshot, error)
	AuditLog(ctx context.Context, scope domain.ScopeID, limit int) ([]domain.AuditEntry, error)
}

// HealthReporter exposes the latest health check results.
type HealthReporter interface {
	Statuses() []health.Status
	IsHealthy() bool
}

// Server is the cascade HTTP API server.
type Server struct {
	svc            *schedule.Service
	store          Store
	health         HealthReporter
	log            *slog.Logger
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(svc *schedule.Service, store Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, store: store, log: logger, timeout: 30 * time.Second}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealth attaches a health reporter to /health and /api/health/checks.
func (s *Server) SetHealth(h HealthReporter) { s.health = h }

// SetTimeout bounds each request's handling time.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/api/health/checks", s.handleHealthChecks)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": Version})
	})

	r.Route("/api/scopes", func(r chi.Router) {
		r.Post("/", s.handleCreateScope)
		r.Get("/", s.handleListScopes)

		r.Route("/{scope}", func(r chi.Router) {
			r.Get("/", s.handleGetScope)

			r.Get("/tasks", s.handleListTasks)
			r.Put("/tasks/{task}", s.handlePutTask)
			r.Post("/tasks/{task}/dates", s.handleTaskDates)

			r.Get("/dependencies", s.handleListDependencies)
			r.Post("/dependencies", s.handleAddDependency)
			r.Delete("/dependencies/{pred}/{succ}", s.handleRemoveDependency)

			r.Get("/critical-path", s.handleCriticalPath)
			r.Post("/refresh", s.handleRefresh)
			r.Get("/audit", s.handleAudit)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil && !s.health.IsHealthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealthChecks(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"healthy": true, "checks": []health.Status{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy": s.health.IsHealthy(),
		"checks":  s.health.Statuses(),
	})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

// actor returns the caller named in ActorHeader, or "api".
func actor(r *http.Request) string {
	if a := r.Header.Get(ActorHeader); a != "" {
		return a
	}
	return "api"
}

func scopeParam(r *http.Request) domain.ScopeID {
	return domain.ScopeID(chi.URLParam(r, "scope"))
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response. code is the domain wire code
// when the error has one.
func writeError(w http.ResponseWriter, status int, msg, code string) {
	body := map[string]any{
		"message": msg,
		"type":    "error",
	}
	if code != "" {
		body["code"] = code
	}
	writeJSON(w, status, map[string]any{"error": body})
}

// writeDomainError maps err onto an HTTP status by its wire code.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.ErrorCode(err)
	status := statusFor(err)
	if status >= 500 {
		s.log.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	}
	writeError(w, status, err.Error(), code)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrScopeNotFound),
		errors.Is(err, domain.ErrTaskNotFound),
		errors.Is(err, domain.ErrEdgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrScopeExists),
		errors.Is(err, domain.ErrDuplicateEdge),
		errors.Is(err, domain.ErrCycleDetected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCrossScopeEdge),
		errors.Is(err, domain.ErrMalformedDescriptor),
		errors.Is(err, domain.ErrInvalidTask):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody decodes a JSON request body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "")
		return false
	}
	return true
}

// parseDate parses an optional YYYY-MM-DD field.
func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := domain.ParseDate(*s)
	if err != nil {
		return nil, errors.Join(domain.ErrInvalidTask, err)
	}
	return &t, nil
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+ActorHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
