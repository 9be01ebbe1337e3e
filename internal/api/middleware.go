package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/plantops/sensor-pipeline/internal/tenant"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	tenantKey
)

// RequestID returns the request's correlation id.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// TenantFromContext returns the resolved tenant for the request.
func TenantFromContext(ctx context.Context) *types.TenantContext {
	tn, _ := ctx.Value(tenantKey).(*types.TenantContext)
	return tn
}

// withRequestID assigns or propagates a correlation id and echoes it back.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging emits one access-log line per request. /metrics and /healthz
// are scraped constantly and stay out of the log.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0)
	})
}

// withCORS applies the permissive cross-origin policy on every response and
// short-circuits preflight requests.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Tenant-ID, X-API-Key, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withTenant extracts and resolves the tenant, enforces the tenant's API
// key when one is configured, and stores the context for the handler.
func (s *Server) withTenant(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := tenant.ExtractTenantID(r, s.platformDomain)

		tn, err := s.svc.Resolver().Resolve(r.Context(), tenantID)
		if err != nil {
			s.writeTenantError(w, r, tenantID, err)
			return
		}

		if tn.APIKeyHash != "" && !tenant.VerifyAPIKey(r.Header.Get("X-API-Key"), tn.APIKeyHash) {
			s.logger.Warn("api key rejected",
				"request_id", RequestID(r.Context()), "tenant_id", tn.TenantID)
			s.writeError(w, http.StatusForbidden, "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tenantKey, tn)))
	})
}

func (s *Server) writeTenantError(w http.ResponseWriter, r *http.Request, tenantID string, err error) {
	requestID := RequestID(r.Context())

	var denied *tenant.DeniedError
	switch {
	case errors.Is(err, tenant.ErrTenantMissing):
		s.writeError(w, http.StatusBadRequest, "Tenant identifier required", nil)
	case errors.Is(err, tenant.ErrTenantUnknown):
		s.logger.Info("unknown tenant", "request_id", requestID, "tenant_id", tenantID)
		s.writeError(w, http.StatusNotFound, "Tenant not found", nil)
	case errors.As(err, &denied):
		status := http.StatusForbidden
		if denied.Throttled {
			status = http.StatusTooManyRequests
		}
		s.logger.Warn("tenant denied",
			"request_id", requestID, "tenant_id", tenantID, "reason", denied.Reason)
		s.writeError(w, status, denied.Reason, nil)
	default:
		s.logger.Error("tenant resolution failed",
			"request_id", requestID, "tenant_id", tenantID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}
