// Package api exposes the ingestion pipeline over HTTP.
//
// # Surface
//
//	POST /webhook/events              ingest one reading
//	POST /data                        ingest one reading (gateway alias)
//	GET  /equipment                   list equipment snapshots
//	GET  /equipment/{id}              one equipment snapshot
//	GET  /equipment/{id}/metrics      raw readings over a time range
//	GET  /equipment/{id}/archive      cold-tier document keys over a range
//	GET  /healthz                     liveness
//	GET  /status                      process health snapshot
//	GET  /metrics                     Prometheus exposition
//
// Every endpoint except /healthz, /status, and /metrics runs behind tenant
// resolution. Responses use a uniform envelope so API gateways and SDKs can
// handle success and failure the same way.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/plantops/sensor-pipeline/internal/metrics"
	"github.com/plantops/sensor-pipeline/internal/service"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

// Config wires the server's collaborators.
type Config struct {
	Service        *service.Service
	Status         *metrics.StatusCollector
	MetricsHandler http.Handler

	// PlatformDomain enables subdomain-based tenant extraction.
	PlatformDomain string

	Logger *slog.Logger
}

// Server is the HTTP surface of the pipeline.
type Server struct {
	svc            *service.Service
	status         *metrics.StatusCollector
	metricsHandler http.Handler
	platformDomain string
	logger         *slog.Logger
	mux            *http.ServeMux
}

// NewServer builds the server and its routing table.
func NewServer(cfg Config) *Server {
	s := &Server{
		svc:            cfg.Service,
		status:         cfg.Status,
		metricsHandler: cfg.MetricsHandler,
		platformDomain: cfg.PlatformDomain,
		logger:         cfg.Logger.With("component", "api"),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	// Ingest. /data is the alias API gateways rewrite to.
	s.mux.Handle("POST /webhook/events", s.withTenant(s.handleIngest))
	s.mux.Handle("POST /data", s.withTenant(s.handleIngest))

	s.mux.Handle("GET /equipment", s.withTenant(s.handleListEquipment))
	s.mux.Handle("GET /equipment/{id}", s.withTenant(s.handleGetEquipment))
	s.mux.Handle("GET /equipment/{id}/metrics", s.withTenant(s.handleEquipmentMetrics))
	s.mux.Handle("GET /equipment/{id}/archive", s.withTenant(s.handleEquipmentArchive))

	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	if s.metricsHandler != nil {
		s.mux.Handle("GET /metrics", s.metricsHandler)
	}
}

// ServeHTTP applies the outer middleware and dispatches to the mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withCORS(s.withRequestID(s.withLogging(s.mux))).ServeHTTP(w, r)
}

// writeJSON writes a success envelope.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(types.Envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// writeError writes a failure envelope. details carries the per-field
// problems on validation failures.
func (s *Server) writeError(w http.ResponseWriter, status int, message string, details []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(types.Envelope{
		Success:   false,
		Error:     message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		s.logger.Error("encoding error response", "error", err)
	}
}
