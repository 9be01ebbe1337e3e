package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/plantops/sensor-pipeline/internal/service"
	"github.com/plantops/sensor-pipeline/pkg/types"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tn := TenantFromContext(ctx)
	requestID := RequestID(ctx)

	var reading types.SensorReading
	if err := json.NewDecoder(r.Body).Decode(&reading); err != nil {
		// Malformed payloads surface as internal errors rather than bad
		// requests: gateways retry 5xx, and a corrupt payload from an
		// upstream collector is their fault to replay, not the sensor's.
		s.logger.Error("undecodable ingest payload",
			"request_id", requestID, "tenant_id", tn.TenantID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error",
			[]string{"request body is not valid JSON"})
		return
	}

	result, err := s.svc.IngestReading(ctx, requestID, tn, &reading)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			s.writeError(w, http.StatusBadRequest, "Invalid sensor data", verr.Problems)
			return
		}
		s.logger.Error("ingest failed",
			"request_id", requestID, "tenant_id", tn.TenantID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListEquipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tn := TenantFromContext(ctx)

	statuses, err := s.svc.ListEquipment(ctx, tn)
	if err != nil {
		s.logger.Error("listing equipment",
			"request_id", RequestID(ctx), "tenant_id", tn.TenantID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if statuses == nil {
		statuses = []types.EquipmentStatus{}
	}
	s.writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleGetEquipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tn := TenantFromContext(ctx)
	equipmentID := r.PathValue("id")

	status, err := s.svc.GetEquipmentStatus(ctx, tn, equipmentID)
	if err != nil {
		s.logger.Error("fetching equipment status",
			"request_id", RequestID(ctx), "tenant_id", tn.TenantID,
			"equipment_id", equipmentID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if status == nil {
		s.writeError(w, http.StatusNotFound, "Equipment not found", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEquipmentMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tn := TenantFromContext(ctx)
	equipmentID := r.PathValue("id")

	start, end, limit, err := rangeParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query parameters", []string{err.Error()})
		return
	}

	readings, err := s.svc.RecentMetrics(ctx, tn, equipmentID, start, end, limit)
	if err != nil {
		s.logger.Error("querying metrics",
			"request_id", RequestID(ctx), "tenant_id", tn.TenantID,
			"equipment_id", equipmentID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if readings == nil {
		readings = []types.SensorReading{}
	}
	s.writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleEquipmentArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tn := TenantFromContext(ctx)
	equipmentID := r.PathValue("id")

	start, end, _, err := rangeParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid query parameters", []string{err.Error()})
		return
	}

	keys, err := s.svc.ArchiveKeys(ctx, tn, equipmentID, start, end)
	if err != nil {
		s.logger.Error("listing archive keys",
			"request_id", RequestID(ctx), "tenant_id", tn.TenantID,
			"equipment_id", equipmentID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	s.writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		s.writeError(w, http.StatusServiceUnavailable, "Status collection disabled", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, s.status.Status())
}

// rangeParams parses the optional start_time, end_time, and limit query
// parameters. Zero times mean "apply the service defaults". An interval
// parameter is accepted but readings are returned raw.
func rangeParams(r *http.Request) (start, end time.Time, limit int, err error) {
	q := r.URL.Query()

	if v := q.Get("start_time"); v != "" {
		start, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, 0, errors.New("start_time must be RFC 3339")
		}
	}
	if v := q.Get("end_time"); v != "" {
		end, err = time.Parse(time.RFC3339, v)
		if err != nil {
			return start, end, 0, errors.New("end_time must be RFC 3339")
		}
	}
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			return start, end, 0, errors.New("limit must be a non-negative integer")
		}
	}
	return start, end, limit, nil
}
