package handlers

import (
	"net/http"
	"time"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
	"delivery-dispatch-service/internal/services"
)

// ReportHandler serves delivery KPI aggregates over assignment history.
type ReportHandler struct {
	Reporting *services.Reporting
}

// Get aggregates terminal assignments. Optional query parameters: from and to
// (RFC 3339), driver_id, status.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f ports.ReportFilters
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		f.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "to must be an RFC 3339 timestamp")
			return
		}
		f.To = t
	}
	f.DriverID = q.Get("driver_id")
	if raw := q.Get("status"); raw != "" {
		status := domain.AssignmentStatus(raw)
		if !status.IsValid() {
			writeError(w, r, http.StatusBadRequest, "unknown status filter")
			return
		}
		f.Status = status
	}

	report, err := h.Reporting.Generate(r.Context(), f)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}
