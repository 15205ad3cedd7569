package handlers

import (
	"net/http"
	"time"

	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/services"
)

// TrackingHandler ingests live positions and operator-raised exceptions.
type TrackingHandler struct {
	Tracker *services.Tracker
}

// Location records a position ping for an in-progress assignment and returns
// the recomputed route progress.
func (h *TrackingHandler) Location(w http.ResponseWriter, r *http.Request) {
	var req dto.LocationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var at time.Time
	if req.Timestamp != nil {
		at = *req.Timestamp
	}

	point := domain.Coordinates{Lat: req.Lat, Lon: req.Lon}
	progress, err := h.Tracker.Ingest(r.Context(), r.PathValue("id"), point, at)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.ProgressResponse{
		Lat:             progress.Position.Lat,
		Lon:             progress.Position.Lon,
		PercentComplete: progress.PercentComplete,
		UpdatedAt:       progress.UpdatedAt,
	})
}

// RaiseException records an explicit delivery exception against an assignment.
func (h *TrackingHandler) RaiseException(w http.ResponseWriter, r *http.Request) {
	var req dto.ExceptionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	e, err := h.Tracker.HandleException(r.Context(), r.PathValue("id"), domain.ExceptionType(req.Type), req.Details)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, e)
}

// ListExceptions returns the exceptions recorded for an assignment, detected
// and operator-raised alike.
func (h *TrackingHandler) ListExceptions(w http.ResponseWriter, r *http.Request) {
	exceptions, err := h.Tracker.Exceptions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if exceptions == nil {
		exceptions = []*domain.DeliveryException{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"exceptions": exceptions})
}
