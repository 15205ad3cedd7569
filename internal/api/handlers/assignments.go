package handlers

import (
	"net/http"
	"strings"

	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/services"
)

// AssignmentHandler exposes the assignment lifecycle: create an offer, record
// the driver's response, advance progress, cancel, and read the customer ETA.
type AssignmentHandler struct {
	Coordinator *services.Coordinator
	Tracker     *services.Tracker
}

// Assign creates an assignment for an order and offers it to the best
// candidate. "No drivers available" is a 200 with a discriminating outcome
// field, not an error.
func (h *AssignmentHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req dto.AssignRequest
	if !decodeBody(w, r, &req) {
		return
	}

	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		writeError(w, r, http.StatusBadRequest, "order_id is required")
		return
	}

	outcome, err := h.Coordinator.Assign(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.AssignOutcomeResponse{Outcome: string(outcome.Outcome)}
	if outcome.Assignment != nil {
		res.Assignment = dto.FromAssignment(outcome.Assignment)
	}
	writeJSON(w, r, http.StatusOK, res)
}

// Respond records the offered driver's accept or decline.
func (h *AssignmentHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req dto.RespondRequest
	if !decodeBody(w, r, &req) {
		return
	}

	driverID := strings.TrimSpace(req.DriverID)
	if driverID == "" {
		writeError(w, r, http.StatusBadRequest, "driver_id is required")
		return
	}

	a, err := h.Coordinator.Respond(r.Context(), r.PathValue("id"), driverID, services.Decision(req.Decision), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.FromAssignment(a))
}

// Advance records driver-reported progress along the route.
func (h *AssignmentHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var req dto.AdvanceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	driverID := strings.TrimSpace(req.DriverID)
	if driverID == "" {
		writeError(w, r, http.StatusBadRequest, "driver_id is required")
		return
	}

	a, err := h.Coordinator.Advance(r.Context(), r.PathValue("id"), driverID, domain.AssignmentStatus(req.Status))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.FromAssignment(a))
}

// Cancel aborts a non-terminal assignment.
func (h *AssignmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req dto.CancelRequest
	if !decodeBody(w, r, &req) {
		return
	}

	a, err := h.Coordinator.Cancel(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto.FromAssignment(a))
}

// ETA predicts delivery arrival from the driver's freshest known position.
// An unavailable estimate is a 200 with available=false.
func (h *AssignmentHandler) ETA(w http.ResponseWriter, r *http.Request) {
	est, ok, err := h.Tracker.AssignmentETA(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.ETAResponse{Available: ok}
	if ok {
		res.Minutes = est.Minutes
		arrival := est.ArrivalAt
		res.ArrivalAt = &arrival
	}
	writeJSON(w, r, http.StatusOK, res)
}
