package handlers

import (
	"net/http"

	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/services"
)

// BatchHandler combines compatible pending orders into a single driver run.
type BatchHandler struct {
	Planner *services.BatchPlanner
}

func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.BatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	outcome, err := h.Planner.Batch(r.Context(), req.OrderIDs)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	res := dto.BatchResponse{Outcome: string(outcome.Outcome)}
	if outcome.Batch != nil {
		res.BatchID = outcome.Batch.ID
		res.DriverID = outcome.Batch.DriverID
		for _, a := range outcome.Assignments {
			res.Assignments = append(res.Assignments, dto.FromAssignment(a))
		}
	}
	writeJSON(w, r, http.StatusOK, res)
}
