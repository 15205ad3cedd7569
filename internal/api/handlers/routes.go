package handlers

import (
	"net/http"

	"delivery-dispatch-service/internal/api/dto"
	"delivery-dispatch-service/internal/services"
)

// RouteHandler exposes standalone route optimization, independent of any
// assignment.
type RouteHandler struct {
	Optimizer *services.RouteOptimizer
}

func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req dto.OptimizeRouteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	plan, err := h.Optimizer.Optimize(req.Origin, req.Waypoints, req.MinutesPerKm)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.OptimizeRouteResponse{
		Stops:           plan.Stops,
		TotalDistanceKm: plan.TotalDistanceKm,
		TotalMinutes:    plan.TotalMinutes,
	})
}
