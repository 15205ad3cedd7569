package api

import (
	"net/http"

	"delivery-dispatch-service/internal/api/handlers"
	"delivery-dispatch-service/internal/services"
)

// NewRouter wires HTTP handlers with their dependencies and returns an
// http.Handler. This is the API composition root (handlers stay unaware of
// concrete adapters).
func NewRouter(
	coordinator *services.Coordinator,
	tracker *services.Tracker,
	planner *services.BatchPlanner,
	optimizer *services.RouteOptimizer,
	reporting *services.Reporting,
) http.Handler {
	mux := http.NewServeMux()

	assignmentHandler := &handlers.AssignmentHandler{
		Coordinator: coordinator,
		Tracker:     tracker,
	}
	trackingHandler := &handlers.TrackingHandler{Tracker: tracker}
	routeHandler := &handlers.RouteHandler{Optimizer: optimizer}
	batchHandler := &handlers.BatchHandler{Planner: planner}
	reportHandler := &handlers.ReportHandler{Reporting: reporting}

	mux.HandleFunc("GET /health", handlers.Health)

	mux.HandleFunc("POST /assignments", assignmentHandler.Assign)
	mux.HandleFunc("POST /assignments/{id}/response", assignmentHandler.Respond)
	mux.HandleFunc("POST /assignments/{id}/advance", assignmentHandler.Advance)
	mux.HandleFunc("POST /assignments/{id}/cancel", assignmentHandler.Cancel)
	mux.HandleFunc("GET /assignments/{id}/eta", assignmentHandler.ETA)

	mux.HandleFunc("POST /assignments/{id}/location", trackingHandler.Location)
	mux.HandleFunc("POST /assignments/{id}/exceptions", trackingHandler.RaiseException)
	mux.HandleFunc("GET /assignments/{id}/exceptions", trackingHandler.ListExceptions)

	mux.HandleFunc("POST /routes/optimize", routeHandler.Optimize)
	mux.HandleFunc("POST /batches", batchHandler.Create)
	mux.HandleFunc("GET /reports", reportHandler.Get)

	return loggingMiddleware(mux)
}
