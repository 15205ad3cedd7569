package dto

import "delivery-dispatch-service/internal/domain"

type OptimizeRouteRequest struct {
	Origin       domain.Coordinates `json:"origin"`
	Waypoints    []domain.Waypoint  `json:"waypoints"`
	MinutesPerKm float64            `json:"minutes_per_km"`
}

type OptimizeRouteResponse struct {
	Stops           []domain.RouteStop `json:"stops"`
	TotalDistanceKm float64            `json:"total_distance_km"`
	TotalMinutes    float64            `json:"total_minutes"`
}
