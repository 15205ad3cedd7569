package services

import (
	"fmt"
	"math"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
)

// RouteOptimizer orders a set of stops into a short (not necessarily optimal)
// tour using a greedy nearest-neighbor algorithm.
//
// The algorithm minimizes immediate travel distance at each step. It does not
// attempt global route optimization (e.g., VRP solvers) and can produce
// crossing paths for pathological inputs. The design prioritizes determinism
// and speed over optimality.
type RouteOptimizer struct {
	// DefaultMinutesPerKm converts distance into a time estimate when the
	// caller does not supply a vehicle-specific factor.
	DefaultMinutesPerKm float64
}

func NewRouteOptimizer(defaultMinutesPerKm float64) *RouteOptimizer {
	if defaultMinutesPerKm <= 0 {
		defaultMinutesPerKm = 2.0
	}
	return &RouteOptimizer{DefaultMinutesPerKm: defaultMinutesPerKm}
}

// Optimize produces a visiting order and cumulative distance/time for the
// given waypoints, starting from origin.
//
// Determinism: when two candidates are equidistant, input order wins. A
// delivery waypoint becomes eligible only after its order's pickup has been
// visited, so batched runs never deliver before picking up.
func (o *RouteOptimizer) Optimize(origin domain.Coordinates, waypoints []domain.Waypoint, minutesPerKm float64) (*domain.RoutePlan, error) {
	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("optimize route: origin: %w", err)
	}
	if len(waypoints) < 2 {
		return nil, &domain.ValidationError{Field: "waypoints", Reason: "route optimization requires at least 2 waypoints"}
	}
	for i, wp := range waypoints {
		if err := wp.Position.Validate(); err != nil {
			return nil, fmt.Errorf("optimize route: waypoint %d: %w", i, err)
		}
	}
	if minutesPerKm <= 0 {
		minutesPerKm = o.DefaultMinutesPerKm
	}

	// Count unvisited pickups per order so deliveries unlock only after
	// their pickup. Orders whose pickup is not part of the input (driver
	// already holds the goods) are unlocked from the start.
	pendingPickups := make(map[string]int)
	for _, wp := range waypoints {
		if wp.Kind == domain.WaypointPickup {
			pendingPickups[wp.OrderID]++
		}
	}

	visited := make([]bool, len(waypoints))
	current := origin

	stops := make([]domain.RouteStop, 0, len(waypoints))
	totalKm := 0.0

	for len(stops) < len(waypoints) {
		best := -1
		bestKm := math.MaxFloat64

		for i, wp := range waypoints {
			if visited[i] {
				continue
			}
			if wp.Kind == domain.WaypointDelivery && pendingPickups[wp.OrderID] > 0 {
				continue
			}
			// Strict less-than keeps the earliest input index on ties.
			if d := geo.DistanceKm(current, wp.Position); d < bestKm {
				bestKm = d
				best = i
			}
		}

		if best < 0 {
			return nil, fmt.Errorf("optimize route: no eligible next stop (%d of %d placed)", len(stops), len(waypoints))
		}

		wp := waypoints[best]
		visited[best] = true
		if wp.Kind == domain.WaypointPickup {
			pendingPickups[wp.OrderID]--
		}

		totalKm += bestKm
		stops = append(stops, domain.RouteStop{
			Waypoint:          wp,
			LegDistanceKm:     bestKm,
			CumulativeKm:      totalKm,
			CumulativeMinutes: totalKm * minutesPerKm,
		})
		current = wp.Position
	}

	return &domain.RoutePlan{
		Origin:          origin,
		Stops:           stops,
		TotalDistanceKm: totalKm,
		TotalMinutes:    totalKm * minutesPerKm,
	}, nil
}
