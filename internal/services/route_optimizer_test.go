package services

import (
	"math"
	"testing"

	"delivery-dispatch-service/internal/domain"
)

func wp(orderID string, kind domain.WaypointKind, lat, lon float64) domain.Waypoint {
	return domain.Waypoint{OrderID: orderID, Kind: kind, Position: domain.Coordinates{Lat: lat, Lon: lon}}
}

func TestOptimizeVisitsEveryWaypoint(t *testing.T) {
	o := NewRouteOptimizer(2.0)
	origin := domain.Coordinates{Lat: 0, Lon: 0}
	waypoints := []domain.Waypoint{
		wp("o1", domain.WaypointPickup, 0, 0.03),
		wp("o1", domain.WaypointDelivery, 0, 0.04),
		wp("o2", domain.WaypointPickup, 0, 0.01),
		wp("o2", domain.WaypointDelivery, 0, 0.02),
	}

	plan, err := o.Optimize(origin, waypoints, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Stops) != 4 {
		t.Fatalf("stops = %d, want 4", len(plan.Stops))
	}

	// Greedy walk east along the equator: o2 pickup, o2 delivery, o1 pickup,
	// o1 delivery.
	want := []string{"o2", "o2", "o1", "o1"}
	for i, stop := range plan.Stops {
		if stop.Waypoint.OrderID != want[i] {
			t.Fatalf("stop %d = %s, want %s", i, stop.Waypoint.OrderID, want[i])
		}
	}
}

func TestOptimizeTotalsAndCumulatives(t *testing.T) {
	o := NewRouteOptimizer(2.0)
	origin := domain.Coordinates{Lat: 0, Lon: 0}
	waypoints := []domain.Waypoint{
		wp("o1", domain.WaypointPickup, 0, 0.01),
		wp("o1", domain.WaypointDelivery, 0, 0.02),
	}

	plan, err := o.Optimize(origin, waypoints, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// One degree of longitude on the equator is ~111.19 km.
	const degKm = 111.19
	if got, want := plan.TotalDistanceKm, 0.02*degKm; math.Abs(got-want) > 0.01 {
		t.Fatalf("total km = %f, want ~%f", got, want)
	}
	if got, want := plan.TotalMinutes, plan.TotalDistanceKm*2.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("total minutes = %f, want %f", got, want)
	}
	if got := plan.Stops[1].CumulativeKm; math.Abs(got-plan.TotalDistanceKm) > 1e-9 {
		t.Fatalf("last cumulative km = %f, want total %f", got, plan.TotalDistanceKm)
	}
	if plan.Stops[0].CumulativeKm >= plan.Stops[1].CumulativeKm {
		t.Fatal("cumulative distance must increase per stop")
	}
}

func TestOptimizePickupPrecedesDelivery(t *testing.T) {
	o := NewRouteOptimizer(2.0)
	origin := domain.Coordinates{Lat: 0, Lon: 0}

	// The delivery is closer to the origin than the pickup, but must still be
	// visited second.
	waypoints := []domain.Waypoint{
		wp("o1", domain.WaypointDelivery, 0, 0.01),
		wp("o1", domain.WaypointPickup, 0, 0.03),
	}

	plan, err := o.Optimize(origin, waypoints, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Stops[0].Waypoint.Kind != domain.WaypointPickup {
		t.Fatalf("first stop = %s, want pickup", plan.Stops[0].Waypoint.Kind)
	}
	if plan.Stops[1].Waypoint.Kind != domain.WaypointDelivery {
		t.Fatalf("second stop = %s, want delivery", plan.Stops[1].Waypoint.Kind)
	}
}

func TestOptimizeTiesKeepInputOrder(t *testing.T) {
	o := NewRouteOptimizer(2.0)
	origin := domain.Coordinates{Lat: 0, Lon: 0}

	// Both pickups are exactly equidistant from the origin.
	waypoints := []domain.Waypoint{
		wp("east", domain.WaypointPickup, 0, 0.01),
		wp("west", domain.WaypointPickup, 0, -0.01),
	}

	for i := 0; i < 5; i++ {
		plan, err := o.Optimize(origin, waypoints, 2.0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if plan.Stops[0].Waypoint.OrderID != "east" {
			t.Fatalf("run %d: tie broken to %s, want input order (east)", i, plan.Stops[0].Waypoint.OrderID)
		}
	}
}

func TestOptimizeValidation(t *testing.T) {
	o := NewRouteOptimizer(2.0)
	origin := domain.Coordinates{Lat: 0, Lon: 0}

	if _, err := o.Optimize(origin, []domain.Waypoint{wp("o1", domain.WaypointPickup, 0, 0.01)}, 2.0); !domain.IsValidation(err) {
		t.Fatalf("err = %v, want validation error for <2 waypoints", err)
	}

	bad := []domain.Waypoint{
		wp("o1", domain.WaypointPickup, 95, 0),
		wp("o1", domain.WaypointDelivery, 0, 0.01),
	}
	if _, err := o.Optimize(origin, bad, 2.0); err == nil {
		t.Fatal("expected error for out-of-range waypoint latitude")
	}
}

func TestOptimizeFallsBackToDefaultFactor(t *testing.T) {
	o := NewRouteOptimizer(3.0)
	origin := domain.Coordinates{Lat: 0, Lon: 0}
	waypoints := []domain.Waypoint{
		wp("o1", domain.WaypointPickup, 0, 0.01),
		wp("o1", domain.WaypointDelivery, 0, 0.02),
	}

	plan, err := o.Optimize(origin, waypoints, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := plan.TotalMinutes, plan.TotalDistanceKm*3.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("total minutes = %f, want default factor applied (%f)", got, want)
	}
}
