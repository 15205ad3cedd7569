package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
)

func equatorPlan(t *testing.T) *domain.RoutePlan {
	t.Helper()
	plan, err := NewRouteOptimizer(2.0).Optimize(domain.Coordinates{Lat: 0, Lon: 0}, []domain.Waypoint{
		wp("o1", domain.WaypointPickup, 0, 0.01),
		wp("o1", domain.WaypointDelivery, 0, 0.02),
	}, 2.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return plan
}

func seedAssignment(t *testing.T, env *dispatchEnv, a *domain.Assignment) {
	t.Helper()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = env.clock.Now()
	}
	a.UpdatedAt = a.CreatedAt
	if a.Version == 0 {
		a.Version = 1
	}
	if err := env.assignments.Create(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestIngestUpdatesProgress(t *testing.T) {
	env := newDispatchEnv(testConfig(), []*domain.Driver{testDriver("d1", 0, 0)}, nil)
	seedAssignment(t, env, &domain.Assignment{
		ID:             "a1",
		OrderID:        "o1",
		DriverID:       "d1",
		Status:         domain.StatusAccepted,
		Route:          equatorPlan(t),
		RouteStopIndex: 1,
	})

	p1, err := env.tracker.Ingest(context.Background(), "a1", domain.Coordinates{Lat: 0, Lon: 0.005}, env.clock.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(p1.PercentComplete-25) > 1 {
		t.Fatalf("percent = %f, want ~25", p1.PercentComplete)
	}

	env.clock.Advance(time.Minute)
	p2, err := env.tracker.Ingest(context.Background(), "a1", domain.Coordinates{Lat: 0, Lon: 0.015}, env.clock.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(p2.PercentComplete-75) > 1 {
		t.Fatalf("percent = %f, want ~75", p2.PercentComplete)
	}

	// A backwards GPS wobble on route must not reduce progress.
	env.clock.Advance(time.Minute)
	p3, err := env.tracker.Ingest(context.Background(), "a1", domain.Coordinates{Lat: 0, Lon: 0.01}, env.clock.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p3.PercentComplete != p2.PercentComplete {
		t.Fatalf("percent = %f, want held at %f", p3.PercentComplete, p2.PercentComplete)
	}

	// Pings refresh the driver's cached position.
	loc, ok, err := env.locations.Get(context.Background(), "d1")
	if err != nil || !ok {
		t.Fatalf("cached location missing: ok=%v err=%v", ok, err)
	}
	if loc.Position.Lon != 0.01 {
		t.Fatalf("cached lon = %f, want 0.01", loc.Position.Lon)
	}
}

func TestIngestRejectsTerminalAndInvalid(t *testing.T) {
	env := newDispatchEnv(testConfig(), nil, nil)
	seedAssignment(t, env, &domain.Assignment{
		ID:      "done",
		OrderID: "o1",
		Status:  domain.StatusDelivered,
	})

	if _, err := env.tracker.Ingest(context.Background(), "done", domain.Coordinates{Lat: 0, Lon: 0}, env.clock.Now()); !errors.Is(err, domain.ErrStaleResponse) {
		t.Fatalf("err = %v, want ErrStaleResponse for terminal assignment", err)
	}
	if _, err := env.tracker.Ingest(context.Background(), "done", domain.Coordinates{Lat: 95, Lon: 0}, env.clock.Now()); !domain.IsValidation(err) {
		t.Fatalf("err = %v, want validation error for bad coordinates", err)
	}
	if _, err := env.tracker.Ingest(context.Background(), "missing", domain.Coordinates{Lat: 0, Lon: 0}, env.clock.Now()); !errors.Is(err, domain.ErrAssignmentNotFound) {
		t.Fatalf("err = %v, want ErrAssignmentNotFound", err)
	}
}

func TestOffRouteExceptionRecordedOnce(t *testing.T) {
	env := newDispatchEnv(testConfig(), nil, nil)
	seedAssignment(t, env, &domain.Assignment{
		ID:             "a1",
		OrderID:        "o1",
		Status:         domain.StatusAccepted,
		Route:          equatorPlan(t),
		RouteStopIndex: 1,
	})

	// ~5.6 km north of the route.
	offRoute := domain.Coordinates{Lat: 0.05, Lon: 0.01}
	if _, err := env.tracker.Ingest(context.Background(), "a1", offRoute, env.clock.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.clock.Advance(time.Minute)
	if _, err := env.tracker.Ingest(context.Background(), "a1", offRoute, env.clock.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exceptions, err := env.tracker.Exceptions(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exceptions) != 1 || exceptions[0].Type != domain.ExceptionOffRoute {
		t.Fatalf("exceptions = %+v, want a single off_route record", exceptions)
	}

	// Detection is an observability signal; the status must not move.
	a, _ := env.assignments.Get(context.Background(), "a1")
	if a.Status != domain.StatusAccepted {
		t.Fatalf("status = %s, detection must not touch the state machine", a.Status)
	}
}

func TestStalledException(t *testing.T) {
	env := newDispatchEnv(testConfig(), nil, nil)
	seedAssignment(t, env, &domain.Assignment{
		ID:      "a1",
		OrderID: "o1",
		Status:  domain.StatusEnRouteToDelivery,
	})

	spot := domain.Coordinates{Lat: 0, Lon: 0.01}
	if _, err := env.tracker.Ingest(context.Background(), "a1", spot, env.clock.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env.clock.Advance(6 * time.Minute)
	if _, err := env.tracker.Ingest(context.Background(), "a1", spot, env.clock.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exceptions, err := env.tracker.Exceptions(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exceptions) != 1 || exceptions[0].Type != domain.ExceptionStalled {
		t.Fatalf("exceptions = %+v, want a single stalled record", exceptions)
	}
}

func TestMissedWindowException(t *testing.T) {
	env := newDispatchEnv(testConfig(), nil, nil)
	t0 := env.clock.Now()
	responded := t0
	seedAssignment(t, env, &domain.Assignment{
		ID:             "a1",
		OrderID:        "o1",
		DriverID:       "d1",
		Status:         domain.StatusEnRouteToDelivery,
		Route:          equatorPlan(t),
		RouteStopIndex: 1,
		Offers: []domain.OfferRecord{{
			DriverID:    "d1",
			OfferedAt:   t0,
			Outcome:     domain.OfferAccepted,
			RespondedAt: &responded,
		}},
	})

	// The whole run is ~4.5 minutes; 20 minutes later the grace is long gone.
	env.clock.Advance(20 * time.Minute)
	if _, err := env.tracker.Ingest(context.Background(), "a1", domain.Coordinates{Lat: 0, Lon: 0.015}, env.clock.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exceptions, err := env.tracker.Exceptions(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exceptions) != 1 || exceptions[0].Type != domain.ExceptionMissedWindow {
		t.Fatalf("exceptions = %+v, want a single missed_window record", exceptions)
	}
}

func TestHandleException(t *testing.T) {
	env := newDispatchEnv(testConfig(), nil, nil)
	seedAssignment(t, env, &domain.Assignment{
		ID:      "a1",
		OrderID: "o1",
		Status:  domain.StatusPickedUp,
	})

	if _, err := env.tracker.HandleException(context.Background(), "a1", domain.ExceptionType("weird"), ""); !domain.IsValidation(err) {
		t.Fatalf("err = %v, want validation error for unknown type", err)
	}
	if _, err := env.tracker.HandleException(context.Background(), "missing", domain.ExceptionFailedHandoff, ""); !errors.Is(err, domain.ErrAssignmentNotFound) {
		t.Fatalf("err = %v, want ErrAssignmentNotFound", err)
	}

	e, err := env.tracker.HandleException(context.Background(), "a1", domain.ExceptionFailedHandoff, "customer unreachable")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == "" || e.Details != "customer unreachable" {
		t.Fatalf("exception = %+v, want persisted with details", e)
	}

	exceptions, err := env.tracker.Exceptions(context.Background(), "a1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exceptions) != 1 {
		t.Fatalf("exceptions = %d, want 1", len(exceptions))
	}
}

func TestAssignmentETA(t *testing.T) {
	d := testDriver("d1", 0, 0)
	d.HasPosition = false
	env := newDispatchEnv(testConfig(), []*domain.Driver{d}, nil)

	plan := equatorPlan(t)
	seedAssignment(t, env, &domain.Assignment{
		ID:             "a1",
		OrderID:        "o1",
		DriverID:       "d1",
		Status:         domain.StatusEnRouteToDelivery,
		Route:          plan,
		RouteStopIndex: 1,
	})
	seedAssignment(t, env, &domain.Assignment{
		ID:      "unassigned",
		OrderID: "o2",
		Status:  domain.StatusPending,
	})

	// No position anywhere: unavailable, not an error.
	if _, ok, err := env.tracker.AssignmentETA(context.Background(), "a1"); err != nil || ok {
		t.Fatalf("ok=%v err=%v, want unavailable without a position", ok, err)
	}
	if _, ok, err := env.tracker.AssignmentETA(context.Background(), "unassigned"); err != nil || ok {
		t.Fatalf("ok=%v err=%v, want unavailable without a driver", ok, err)
	}

	// A fresh cached position at the pickup stop makes it computable.
	err := env.locations.Set(context.Background(), "d1", ports.CachedLocation{
		Position:   domain.Coordinates{Lat: 0, Lon: 0.01},
		RecordedAt: env.clock.Now(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	est, ok, err := env.tracker.AssignmentETA(context.Background(), "a1")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v, want available", ok, err)
	}
	want := plan.Stops[1].LegDistanceKm * 2.0 // car factor
	if math.Abs(est.Minutes-want) > 0.01 {
		t.Fatalf("minutes = %f, want ~%f", est.Minutes, want)
	}
}
