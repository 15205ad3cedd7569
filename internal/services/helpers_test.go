package services

import (
	"time"

	"delivery-dispatch-service/internal/adapters/repositories"
	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/domain"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig() config.Dispatch {
	return config.Dispatch{
		OfferResponseWindow: 60 * time.Second,
		MaxOffers:           5,
		SweepInterval:       15 * time.Second,
		MinutesPerKm: map[domain.VehicleType]float64{
			domain.VehicleBike:    3.0,
			domain.VehicleScooter: 2.2,
			domain.VehicleCar:     2.0,
		},
		DefaultMinutesPerKm:    2.0,
		MaxCandidateDistanceKm: 10.0,
		BatchPickupRadiusKm:    2.0,
		OffRouteThresholdKm:    1.0,
		StalledWindow:          5 * time.Minute,
		StalledEpsilonKm:       0.05,
		MissedWindowGrace:      10 * time.Minute,
		OnTimeGrace:            5 * time.Minute,
		LocationTTL:            2 * time.Minute,
	}
}

func testDriver(id string, lat, lon float64) *domain.Driver {
	return &domain.Driver{
		ID:          id,
		Name:        "Driver " + id,
		Vehicle:     domain.VehicleCar,
		Position:    domain.Coordinates{Lat: lat, Lon: lon},
		HasPosition: true,
		IsOnline:    true,
		IsAvailable: true,
		IsActive:    true,
		Rating:      4.5,
	}
}

func testOrder(id string, pickup, delivery domain.Coordinates) *domain.Order {
	return &domain.Order{
		ID:           id,
		BranchName:   "Branch",
		Pickup:       pickup,
		CustomerID:   "cust-" + id,
		CustomerName: "Customer " + id,
		Delivery:     delivery,
	}
}

// dispatchEnv wires the full service graph onto in-memory adapters with a
// controllable clock.
type dispatchEnv struct {
	clock       *fakeClock
	cfg         config.Dispatch
	drivers     *repositories.MemoryDriverRepository
	orders      *repositories.MemoryOrderRepository
	assignments *repositories.MemoryAssignmentRepository
	tracking    *repositories.MemoryTrackingRepository
	locations   *repositories.MemoryLocationCache

	directory   *DriverDirectory
	optimizer   *RouteOptimizer
	eta         *ETACalculator
	coordinator *Coordinator
	tracker     *Tracker
	planner     *BatchPlanner
	reporting   *Reporting
}

func newDispatchEnv(cfg config.Dispatch, drivers []*domain.Driver, orders []*domain.Order) *dispatchEnv {
	env := &dispatchEnv{
		clock:       &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		cfg:         cfg,
		drivers:     repositories.NewMemoryDriverRepository(drivers...),
		orders:      repositories.NewMemoryOrderRepository(orders...),
		assignments: repositories.NewMemoryAssignmentRepository(),
		tracking:    repositories.NewMemoryTrackingRepository(),
		locations:   repositories.NewMemoryLocationCache(),
	}

	env.directory = NewDriverDirectory(env.drivers, env.locations, env.clock, cfg)
	env.optimizer = NewRouteOptimizer(cfg.DefaultMinutesPerKm)
	env.eta = NewETACalculator(cfg, env.clock)
	env.coordinator = NewCoordinator(env.orders, env.drivers, env.assignments, env.directory, env.optimizer, env.eta, nil, env.clock, cfg)
	env.tracker = NewTracker(env.assignments, env.tracking, env.drivers, env.locations, env.eta, env.clock, cfg)
	env.planner = NewBatchPlanner(env.orders, env.drivers, env.assignments, env.directory, env.optimizer, nil, env.clock, cfg)
	env.reporting = NewReporting(env.assignments, cfg)
	return env
}
