package services

import (
	"time"

	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
	"delivery-dispatch-service/internal/ports"
)

// ETAEstimate is a predicted wall-clock arrival.
type ETAEstimate struct {
	Minutes   float64
	ArrivalAt time.Time
}

// ETACalculator converts route distance plus a driver's vehicle profile into
// a predicted arrival time. The model is linear: minutes = km * factor.
type ETACalculator struct {
	cfg   config.Dispatch
	clock ports.Clock
}

func NewETACalculator(cfg config.Dispatch, clock ports.Clock) *ETACalculator {
	return &ETACalculator{cfg: cfg, clock: clock}
}

// EstimateMinutes applies the linear speed model to a leg or route distance.
func (c *ETACalculator) EstimateMinutes(distanceKm, minutesPerKm float64) float64 {
	if minutesPerKm <= 0 {
		minutesPerKm = c.cfg.DefaultMinutesPerKm
	}
	if distanceKm < 0 {
		distanceKm = 0
	}
	return distanceKm * minutesPerKm
}

// ForRoute turns a full route plan into an arrival estimate from now.
func (c *ETACalculator) ForRoute(plan *domain.RoutePlan) ETAEstimate {
	now := c.clock.Now()
	return ETAEstimate{
		Minutes:   plan.TotalMinutes,
		ArrivalAt: now.Add(time.Duration(plan.TotalMinutes * float64(time.Minute))),
	}
}

// CustomerETA predicts arrival at the assignment's delivery stop from the
// driver's current position, passing through any intermediate stops.
//
// The second return value is false when the estimate is unavailable: no route
// plan, no delivery stop for the order, or missing/invalid coordinates.
// Callers must branch on it rather than treat a zero as a real estimate.
func (c *ETACalculator) CustomerETA(a *domain.Assignment, driverPos domain.Coordinates, hasPos bool, vehicle domain.VehicleType) (ETAEstimate, bool) {
	if a == nil || a.Route == nil || len(a.Route.Stops) == 0 {
		return ETAEstimate{}, false
	}
	if !hasPos || driverPos.Validate() != nil {
		return ETAEstimate{}, false
	}

	deliveryIdx := a.Route.DeliveryStopIndex(a.OrderID)
	if deliveryIdx < 0 {
		return ETAEstimate{}, false
	}

	// Snap the driver onto the polyline, then ride the plan to the delivery
	// stop. A driver past the delivery stop has a zero remaining distance.
	segIdx, _, _ := projectOntoRoute(a.Route, driverPos)

	remainingKm := 0.0
	if segIdx <= deliveryIdx {
		remainingKm = geo.DistanceKm(driverPos, a.Route.Stops[segIdx].Waypoint.Position)
		for i := segIdx + 1; i <= deliveryIdx; i++ {
			remainingKm += a.Route.Stops[i].LegDistanceKm
		}
	}

	minutes := c.EstimateMinutes(remainingKm, c.cfg.Factor(vehicle))
	return ETAEstimate{
		Minutes:   minutes,
		ArrivalAt: c.clock.Now().Add(time.Duration(minutes * float64(time.Minute))),
	}, true
}
