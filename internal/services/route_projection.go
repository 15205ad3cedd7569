package services

import (
	"math"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
)

// projectOntoRoute finds the nearest point of the planned route polyline to
// pos. It returns the segment index (segment i runs from stop i-1 to stop i,
// with segment 0 starting at the origin), the distance traveled along the
// route up to the projected point, and the deviation from the route.
func projectOntoRoute(plan *domain.RoutePlan, pos domain.Coordinates) (segIdx int, traveledKm, deviationKm float64) {
	deviationKm = math.MaxFloat64

	start := plan.Origin
	cumBefore := 0.0

	for i, stop := range plan.Stops {
		nearest, dev := geo.NearestPointOnSegment(pos, start, stop.Waypoint.Position)
		if dev < deviationKm {
			deviationKm = dev
			segIdx = i
			traveledKm = cumBefore + geo.DistanceKm(start, nearest)
		}
		cumBefore = stop.CumulativeKm
		start = stop.Waypoint.Position
	}

	return segIdx, traveledKm, deviationKm
}
