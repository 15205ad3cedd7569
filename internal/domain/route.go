package domain

type WaypointKind string

const (
	WaypointPickup   WaypointKind = "pickup"
	WaypointDelivery WaypointKind = "delivery"
)

// Waypoint is a single stop candidate, tagged by type and originating order
// so batched routes can derive per-order positions from one shared plan.
type Waypoint struct {
	OrderID  string       `json:"order_id"`
	Kind     WaypointKind `json:"kind"`
	Label    string       `json:"label"`
	Position Coordinates  `json:"position"`
}

// RouteStop is a waypoint placed in a planned route, with cumulative metrics
// measured from the route origin.
type RouteStop struct {
	Waypoint          Waypoint `json:"waypoint"`
	LegDistanceKm     float64  `json:"leg_distance_km"`
	CumulativeKm      float64  `json:"cumulative_km"`
	CumulativeMinutes float64  `json:"cumulative_minutes"`
}

// RoutePlan is the ordered output of the route optimizer. It is immutable
// planning data and contains no side effects.
type RoutePlan struct {
	Origin          Coordinates `json:"origin"`
	Stops           []RouteStop `json:"stops"`
	TotalDistanceKm float64     `json:"total_distance_km"`
	TotalMinutes    float64     `json:"total_minutes"`
}

// DeliveryStopIndex returns the index of orderID's delivery stop, or -1.
func (p *RoutePlan) DeliveryStopIndex(orderID string) int {
	for i, s := range p.Stops {
		if s.Waypoint.OrderID == orderID && s.Waypoint.Kind == WaypointDelivery {
			return i
		}
	}
	return -1
}
