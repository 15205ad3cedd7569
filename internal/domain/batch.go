package domain

import "time"

// Batch groups assignments that share one driver run and one combined route.
// Every member assignment has the same driver and a monotonically increasing
// position within the shared route.
type Batch struct {
	ID            string
	DriverID      string
	AssignmentIDs []string
	Route         *RoutePlan
	CreatedAt     time.Time
}
