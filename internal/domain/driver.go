package domain

import "time"

type VehicleType string

const (
	VehicleBike    VehicleType = "bike"
	VehicleScooter VehicleType = "scooter"
	VehicleCar     VehicleType = "car"
)

// WorkingZone is a circular region a driver serves, with an optional
// operating-hours window and a priority rank used when multiple drivers
// compete for the same order. Radius must be positive.
type WorkingZone struct {
	ID        string
	DriverID  string
	Center    Coordinates
	RadiusKm  float64
	HoursFrom int // hour of day [0,24); HoursFrom == HoursTo means always open
	HoursTo   int
	Priority  int // lower wins
}

// ActiveAt reports whether the zone's operating window covers t.
// Windows may wrap past midnight (e.g. 18 -> 2).
func (z WorkingZone) ActiveAt(t time.Time) bool {
	if z.HoursFrom == z.HoursTo {
		return true
	}
	h := t.Hour()
	if z.HoursFrom < z.HoursTo {
		return h >= z.HoursFrom && h < z.HoursTo
	}
	return h >= z.HoursFrom || h < z.HoursTo
}

// Driver is a courier known to the dispatch engine. Position reflects the
// last persisted ping; a fresher value may exist in the location cache.
type Driver struct {
	ID          string
	Name        string
	Vehicle     VehicleType
	Position    Coordinates
	HasPosition bool
	IsOnline    bool
	IsAvailable bool
	IsActive    bool
	Rating      float64
	Zones       []WorkingZone

	// OfferedAssignmentID is the "currently offered" marker claimed before a
	// driver receives an offer, so two coordinators cannot offer the same
	// driver at once.
	OfferedAssignmentID string

	LastAssignedAt time.Time
	Completed      int
	Cancelled      int
}
