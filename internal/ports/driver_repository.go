package ports

import (
	"context"

	"delivery-dispatch-service/internal/domain"
)

// DriverFilters narrows ListAvailable results at the store level.
type DriverFilters struct {
	Vehicle domain.VehicleType
	ZoneID  string
}

// Port: a boundary for driver records and the "currently offered" marker.
type DriverRepository interface {
	// ListAvailable returns active drivers that are online and available,
	// optionally narrowed by vehicle type or zone id.
	ListAvailable(ctx context.Context, f DriverFilters) ([]*domain.Driver, error)

	Get(ctx context.Context, id string) (*domain.Driver, error)

	// UpdateStatus patches online/available flags.
	UpdateStatus(ctx context.Context, id string, online, available *bool) error

	// UpdateLocation persists a driver's last known position.
	UpdateLocation(ctx context.Context, id string, pos domain.Coordinates) error

	// MarkOffered atomically claims the driver's offered marker for
	// assignmentID. It returns false when the driver is already claimed, so
	// two coordinators cannot both offer the same driver.
	MarkOffered(ctx context.Context, driverID, assignmentID string) (bool, error)

	// ClearOffer releases the marker if it is still held for assignmentID.
	ClearOffer(ctx context.Context, driverID, assignmentID string) error

	// RecordOutcome increments completed/cancelled counters and stamps
	// last_assigned_at after a terminal transition.
	RecordOutcome(ctx context.Context, driverID string, completed bool) error
}
