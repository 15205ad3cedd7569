package ports

import (
	"context"
	"time"

	"delivery-dispatch-service/internal/domain"
)

// CachedLocation is a driver position with the time it was observed.
type CachedLocation struct {
	Position   domain.Coordinates
	RecordedAt time.Time
}

// Port: a short-TTL cache of live driver positions. The persisted driver row
// is the fallback when the cache has no fresher value.
type LocationCache interface {
	Set(ctx context.Context, driverID string, loc CachedLocation) error

	// Get returns the cached location and whether one was present.
	Get(ctx context.Context, driverID string) (CachedLocation, bool, error)
}
