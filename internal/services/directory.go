package services

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
	"delivery-dispatch-service/internal/ports"
)

// Candidate is a ranked driver able to serve a point right now.
type Candidate struct {
	Driver       *domain.Driver
	Position     domain.Coordinates
	DistanceKm   float64
	ZonePriority int
}

// DirectoryFilters narrow a candidate search.
type DirectoryFilters struct {
	Vehicle          domain.VehicleType
	ZoneID           string
	MaxDistanceKm    float64
	ExcludeDriverIDs []string
}

// DriverDirectory answers "which drivers can serve this point right now",
// ranked by the dispatch tie-break policy.
type DriverDirectory struct {
	drivers   ports.DriverRepository
	locations ports.LocationCache
	clock     ports.Clock
	cfg       config.Dispatch
}

func NewDriverDirectory(drivers ports.DriverRepository, locations ports.LocationCache, clock ports.Clock, cfg config.Dispatch) *DriverDirectory {
	return &DriverDirectory{drivers: drivers, locations: locations, clock: clock, cfg: cfg}
}

// FindCandidates returns eligible drivers sorted by distance ascending, with
// ties broken by zone priority, then highest rating, then longest idle time.
// An empty result is a legitimate business state, not an error.
func (d *DriverDirectory) FindCandidates(ctx context.Context, point domain.Coordinates, f DirectoryFilters) ([]Candidate, error) {
	if err := point.Validate(); err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	drivers, err := d.drivers.ListAvailable(ctx, ports.DriverFilters{Vehicle: f.Vehicle, ZoneID: f.ZoneID})
	if err != nil {
		return nil, fmt.Errorf("find candidates: list available drivers: %w", err)
	}

	excluded := make(map[string]struct{}, len(f.ExcludeDriverIDs))
	for _, id := range f.ExcludeDriverIDs {
		excluded[id] = struct{}{}
	}

	now := d.clock.Now()
	candidates := make([]Candidate, 0, len(drivers))

	for _, drv := range drivers {
		if _, skip := excluded[drv.ID]; skip {
			continue
		}
		if f.Vehicle != "" && drv.Vehicle != f.Vehicle {
			continue
		}

		pos, ok := d.currentPosition(ctx, drv, now)
		if !ok {
			continue
		}

		// Bounding-box prefilter before the precise haversine computation.
		// Drivers covered by a working zone have no implicit distance cap,
		// so the box only applies when a cutoff does.
		cutoff := f.MaxDistanceKm
		if cutoff <= 0 && len(drv.Zones) == 0 {
			cutoff = d.cfg.MaxCandidateDistanceKm
		}
		if cutoff > 0 && !geo.InBoundingBox(point, pos, cutoff) {
			continue
		}

		dist := geo.DistanceKm(point, pos)
		if cutoff > 0 && dist > cutoff {
			continue
		}

		priority, eligible := zoneEligibility(drv, point, now, f.ZoneID)
		if !eligible {
			continue
		}

		candidates = append(candidates, Candidate{
			Driver:       drv,
			Position:     pos,
			DistanceKm:   dist,
			ZonePriority: priority,
		})
	}

	slices.SortFunc(candidates, compareCandidates)
	return candidates, nil
}

// currentPosition prefers a fresh cached position over the persisted row.
// Cache errors degrade to the persisted position rather than failing the
// search.
func (d *DriverDirectory) currentPosition(ctx context.Context, drv *domain.Driver, now time.Time) (domain.Coordinates, bool) {
	if d.locations != nil {
		if loc, ok, err := d.locations.Get(ctx, drv.ID); err == nil && ok {
			if d.cfg.LocationTTL <= 0 || now.Sub(loc.RecordedAt) <= d.cfg.LocationTTL {
				return loc.Position, true
			}
		}
	}
	if drv.HasPosition {
		return drv.Position, true
	}
	return domain.Coordinates{}, false
}

// zoneEligibility reports whether point falls inside at least one of the
// driver's active working zones, and with which priority. Drivers without
// zones rely on the global distance rule already applied by the caller.
func zoneEligibility(drv *domain.Driver, point domain.Coordinates, now time.Time, zoneID string) (int, bool) {
	if len(drv.Zones) == 0 {
		return math.MaxInt32, zoneID == ""
	}

	best := math.MaxInt32
	found := false
	for _, z := range drv.Zones {
		if zoneID != "" && z.ID != zoneID {
			continue
		}
		if z.RadiusKm <= 0 || !z.ActiveAt(now) {
			continue
		}
		if geo.DistanceKm(z.Center, point) > z.RadiusKm {
			continue
		}
		found = true
		if z.Priority < best {
			best = z.Priority
		}
	}
	return best, found
}

func compareCandidates(a, b Candidate) int {
	if a.DistanceKm != b.DistanceKm {
		if a.DistanceKm < b.DistanceKm {
			return -1
		}
		return 1
	}
	if a.ZonePriority != b.ZonePriority {
		return a.ZonePriority - b.ZonePriority
	}
	if a.Driver.Rating != b.Driver.Rating {
		if a.Driver.Rating > b.Driver.Rating {
			return -1
		}
		return 1
	}
	// Fairness: longest idle first, i.e. earliest last assignment.
	if !a.Driver.LastAssignedAt.Equal(b.Driver.LastAssignedAt) {
		if a.Driver.LastAssignedAt.Before(b.Driver.LastAssignedAt) {
			return -1
		}
		return 1
	}
	if a.Driver.ID < b.Driver.ID {
		return -1
	}
	if a.Driver.ID > b.Driver.ID {
		return 1
	}
	return 0
}
