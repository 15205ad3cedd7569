package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
)

// Tracker ingests live location pings for in-progress assignments, updates
// route progress and surfaces anomalies. Anomaly detections are observability
// signals: they are recorded, never thrown, and never move the state machine.
type Tracker struct {
	assignments ports.AssignmentRepository
	tracking    ports.TrackingRepository
	drivers     ports.DriverRepository
	locations   ports.LocationCache
	eta         *ETACalculator
	clock       ports.Clock
	cfg         config.Dispatch

	locks *stripedLocks
}

func NewTracker(
	assignments ports.AssignmentRepository,
	tracking ports.TrackingRepository,
	drivers ports.DriverRepository,
	locations ports.LocationCache,
	eta *ETACalculator,
	clock ports.Clock,
	cfg config.Dispatch,
) *Tracker {
	return &Tracker{
		assignments: assignments,
		tracking:    tracking,
		drivers:     drivers,
		locations:   locations,
		eta:         eta,
		clock:       clock,
		cfg:         cfg,
		locks:       newStripedLocks(64),
	}
}

// AssignmentETA predicts the delivery arrival for an in-progress assignment
// from the driver's freshest known position. The bool result is false when
// the estimate is unavailable (no driver, no route, or no usable position).
func (t *Tracker) AssignmentETA(ctx context.Context, assignmentID string) (ETAEstimate, bool, error) {
	a, err := t.assignments.Get(ctx, assignmentID)
	if err != nil {
		return ETAEstimate{}, false, fmt.Errorf("assignment eta for %s: %w", assignmentID, err)
	}
	if a.DriverID == "" {
		return ETAEstimate{}, false, nil
	}

	driver, err := t.drivers.Get(ctx, a.DriverID)
	if err != nil {
		return ETAEstimate{}, false, fmt.Errorf("assignment eta for %s: %w", assignmentID, err)
	}

	pos, hasPos := driver.Position, driver.HasPosition
	if t.locations != nil {
		if loc, ok, cerr := t.locations.Get(ctx, driver.ID); cerr == nil && ok {
			if t.cfg.LocationTTL <= 0 || t.clock.Now().Sub(loc.RecordedAt) <= t.cfg.LocationTTL {
				pos, hasPos = loc.Position, true
			}
		}
	}

	est, ok := t.eta.CustomerETA(a, pos, hasPos, driver.Vehicle)
	return est, ok, nil
}

// Ingest appends a tracking event, recomputes percent-complete along the
// planned route (clamped to [0,100] and non-decreasing while on route), and
// runs the anomaly detections.
func (t *Tracker) Ingest(ctx context.Context, assignmentID string, point domain.Coordinates, at time.Time) (_ *domain.Progress, err error) {
	defer obs.Time(ctx, "tracker.Ingest")(&err)

	if err := point.Validate(); err != nil {
		return nil, fmt.Errorf("ingest location for %s: %w", assignmentID, err)
	}
	if at.IsZero() {
		at = t.clock.Now()
	}

	unlock := t.locks.lock(assignmentID)
	defer unlock()

	a, err := t.assignments.Get(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("ingest location for %s: %w", assignmentID, err)
	}
	if a.Status.IsTerminal() {
		return nil, fmt.Errorf("ingest location for %s: status %s: %w", assignmentID, a.Status, domain.ErrStaleResponse)
	}

	event := &domain.TrackingEvent{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		Position:     point,
		RecordedAt:   at,
		CreatedAt:    t.clock.Now(),
	}
	if err := t.tracking.AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("ingest location for %s: append event: %w", assignmentID, err)
	}

	t.publishPosition(ctx, a.DriverID, point, at)

	progress := t.computeProgress(a, point, at)
	a.Progress = progress
	a.UpdatedAt = t.clock.Now()
	if err := t.assignments.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("ingest location for %s: %w", assignmentID, err)
	}

	t.detectAnomalies(ctx, a, point, at)
	return progress, nil
}

// HandleException records an explicit operator- or system-raised exception.
// It is always persisted, never silently dropped, and does not touch the
// assignment's status.
func (t *Tracker) HandleException(ctx context.Context, assignmentID string, typ domain.ExceptionType, details string) (_ *domain.DeliveryException, err error) {
	defer obs.Time(ctx, "tracker.HandleException")(&err)

	if !typ.IsValid() {
		return nil, &domain.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown exception type %q", typ)}
	}
	if _, err := t.assignments.Get(ctx, assignmentID); err != nil {
		return nil, fmt.Errorf("handle exception for %s: %w", assignmentID, err)
	}

	e := &domain.DeliveryException{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		Type:         typ,
		Details:      details,
		DetectedAt:   t.clock.Now(),
	}
	if err := t.tracking.AppendException(ctx, e); err != nil {
		return nil, fmt.Errorf("handle exception for %s: %w", assignmentID, err)
	}
	return e, nil
}

// Exceptions returns the recorded exceptions for an assignment.
func (t *Tracker) Exceptions(ctx context.Context, assignmentID string) ([]*domain.DeliveryException, error) {
	return t.tracking.ListExceptions(ctx, assignmentID)
}

// publishPosition keeps the live caches in sync; failures degrade silently
// because position freshness is advisory.
func (t *Tracker) publishPosition(ctx context.Context, driverID string, point domain.Coordinates, at time.Time) {
	if driverID == "" {
		return
	}
	if t.locations != nil {
		if err := t.locations.Set(ctx, driverID, ports.CachedLocation{Position: point, RecordedAt: at}); err != nil {
			log.Printf("op=tracker.publish driver=%s cache_err=%v", driverID, err)
		}
	}
	if err := t.drivers.UpdateLocation(ctx, driverID, point); err != nil {
		log.Printf("op=tracker.publish driver=%s persist_err=%v", driverID, err)
	}
}

func (t *Tracker) computeProgress(a *domain.Assignment, point domain.Coordinates, at time.Time) *domain.Progress {
	progress := &domain.Progress{Position: point, UpdatedAt: at}
	if a.Progress != nil {
		progress.PercentComplete = a.Progress.PercentComplete
	}

	if a.Route == nil || a.Route.TotalDistanceKm <= 0 {
		return progress
	}

	_, traveledKm, deviationKm := projectOntoRoute(a.Route, point)
	pct := traveledKm / a.Route.TotalDistanceKm * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	// GPS noise projects slightly backwards; hold the high-water mark while
	// the driver is on route. An off-route driver may genuinely regress.
	if deviationKm <= t.cfg.OffRouteThresholdKm && pct < progress.PercentComplete {
		pct = progress.PercentComplete
	}
	progress.PercentComplete = pct
	return progress
}

// detectAnomalies raises stalled / off_route / missed_window exceptions. Each
// type is recorded once per assignment to avoid flooding on every ping.
func (t *Tracker) detectAnomalies(ctx context.Context, a *domain.Assignment, point domain.Coordinates, at time.Time) {
	existing, err := t.tracking.ListExceptions(ctx, a.ID)
	if err != nil {
		log.Printf("op=tracker.detect assignment=%s list_err=%v", a.ID, err)
		return
	}
	seen := make(map[domain.ExceptionType]bool, len(existing))
	for _, e := range existing {
		seen[e.Type] = true
	}

	if !seen[domain.ExceptionOffRoute] && a.Route != nil {
		if _, _, deviationKm := projectOntoRoute(a.Route, point); deviationKm > t.cfg.OffRouteThresholdKm {
			t.record(ctx, a.ID, domain.ExceptionOffRoute,
				fmt.Sprintf("position deviates %.2f km from planned route (threshold %.2f km)", deviationKm, t.cfg.OffRouteThresholdKm))
		}
	}

	enRoute := a.Status == domain.StatusEnRouteToPickup || a.Status == domain.StatusEnRouteToDelivery
	if !seen[domain.ExceptionStalled] && enRoute {
		if stalledFor, ok := t.stalledDuration(ctx, a.ID, point, at); ok && stalledFor > t.cfg.StalledWindow {
			t.record(ctx, a.ID, domain.ExceptionStalled,
				fmt.Sprintf("no meaningful movement for %s (window %s)", stalledFor.Round(time.Second), t.cfg.StalledWindow))
		}
	}

	if !seen[domain.ExceptionMissedWindow] && a.Status != domain.StatusDelivered {
		if eta, ok := plannedArrival(a); ok && at.After(eta.Add(t.cfg.MissedWindowGrace)) {
			t.record(ctx, a.ID, domain.ExceptionMissedWindow,
				fmt.Sprintf("still undelivered %s past the %s ETA", at.Sub(eta).Round(time.Second), eta.Format(time.RFC3339)))
		}
	}
}

// stalledDuration reports how long the driver has been within the movement
// epsilon of the current position, walking the event history backwards.
func (t *Tracker) stalledDuration(ctx context.Context, assignmentID string, point domain.Coordinates, at time.Time) (time.Duration, bool) {
	events, err := t.tracking.ListEvents(ctx, assignmentID)
	if err != nil || len(events) == 0 {
		return 0, false
	}

	// Events are ordered oldest first; find the most recent event that shows
	// real movement relative to the current position.
	stationarySince := events[0].RecordedAt
	for i := len(events) - 1; i >= 0; i-- {
		if geo.DistanceKm(events[i].Position, point) > t.cfg.StalledEpsilonKm {
			return at.Sub(events[i].RecordedAt), true
		}
		stationarySince = events[i].RecordedAt
	}
	return at.Sub(stationarySince), true
}

// plannedArrival derives the absolute delivery ETA from the accepted offer
// time plus the route's cumulative minutes at this order's delivery stop.
func plannedArrival(a *domain.Assignment) (time.Time, bool) {
	if a.Route == nil || a.RouteStopIndex < 0 || a.RouteStopIndex >= len(a.Route.Stops) {
		return time.Time{}, false
	}
	var acceptedAt *time.Time
	for _, o := range a.Offers {
		if o.Outcome == domain.OfferAccepted && o.RespondedAt != nil {
			acceptedAt = o.RespondedAt
		}
	}
	if acceptedAt == nil {
		return time.Time{}, false
	}
	minutes := a.Route.Stops[a.RouteStopIndex].CumulativeMinutes
	return acceptedAt.Add(time.Duration(minutes * float64(time.Minute))), true
}

func (t *Tracker) record(ctx context.Context, assignmentID string, typ domain.ExceptionType, details string) {
	e := &domain.DeliveryException{
		ID:           uuid.NewString(),
		AssignmentID: assignmentID,
		Type:         typ,
		Details:      details,
		DetectedAt:   t.clock.Now(),
	}
	if err := t.tracking.AppendException(ctx, e); err != nil {
		log.Printf("op=tracker.record assignment=%s type=%s err=%v", assignmentID, typ, err)
	}
}
