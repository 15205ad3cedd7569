package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
)

type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

type AssignOutcomeKind string

const (
	OutcomeAssigned           AssignOutcomeKind = "assigned"
	OutcomeNoDriversAvailable AssignOutcomeKind = "no_drivers_available"
)

// AssignOutcome is the business result of an assign call. "No drivers
// available" is a legitimate state, not an error; callers branch on Outcome.
type AssignOutcome struct {
	Outcome    AssignOutcomeKind
	Assignment *domain.Assignment
}

// Coordinator drives an order from "needs a driver" to "delivered" (or
// "failed") through the assignment state machine, escalating to the next
// candidate on decline or timeout without restarting the pipeline.
type Coordinator struct {
	orders      ports.OrderRepository
	drivers     ports.DriverRepository
	assignments ports.AssignmentRepository
	directory   *DriverDirectory
	optimizer   *RouteOptimizer
	eta         *ETACalculator
	notifier    ports.Notifier
	clock       ports.Clock
	cfg         config.Dispatch

	locks *stripedLocks
}

func NewCoordinator(
	orders ports.OrderRepository,
	drivers ports.DriverRepository,
	assignments ports.AssignmentRepository,
	directory *DriverDirectory,
	optimizer *RouteOptimizer,
	eta *ETACalculator,
	notifier ports.Notifier,
	clock ports.Clock,
	cfg config.Dispatch,
) *Coordinator {
	return &Coordinator{
		orders:      orders,
		drivers:     drivers,
		assignments: assignments,
		directory:   directory,
		optimizer:   optimizer,
		eta:         eta,
		notifier:    notifier,
		clock:       clock,
		cfg:         cfg,
		locks:       newStripedLocks(64),
	}
}

// Assign finds the best candidate for the order's pickup point and creates a
// single assignment in the offered state. The driver's offered marker is
// claimed atomically, so two concurrent assigns never offer the same driver.
func (c *Coordinator) Assign(ctx context.Context, orderID string) (_ *AssignOutcome, err error) {
	defer obs.Time(ctx, "coordinator.Assign")(&err)

	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("assign order %s: %w", orderID, err)
	}

	// Serialize per order: the active-assignment check and the create below
	// must not interleave with a concurrent assign for the same order.
	unlock := c.locks.lock(orderID)
	defer unlock()

	if _, err := c.assignments.GetActiveByOrder(ctx, orderID); err == nil {
		return nil, fmt.Errorf("assign order %s: %w", orderID, domain.ErrActiveAssignmentExists)
	} else if !errors.Is(err, domain.ErrAssignmentNotFound) {
		return nil, fmt.Errorf("assign order %s: check active assignment: %w", orderID, err)
	}

	candidates, err := c.directory.FindCandidates(ctx, order.Pickup, DirectoryFilters{})
	if err != nil {
		return nil, fmt.Errorf("assign order %s: %w", orderID, err)
	}

	now := c.clock.Now()
	a := &domain.Assignment{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	claimed := c.claimNextCandidate(ctx, a.ID, candidates)
	if claimed == nil {
		return &AssignOutcome{Outcome: OutcomeNoDriversAvailable}, nil
	}

	c.openOffer(a, claimed.Driver.ID, now)
	a.Status = domain.StatusOffered

	if err := c.assignments.Create(ctx, a); err != nil {
		if cerr := c.drivers.ClearOffer(ctx, claimed.Driver.ID, a.ID); cerr != nil {
			log.Printf("op=assign assignment=%s driver=%s clear_offer_err=%v", a.ID, claimed.Driver.ID, cerr)
		}
		return nil, fmt.Errorf("assign order %s: create assignment: %w", orderID, err)
	}

	c.notify(ctx, ports.RecipientDriver, claimed.Driver.ID, "offer_received", map[string]any{
		"assignment_id": a.ID,
		"order_id":      orderID,
		"pickup":        order.Pickup,
		"deadline":      a.ResponseDeadline,
	})

	return &AssignOutcome{Outcome: OutcomeAssigned, Assignment: a}, nil
}

// Respond applies a driver's accept or decline for the currently offered
// assignment. Stale responses (wrong driver, expired deadline, or the
// assignment moved on) return domain.ErrStaleResponse and change nothing.
// For batched assignments the decision applies to every member of the run.
func (c *Coordinator) Respond(ctx context.Context, assignmentID, driverID string, decision Decision, reason string) (_ *domain.Assignment, err error) {
	defer obs.Time(ctx, "coordinator.Respond")(&err)

	if decision != DecisionAccept && decision != DecisionDecline {
		return nil, &domain.ValidationError{Field: "decision", Reason: "must be accept or decline"}
	}
	if decision == DecisionDecline && reason == "" {
		return nil, &domain.ValidationError{Field: "reason", Reason: "a decline must carry a reason"}
	}

	unlock, a, err := c.lockAndLoad(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("respond to offer %s: %w", assignmentID, err)
	}
	defer unlock()

	now := c.clock.Now()
	offer := a.CurrentOffer()
	if a.Status != domain.StatusOffered || offer == nil || a.DriverID != driverID || now.After(a.ResponseDeadline) {
		return nil, fmt.Errorf("respond to offer %s: driver %s: %w", assignmentID, driverID, domain.ErrStaleResponse)
	}

	members, err := c.loadMembers(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("respond to offer %s: %w", assignmentID, err)
	}

	if decision == DecisionAccept {
		if err := c.accept(ctx, members, driverID, now); err != nil {
			return nil, fmt.Errorf("respond to offer %s: %w", assignmentID, err)
		}
		return a, nil
	}

	c.closeOffer(members, domain.OfferDeclined, reason, now)
	if err := c.reofferOrFail(ctx, members, driverID); err != nil {
		return nil, fmt.Errorf("respond to offer %s: %w", assignmentID, err)
	}
	return a, nil
}

// SweepExpiredOffers processes every offered assignment whose response
// deadline has passed as an implicit decline with reason "timeout". It is
// invoked periodically, never by the request path.
func (c *Coordinator) SweepExpiredOffers(ctx context.Context) (err error) {
	defer obs.Time(ctx, "coordinator.SweepExpiredOffers")(&err)

	expired, err := c.assignments.ListExpiredOffers(ctx, c.clock.Now())
	if err != nil {
		return fmt.Errorf("sweep expired offers: %w", err)
	}

	for _, stale := range expired {
		if err := c.expireOne(ctx, stale.ID); err != nil {
			log.Printf("op=sweep assignment=%s err=%v", stale.ID, err)
		}
	}
	return nil
}

func (c *Coordinator) expireOne(ctx context.Context, assignmentID string) error {
	unlock, a, err := c.lockAndLoad(ctx, assignmentID)
	if err != nil {
		return err
	}
	defer unlock()

	now := c.clock.Now()
	// Re-check under the lock: a response may have landed since listing.
	if a.Status != domain.StatusOffered || a.CurrentOffer() == nil || now.Before(a.ResponseDeadline) {
		return nil
	}

	members, err := c.loadMembers(ctx, a)
	if err != nil {
		return err
	}

	driverID := a.DriverID
	c.closeOffer(members, domain.OfferTimedOut, "timeout", now)
	return c.reofferOrFail(ctx, members, driverID)
}

// Advance records driver-reported progress (en route to pickup, picked up, en
// route to delivery, delivered). Transitions are validated by the FSM table;
// a delivered assignment updates the driver's stats and frees the driver.
func (c *Coordinator) Advance(ctx context.Context, assignmentID, driverID string, next domain.AssignmentStatus) (_ *domain.Assignment, err error) {
	defer obs.Time(ctx, "coordinator.Advance")(&err)

	switch next {
	case domain.StatusEnRouteToPickup, domain.StatusPickedUp, domain.StatusEnRouteToDelivery, domain.StatusDelivered:
	default:
		return nil, &domain.ValidationError{Field: "status", Reason: fmt.Sprintf("%q is not a driver-reportable status", next)}
	}

	unlock, a, err := c.lockAndLoad(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("advance assignment %s: %w", assignmentID, err)
	}
	defer unlock()

	if a.DriverID != driverID {
		return nil, fmt.Errorf("advance assignment %s: driver %s: %w", assignmentID, driverID, domain.ErrStaleResponse)
	}
	if !domain.CanTransition(a.Status, next) {
		return nil, fmt.Errorf("advance assignment %s: %s -> %s: %w", assignmentID, a.Status, next, domain.ErrIllegalTransition)
	}

	now := c.clock.Now()
	a.Status = next
	a.UpdatedAt = now
	if next == domain.StatusDelivered {
		a.ResolvedAt = &now
	}

	if err := c.assignments.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("advance assignment %s: %w", assignmentID, err)
	}

	if next == domain.StatusDelivered {
		c.releaseDriver(ctx, a, true)
		c.notify(ctx, ports.RecipientCustomer, a.OrderID, "order_delivered", map[string]any{
			"assignment_id": a.ID,
			"delivered_at":  now,
		})
	}
	return a, nil
}

// Cancel moves a non-terminal assignment to cancelled and notifies both
// parties. A batch member cancels the whole run with it: one driver, one
// decision. In-flight work is not undone; no new transitions are accepted
// afterwards.
func (c *Coordinator) Cancel(ctx context.Context, assignmentID, reason string) (_ *domain.Assignment, err error) {
	defer obs.Time(ctx, "coordinator.Cancel")(&err)

	unlock, a, err := c.lockAndLoad(ctx, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("cancel assignment %s: %w", assignmentID, err)
	}
	defer unlock()

	if a.Status.IsTerminal() {
		return nil, fmt.Errorf("cancel assignment %s: status %s: %w", assignmentID, a.Status, domain.ErrIllegalTransition)
	}

	members, err := c.loadMembers(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("cancel assignment %s: %w", assignmentID, err)
	}

	now := c.clock.Now()
	driverID := a.DriverID

	for _, m := range members {
		if offer := m.CurrentOffer(); offer != nil {
			offer.Outcome = domain.OfferRevoked
			offer.Reason = reason
			offer.RespondedAt = &now
		}
		m.Status = domain.StatusCancelled
		m.UpdatedAt = now
		m.ResolvedAt = &now
		if err := c.assignments.Update(ctx, m); err != nil {
			return nil, fmt.Errorf("cancel assignment %s: member %s: %w", assignmentID, m.ID, err)
		}
	}

	if driverID != "" {
		c.releaseDriver(ctx, a, false)
		c.notify(ctx, ports.RecipientDriver, driverID, "assignment_cancelled", map[string]any{
			"assignment_id": a.ID,
			"reason":        reason,
		})
	}
	for _, m := range members {
		c.notify(ctx, ports.RecipientCustomer, m.OrderID, "assignment_cancelled", map[string]any{
			"assignment_id": m.ID,
			"reason":        reason,
		})
	}
	return a, nil
}

// --- internals ---

// lockAndLoad serializes on the batch id when the assignment belongs to a
// run, so batch members cannot be mutated concurrently.
func (c *Coordinator) lockAndLoad(ctx context.Context, assignmentID string) (func(), *domain.Assignment, error) {
	peek, err := c.assignments.Get(ctx, assignmentID)
	if err != nil {
		return nil, nil, err
	}

	key := assignmentID
	if peek.BatchID != "" {
		key = peek.BatchID
	}
	unlock := c.locks.lock(key)

	a, err := c.assignments.Get(ctx, assignmentID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return unlock, a, nil
}

// loadMembers resolves the set of assignments a batch decision applies to.
// Members that already reached a terminal state are excluded: an accept,
// decline or cancel on the run must never move a finished member again. The
// caller's loaded copy stays authoritative for its own id.
func (c *Coordinator) loadMembers(ctx context.Context, a *domain.Assignment) ([]*domain.Assignment, error) {
	if a.BatchID == "" {
		return []*domain.Assignment{a}, nil
	}
	all, err := c.assignments.ListByBatch(ctx, a.BatchID)
	if err != nil {
		return nil, fmt.Errorf("load batch %s: %w", a.BatchID, err)
	}
	members := make([]*domain.Assignment, 0, len(all))
	for _, m := range all {
		if m.ID == a.ID {
			members = append(members, a)
			continue
		}
		if m.Status.IsTerminal() {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

// claimNextCandidate walks the ranked candidates and claims the first whose
// offered marker is free. Losing a claim race just moves to the next one.
// claimID is the assignment id, or the batch id for shared runs.
func (c *Coordinator) claimNextCandidate(ctx context.Context, claimID string, candidates []Candidate) *Candidate {
	for i := range candidates {
		ok, err := c.drivers.MarkOffered(ctx, candidates[i].Driver.ID, claimID)
		if err != nil {
			log.Printf("op=claim driver=%s claim=%s err=%v", candidates[i].Driver.ID, claimID, err)
			continue
		}
		if ok {
			return &candidates[i]
		}
	}
	return nil
}

// claimID keys the driver's offered marker: batch id for shared runs so one
// claim covers every member, otherwise the assignment id.
func claimID(a *domain.Assignment) string {
	if a.BatchID != "" {
		return a.BatchID
	}
	return a.ID
}

func (c *Coordinator) openOffer(a *domain.Assignment, driverID string, now time.Time) {
	a.DriverID = driverID
	a.OfferedAt = now
	a.ResponseDeadline = now.Add(c.cfg.OfferResponseWindow)
	a.UpdatedAt = now
	a.Offers = append(a.Offers, domain.OfferRecord{
		DriverID:  driverID,
		OfferedAt: now,
		Deadline:  a.ResponseDeadline,
		Outcome:   domain.OfferPending,
	})
}

func (c *Coordinator) closeOffer(members []*domain.Assignment, outcome domain.OfferOutcome, reason string, now time.Time) {
	for _, m := range members {
		if offer := m.CurrentOffer(); offer != nil {
			offer.Outcome = outcome
			offer.Reason = reason
			offer.RespondedAt = &now
		}
	}
}

func (c *Coordinator) accept(ctx context.Context, members []*domain.Assignment, driverID string, now time.Time) error {
	driver, err := c.drivers.Get(ctx, driverID)
	if err != nil {
		return fmt.Errorf("accept: %w", err)
	}

	for _, m := range members {
		if offer := m.CurrentOffer(); offer != nil {
			offer.Outcome = domain.OfferAccepted
			offer.RespondedAt = &now
		}

		// Batched members already share a route computed at batch time;
		// single assignments get theirs now, from the driver's position.
		if m.Route == nil {
			plan, perr := c.planForOrder(ctx, m.OrderID, driver)
			if perr != nil {
				return perr
			}
			m.Route = plan
			m.RouteStopIndex = plan.DeliveryStopIndex(m.OrderID)
		}

		m.Status = domain.StatusAccepted
		m.UpdatedAt = now
		if err := c.assignments.Update(ctx, m); err != nil {
			return fmt.Errorf("accept: commit member %s: %w", m.ID, err)
		}
	}

	// The driver is committed to the run: drop them from candidate pools.
	unavailable := false
	if err := c.drivers.UpdateStatus(ctx, driverID, nil, &unavailable); err != nil {
		log.Printf("op=accept driver=%s update_status_err=%v", driverID, err)
	}

	for _, m := range members {
		payload := map[string]any{
			"assignment_id": m.ID,
			"driver_id":     driverID,
		}
		if est, ok := c.eta.CustomerETA(m, driver.Position, driver.HasPosition, driver.Vehicle); ok {
			payload["eta_minutes"] = est.Minutes
			payload["arrival_at"] = est.ArrivalAt
		}
		c.notify(ctx, ports.RecipientCustomer, m.OrderID, "driver_assigned", payload)
	}
	return nil
}

func (c *Coordinator) planForOrder(ctx context.Context, orderID string, driver *domain.Driver) (*domain.RoutePlan, error) {
	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("plan route: %w", err)
	}

	origin := order.Pickup
	if driver.HasPosition {
		origin = driver.Position
	}

	waypoints := []domain.Waypoint{
		{OrderID: orderID, Kind: domain.WaypointPickup, Label: order.BranchName, Position: order.Pickup},
		{OrderID: orderID, Kind: domain.WaypointDelivery, Label: order.CustomerName, Position: order.Delivery},
	}
	plan, err := c.optimizer.Optimize(origin, waypoints, c.cfg.Factor(driver.Vehicle))
	if err != nil {
		return nil, fmt.Errorf("plan route: %w", err)
	}
	return plan, nil
}

// reofferOrFail releases the declining driver and escalates the offer to the
// next candidate, excluding everyone already offered. Exhausted candidates or
// too many offers finalize the assignment as failed, a business outcome the
// caller observes through the assignment state.
func (c *Coordinator) reofferOrFail(ctx context.Context, members []*domain.Assignment, prevDriverID string) error {
	primary := members[0]
	now := c.clock.Now()

	if prevDriverID != "" {
		if err := c.drivers.ClearOffer(ctx, prevDriverID, claimID(primary)); err != nil {
			log.Printf("op=reoffer driver=%s assignment=%s clear_offer_err=%v", prevDriverID, primary.ID, err)
		}
	}

	var next *Candidate
	if len(primary.Offers) < c.cfg.MaxOffers {
		point, err := c.reofferPoint(ctx, primary)
		if err != nil {
			return err
		}

		candidates, err := c.directory.FindCandidates(ctx, point, DirectoryFilters{
			ExcludeDriverIDs: primary.OfferedDriverIDs(),
		})
		if err != nil {
			return err
		}
		next = c.claimNextCandidate(ctx, claimID(primary), candidates)
	}

	if next == nil {
		for _, m := range members {
			m.Status = domain.StatusFailed
			m.DriverID = ""
			m.UpdatedAt = now
			m.ResolvedAt = &now
			if err := c.assignments.Update(ctx, m); err != nil {
				return fmt.Errorf("fail member %s: %w", m.ID, err)
			}
			c.notify(ctx, ports.RecipientCustomer, m.OrderID, "assignment_failed", map[string]any{
				"assignment_id": m.ID,
				"reason":        "candidates_exhausted",
			})
		}
		return nil
	}

	for _, m := range members {
		c.openOffer(m, next.Driver.ID, now)
		// offered -> offered: the same record is re-targeted, never cloned.
		m.Status = domain.StatusOffered
		if err := c.assignments.Update(ctx, m); err != nil {
			return fmt.Errorf("re-offer member %s: %w", m.ID, err)
		}
	}

	c.notify(ctx, ports.RecipientDriver, next.Driver.ID, "offer_received", map[string]any{
		"assignment_id": primary.ID,
		"order_id":      primary.OrderID,
		"deadline":      primary.ResponseDeadline,
	})
	return nil
}

// reofferPoint is the pickup location used to search replacement candidates.
func (c *Coordinator) reofferPoint(ctx context.Context, a *domain.Assignment) (domain.Coordinates, error) {
	if a.Route != nil {
		for _, s := range a.Route.Stops {
			if s.Waypoint.Kind == domain.WaypointPickup {
				return s.Waypoint.Position, nil
			}
		}
	}
	order, err := c.orders.Get(ctx, a.OrderID)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("re-offer point: %w", err)
	}
	return order.Pickup, nil
}

// releaseDriver frees the driver after a terminal transition. For batch
// members the marker is held until every member of the run is terminal.
func (c *Coordinator) releaseDriver(ctx context.Context, a *domain.Assignment, completed bool) {
	if a.DriverID == "" {
		return
	}

	if a.BatchID != "" {
		members, err := c.assignments.ListByBatch(ctx, a.BatchID)
		if err != nil {
			log.Printf("op=release driver=%s batch=%s err=%v", a.DriverID, a.BatchID, err)
			return
		}
		for _, m := range members {
			if m.ID != a.ID && !m.Status.IsTerminal() {
				// Run still in progress: record the outcome, keep the driver.
				if err := c.drivers.RecordOutcome(ctx, a.DriverID, completed); err != nil {
					log.Printf("op=release driver=%s record_outcome_err=%v", a.DriverID, err)
				}
				return
			}
		}
	}

	if err := c.drivers.RecordOutcome(ctx, a.DriverID, completed); err != nil {
		log.Printf("op=release driver=%s record_outcome_err=%v", a.DriverID, err)
	}
	if err := c.drivers.ClearOffer(ctx, a.DriverID, claimID(a)); err != nil {
		log.Printf("op=release driver=%s clear_offer_err=%v", a.DriverID, err)
	}
	available := true
	if err := c.drivers.UpdateStatus(ctx, a.DriverID, nil, &available); err != nil {
		log.Printf("op=release driver=%s update_status_err=%v", a.DriverID, err)
	}
}

// notify is fire-and-forget: notifier outages must never block the state
// machine, so failures are logged and swallowed.
func (c *Coordinator) notify(ctx context.Context, recipient ports.RecipientType, recipientID, event string, payload map[string]any) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, recipient, recipientID, event, payload); err != nil {
		log.Printf("op=notify recipient=%s/%s event=%s err=%v", recipient, recipientID, event, err)
	}
}
