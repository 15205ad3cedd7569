package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"

	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/geo"
	"delivery-dispatch-service/internal/platform/obs"
	"delivery-dispatch-service/internal/ports"
)

// BatchOutcome is the business result of a batch attempt.
type BatchOutcome struct {
	Outcome     AssignOutcomeKind
	Batch       *domain.Batch
	Assignments []*domain.Assignment
}

// BatchPlanner combines two or more compatible pending orders into a single
// driver run with one shared route.
type BatchPlanner struct {
	orders      ports.OrderRepository
	drivers     ports.DriverRepository
	assignments ports.AssignmentRepository
	directory   *DriverDirectory
	optimizer   *RouteOptimizer
	notifier    ports.Notifier
	clock       ports.Clock
	cfg         config.Dispatch

	locks *stripedLocks
}

func NewBatchPlanner(
	orders ports.OrderRepository,
	drivers ports.DriverRepository,
	assignments ports.AssignmentRepository,
	directory *DriverDirectory,
	optimizer *RouteOptimizer,
	notifier ports.Notifier,
	clock ports.Clock,
	cfg config.Dispatch,
) *BatchPlanner {
	return &BatchPlanner{
		orders:      orders,
		drivers:     drivers,
		assignments: assignments,
		directory:   directory,
		optimizer:   optimizer,
		notifier:    notifier,
		clock:       clock,
		cfg:         cfg,
		locks:       newStripedLocks(64),
	}
}

// Batch creates one assignment per order, all sharing a driver, batch id and
// route, each recording its own delivery stop position within the shared
// plan. Batching requires at least two distinct orders with pickups close
// enough to share a run.
func (p *BatchPlanner) Batch(ctx context.Context, orderIDs []string) (_ *BatchOutcome, err error) {
	defer obs.Time(ctx, "batch.Plan")(&err)

	seen := make(map[string]struct{}, len(orderIDs))
	unique := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) < 2 {
		return nil, &domain.ValidationError{Field: "order_ids", Reason: "batching requires at least two distinct orders"}
	}

	orders, err := p.orders.GetByIDs(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("batch orders: %w", err)
	}
	if len(orders) != len(unique) {
		return nil, fmt.Errorf("batch orders: %w", domain.ErrOrderNotFound)
	}

	// Serialize per order: the active-assignment checks and the creates below
	// must not interleave with concurrent assigns or batches sharing an order.
	unlock := p.locks.lockMany(unique)
	defer unlock()

	for _, o := range orders {
		if _, err := p.assignments.GetActiveByOrder(ctx, o.ID); err == nil {
			return nil, fmt.Errorf("batch orders: order %s: %w", o.ID, domain.ErrActiveAssignmentExists)
		} else if !errors.Is(err, domain.ErrAssignmentNotFound) {
			return nil, fmt.Errorf("batch orders: order %s: %w", o.ID, err)
		}
	}

	// Compatibility: every pickup must sit near the anchor pickup.
	anchor := orders[0].Pickup
	for _, o := range orders[1:] {
		if d := geo.DistanceKm(anchor, o.Pickup); d > p.cfg.BatchPickupRadiusKm {
			return nil, &domain.ValidationError{
				Field:  "order_ids",
				Reason: fmt.Sprintf("order %s pickup is %.2f km from the batch origin (max %.2f km)", o.ID, d, p.cfg.BatchPickupRadiusKm),
			}
		}
	}

	candidates, err := p.directory.FindCandidates(ctx, anchor, DirectoryFilters{})
	if err != nil {
		return nil, fmt.Errorf("batch orders: %w", err)
	}

	batchID := uuid.NewString()
	var driver *domain.Driver
	for i := range candidates {
		ok, merr := p.drivers.MarkOffered(ctx, candidates[i].Driver.ID, batchID)
		if merr != nil {
			log.Printf("op=batch.claim driver=%s batch=%s err=%v", candidates[i].Driver.ID, batchID, merr)
			continue
		}
		if ok {
			driver = candidates[i].Driver
			break
		}
	}
	if driver == nil {
		return &BatchOutcome{Outcome: OutcomeNoDriversAvailable}, nil
	}

	waypoints := make([]domain.Waypoint, 0, 2*len(orders))
	for _, o := range orders {
		waypoints = append(waypoints,
			domain.Waypoint{OrderID: o.ID, Kind: domain.WaypointPickup, Label: o.BranchName, Position: o.Pickup},
			domain.Waypoint{OrderID: o.ID, Kind: domain.WaypointDelivery, Label: o.CustomerName, Position: o.Delivery},
		)
	}

	origin := anchor
	if driver.HasPosition {
		origin = driver.Position
	}
	plan, err := p.optimizer.Optimize(origin, waypoints, p.cfg.Factor(driver.Vehicle))
	if err != nil {
		p.releaseClaim(ctx, driver.ID, batchID)
		return nil, fmt.Errorf("batch orders: %w", err)
	}

	now := p.clock.Now()
	deadline := now.Add(p.cfg.OfferResponseWindow)
	members := make([]*domain.Assignment, 0, len(orders))
	memberIDs := make([]string, 0, len(orders))

	for _, o := range orders {
		a := &domain.Assignment{
			ID:               uuid.NewString(),
			OrderID:          o.ID,
			DriverID:         driver.ID,
			BatchID:          batchID,
			Status:           domain.StatusOffered,
			OfferedAt:        now,
			ResponseDeadline: deadline,
			Offers: []domain.OfferRecord{{
				DriverID:  driver.ID,
				OfferedAt: now,
				Deadline:  deadline,
				Outcome:   domain.OfferPending,
			}},
			Route:          plan,
			RouteStopIndex: plan.DeliveryStopIndex(o.ID),
			CreatedAt:      now,
			UpdatedAt:      now,
			Version:        1,
		}
		if err := p.assignments.Create(ctx, a); err != nil {
			p.abandon(ctx, members, driver.ID, batchID)
			return nil, fmt.Errorf("batch orders: create assignment for order %s: %w", o.ID, err)
		}
		members = append(members, a)
		memberIDs = append(memberIDs, a.ID)
	}

	if p.notifier != nil {
		payload := map[string]any{
			"batch_id":       batchID,
			"assignment_ids": memberIDs,
			"stops":          len(plan.Stops),
			"total_km":       plan.TotalDistanceKm,
			"deadline":       deadline,
		}
		if err := p.notifier.Notify(ctx, ports.RecipientDriver, driver.ID, "batch_offer_received", payload); err != nil {
			log.Printf("op=batch.notify driver=%s err=%v", driver.ID, err)
		}
	}

	return &BatchOutcome{
		Outcome: OutcomeAssigned,
		Batch: &domain.Batch{
			ID:            batchID,
			DriverID:      driver.ID,
			AssignmentIDs: memberIDs,
			Route:         plan,
			CreatedAt:     now,
		},
		Assignments: members,
	}, nil
}

// abandon rolls back a partially created batch: members already persisted are
// finalized as failed and the driver claim is released.
func (p *BatchPlanner) abandon(ctx context.Context, created []*domain.Assignment, driverID, batchID string) {
	now := p.clock.Now()
	for _, m := range created {
		if offer := m.CurrentOffer(); offer != nil {
			offer.Outcome = domain.OfferRevoked
			offer.RespondedAt = &now
		}
		m.Status = domain.StatusFailed
		m.DriverID = ""
		m.UpdatedAt = now
		m.ResolvedAt = &now
		if err := p.assignments.Update(ctx, m); err != nil {
			log.Printf("op=batch.abandon assignment=%s err=%v", m.ID, err)
		}
	}
	p.releaseClaim(ctx, driverID, batchID)
}

func (p *BatchPlanner) releaseClaim(ctx context.Context, driverID, batchID string) {
	if err := p.drivers.ClearOffer(ctx, driverID, batchID); err != nil {
		log.Printf("op=batch.release driver=%s batch=%s err=%v", driverID, batchID, err)
	}
}
