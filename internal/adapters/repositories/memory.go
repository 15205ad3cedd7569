package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
)

// In-memory implementations of the repository ports, used by service tests
// and local runs without Postgres. They mirror the store contracts exactly:
// returned aggregates are deep copies, assignment updates are guarded by the
// version column, the driver offer marker is claimed atomically, and at most
// one active assignment may exist per order.

type MemoryDriverRepository struct {
	mu      sync.Mutex
	drivers map[string]*domain.Driver
}

func NewMemoryDriverRepository(drivers ...*domain.Driver) *MemoryDriverRepository {
	r := &MemoryDriverRepository{drivers: make(map[string]*domain.Driver)}
	for _, d := range drivers {
		r.drivers[d.ID] = cloneDriver(d)
	}
	return r
}

func (r *MemoryDriverRepository) Put(d *domain.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[d.ID] = cloneDriver(d)
}

func (r *MemoryDriverRepository) ListAvailable(_ context.Context, f ports.DriverFilters) ([]*domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		if !d.IsActive || !d.IsOnline || !d.IsAvailable {
			continue
		}
		if f.Vehicle != "" && d.Vehicle != f.Vehicle {
			continue
		}
		if f.ZoneID != "" && !hasZone(d, f.ZoneID) {
			continue
		}
		out = append(out, cloneDriver(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryDriverRepository) Get(_ context.Context, id string) (*domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[id]
	if !ok {
		return nil, domain.ErrDriverNotFound
	}
	return cloneDriver(d), nil
}

func (r *MemoryDriverRepository) UpdateStatus(_ context.Context, id string, online, available *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[id]
	if !ok {
		return domain.ErrDriverNotFound
	}
	if online != nil {
		d.IsOnline = *online
	}
	if available != nil {
		d.IsAvailable = *available
	}
	return nil
}

func (r *MemoryDriverRepository) UpdateLocation(_ context.Context, id string, pos domain.Coordinates) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[id]
	if !ok {
		return domain.ErrDriverNotFound
	}
	d.Position = pos
	d.HasPosition = true
	return nil
}

func (r *MemoryDriverRepository) MarkOffered(_ context.Context, driverID, assignmentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[driverID]
	if !ok {
		return false, domain.ErrDriverNotFound
	}
	if d.OfferedAssignmentID != "" && d.OfferedAssignmentID != assignmentID {
		return false, nil
	}
	d.OfferedAssignmentID = assignmentID
	return true, nil
}

func (r *MemoryDriverRepository) ClearOffer(_ context.Context, driverID, assignmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[driverID]
	if !ok {
		return domain.ErrDriverNotFound
	}
	if d.OfferedAssignmentID == assignmentID {
		d.OfferedAssignmentID = ""
	}
	return nil
}

func (r *MemoryDriverRepository) RecordOutcome(_ context.Context, driverID string, completed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.drivers[driverID]
	if !ok {
		return domain.ErrDriverNotFound
	}
	if completed {
		d.Completed++
	} else {
		d.Cancelled++
	}
	d.LastAssignedAt = time.Now()
	return nil
}

func hasZone(d *domain.Driver, zoneID string) bool {
	for _, z := range d.Zones {
		if z.ID == zoneID {
			return true
		}
	}
	return false
}

type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]*domain.Order
}

func NewMemoryOrderRepository(orders ...*domain.Order) *MemoryOrderRepository {
	r := &MemoryOrderRepository{orders: make(map[string]*domain.Order)}
	for _, o := range orders {
		c := *o
		r.orders[o.ID] = &c
	}
	return r
}

func (r *MemoryOrderRepository) Get(_ context.Context, id string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	c := *o
	return &c, nil
}

func (r *MemoryOrderRepository) GetByIDs(_ context.Context, ids []string) ([]*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := r.orders[id]; ok {
			c := *o
			out = append(out, &c)
		}
	}
	return out, nil
}

type MemoryAssignmentRepository struct {
	mu          sync.Mutex
	assignments map[string]*domain.Assignment
}

func NewMemoryAssignmentRepository() *MemoryAssignmentRepository {
	return &MemoryAssignmentRepository{assignments: make(map[string]*domain.Assignment)}
}

func (r *MemoryAssignmentRepository) Create(_ context.Context, a *domain.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Mirrors the partial unique index on active assignments per order.
	if !a.Status.IsTerminal() {
		for _, existing := range r.assignments {
			if existing.OrderID == a.OrderID && !existing.Status.IsTerminal() {
				return domain.ErrActiveAssignmentExists
			}
		}
	}
	r.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (r *MemoryAssignmentRepository) Get(_ context.Context, id string) (*domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assignments[id]
	if !ok {
		return nil, domain.ErrAssignmentNotFound
	}
	return cloneAssignment(a), nil
}

func (r *MemoryAssignmentRepository) GetActiveByOrder(_ context.Context, orderID string) (*domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.assignments {
		if a.OrderID == orderID && !a.Status.IsTerminal() {
			return cloneAssignment(a), nil
		}
	}
	return nil, domain.ErrAssignmentNotFound
}

func (r *MemoryAssignmentRepository) Update(_ context.Context, a *domain.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.assignments[a.ID]
	if !ok {
		return domain.ErrAssignmentNotFound
	}
	if stored.Version != a.Version {
		return domain.ErrVersionConflict
	}
	a.Version++
	r.assignments[a.ID] = cloneAssignment(a)
	return nil
}

func (r *MemoryAssignmentRepository) ListExpiredOffers(_ context.Context, cutoff time.Time) ([]*domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Assignment
	for _, a := range r.assignments {
		if a.Status == domain.StatusOffered && !a.ResponseDeadline.After(cutoff) {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryAssignmentRepository) ListByBatch(_ context.Context, batchID string) ([]*domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Assignment
	for _, a := range r.assignments {
		if a.BatchID == batchID {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RouteStopIndex < out[j].RouteStopIndex })
	return out, nil
}

func (r *MemoryAssignmentRepository) ListForReport(_ context.Context, f ports.ReportFilters) ([]*domain.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Assignment
	for _, a := range r.assignments {
		if !a.Status.IsTerminal() {
			continue
		}
		if !f.From.IsZero() && a.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && a.CreatedAt.After(f.To) {
			continue
		}
		if f.DriverID != "" && a.DriverID != f.DriverID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, cloneAssignment(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type MemoryTrackingRepository struct {
	mu         sync.Mutex
	events     map[string][]*domain.TrackingEvent
	exceptions map[string][]*domain.DeliveryException
}

func NewMemoryTrackingRepository() *MemoryTrackingRepository {
	return &MemoryTrackingRepository{
		events:     make(map[string][]*domain.TrackingEvent),
		exceptions: make(map[string][]*domain.DeliveryException),
	}
}

func (r *MemoryTrackingRepository) AppendEvent(_ context.Context, e *domain.TrackingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *e
	r.events[e.AssignmentID] = append(r.events[e.AssignmentID], &c)
	return nil
}

func (r *MemoryTrackingRepository) ListEvents(_ context.Context, assignmentID string) ([]*domain.TrackingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := r.events[assignmentID]
	out := make([]*domain.TrackingEvent, len(events))
	for i, e := range events {
		c := *e
		out[i] = &c
	}
	return out, nil
}

func (r *MemoryTrackingRepository) AppendException(_ context.Context, e *domain.DeliveryException) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *e
	r.exceptions[e.AssignmentID] = append(r.exceptions[e.AssignmentID], &c)
	return nil
}

func (r *MemoryTrackingRepository) ListExceptions(_ context.Context, assignmentID string) ([]*domain.DeliveryException, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exceptions := r.exceptions[assignmentID]
	out := make([]*domain.DeliveryException, len(exceptions))
	for i, e := range exceptions {
		c := *e
		out[i] = &c
	}
	return out, nil
}

// MemoryLocationCache is the LocationCache fake for tests without Redis.
type MemoryLocationCache struct {
	mu   sync.Mutex
	locs map[string]ports.CachedLocation
}

func NewMemoryLocationCache() *MemoryLocationCache {
	return &MemoryLocationCache{locs: make(map[string]ports.CachedLocation)}
}

func (c *MemoryLocationCache) Set(_ context.Context, driverID string, loc ports.CachedLocation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.locs[driverID] = loc
	return nil
}

func (c *MemoryLocationCache) Get(_ context.Context, driverID string) (ports.CachedLocation, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.locs[driverID]
	return loc, ok, nil
}

func cloneDriver(d *domain.Driver) *domain.Driver {
	c := *d
	c.Zones = append([]domain.WorkingZone(nil), d.Zones...)
	return &c
}

func cloneAssignment(a *domain.Assignment) *domain.Assignment {
	c := *a
	c.Offers = append([]domain.OfferRecord(nil), a.Offers...)
	c.Exceptions = append([]domain.DeliveryException(nil), a.Exceptions...)
	if a.Route != nil {
		route := *a.Route
		route.Stops = append([]domain.RouteStop(nil), a.Route.Stops...)
		c.Route = &route
	}
	if a.Progress != nil {
		p := *a.Progress
		c.Progress = &p
	}
	if a.ResolvedAt != nil {
		ts := *a.ResolvedAt
		c.ResolvedAt = &ts
	}
	return &c
}
