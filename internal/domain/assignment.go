package domain

import "time"

type AssignmentStatus string

const (
	StatusPending           AssignmentStatus = "pending"
	StatusOffered           AssignmentStatus = "offered"
	StatusAccepted          AssignmentStatus = "accepted"
	StatusEnRouteToPickup   AssignmentStatus = "en_route_to_pickup"
	StatusPickedUp          AssignmentStatus = "picked_up"
	StatusEnRouteToDelivery AssignmentStatus = "en_route_to_delivery"
	StatusDelivered         AssignmentStatus = "delivered"
	StatusFailed            AssignmentStatus = "failed"
	StatusCancelled         AssignmentStatus = "cancelled"
)

func (s AssignmentStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transition is allowed from s.
func (s AssignmentStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// transitions is the enumerated state machine. A re-offer after a decline or
// timeout is offered -> offered with a new offer record on the same
// assignment; declined/timed_out live on the offer record, not the status.
var transitions = map[AssignmentStatus][]AssignmentStatus{
	StatusPending:           {StatusOffered, StatusFailed, StatusCancelled},
	StatusOffered:           {StatusOffered, StatusAccepted, StatusFailed, StatusCancelled},
	StatusAccepted:          {StatusEnRouteToPickup, StatusFailed, StatusCancelled},
	StatusEnRouteToPickup:   {StatusPickedUp, StatusFailed, StatusCancelled},
	StatusPickedUp:          {StatusEnRouteToDelivery, StatusFailed, StatusCancelled},
	StatusEnRouteToDelivery: {StatusDelivered, StatusFailed, StatusCancelled},
	StatusDelivered:         {},
	StatusFailed:            {},
	StatusCancelled:         {},
}

// CanTransition consults the transition table.
func CanTransition(from, to AssignmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type OfferOutcome string

const (
	OfferPending  OfferOutcome = "pending"
	OfferAccepted OfferOutcome = "accepted"
	OfferDeclined OfferOutcome = "declined"
	OfferTimedOut OfferOutcome = "timed_out"
	OfferRevoked  OfferOutcome = "revoked"
)

// OfferRecord is one driver's opportunity to accept or decline an assignment
// within a response deadline. Records are append-only history.
type OfferRecord struct {
	DriverID    string       `json:"driver_id"`
	OfferedAt   time.Time    `json:"offered_at"`
	Deadline    time.Time    `json:"deadline"`
	Outcome     OfferOutcome `json:"outcome"`
	Reason      string       `json:"reason,omitempty"`
	RespondedAt *time.Time   `json:"responded_at,omitempty"`
}

// Progress is the last observed position and route completion percentage.
type Progress struct {
	Position        Coordinates `json:"position"`
	PercentComplete float64     `json:"percent_complete"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Assignment links one order to its (possibly changing) candidate or accepted
// driver and route plan. An order has at most one active assignment; declined
// offers re-target the same record rather than creating a new one.
type Assignment struct {
	ID       string
	OrderID  string
	DriverID string // empty until an offer is outstanding or accepted
	BatchID  string // set when the assignment belongs to a shared driver run
	Status   AssignmentStatus

	OfferedAt        time.Time
	ResponseDeadline time.Time
	Offers           []OfferRecord

	Route *RoutePlan
	// RouteStopIndex is the index of this order's delivery stop within the
	// (possibly shared) route.
	RouteStopIndex int

	Progress   *Progress
	Exceptions []DeliveryException

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ResolvedAt *time.Time

	// Version implements the optimistic-concurrency check on updates.
	Version int
}

// CurrentOffer returns the open offer record, or nil when none is pending.
func (a *Assignment) CurrentOffer() *OfferRecord {
	if len(a.Offers) == 0 {
		return nil
	}
	last := &a.Offers[len(a.Offers)-1]
	if last.Outcome != OfferPending {
		return nil
	}
	return last
}

// OfferedDriverIDs lists every driver that has held an offer for this
// assignment, in offer order. Used to exclude them from re-offers.
func (a *Assignment) OfferedDriverIDs() []string {
	ids := make([]string, 0, len(a.Offers))
	for _, o := range a.Offers {
		ids = append(ids, o.DriverID)
	}
	return ids
}
