package dto

import (
	"time"

	"delivery-dispatch-service/internal/domain"
)

type AssignRequest struct {
	OrderID string `json:"order_id"`
}

type RespondRequest struct {
	DriverID string `json:"driver_id"`
	Decision string `json:"decision"`
	Reason   string `json:"reason"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type AdvanceRequest struct {
	DriverID string `json:"driver_id"`
	Status   string `json:"status"`
}

type AssignmentResponse struct {
	ID               string                `json:"id"`
	OrderID          string                `json:"order_id"`
	DriverID         string                `json:"driver_id,omitempty"`
	BatchID          string                `json:"batch_id,omitempty"`
	Status           string                `json:"status"`
	OfferedAt        *time.Time            `json:"offered_at,omitempty"`
	ResponseDeadline *time.Time            `json:"response_deadline,omitempty"`
	Offers           []domain.OfferRecord  `json:"offers,omitempty"`
	Route            *domain.RoutePlan     `json:"route,omitempty"`
	RouteStopIndex   int                   `json:"route_stop_index"`
	Progress         *domain.Progress      `json:"progress,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
	ResolvedAt       *time.Time            `json:"resolved_at,omitempty"`
}

type AssignOutcomeResponse struct {
	Outcome    string              `json:"outcome"`
	Assignment *AssignmentResponse `json:"assignment,omitempty"`
}

func FromAssignment(a *domain.Assignment) *AssignmentResponse {
	res := &AssignmentResponse{
		ID:             a.ID,
		OrderID:        a.OrderID,
		DriverID:       a.DriverID,
		BatchID:        a.BatchID,
		Status:         string(a.Status),
		Offers:         a.Offers,
		Route:          a.Route,
		RouteStopIndex: a.RouteStopIndex,
		Progress:       a.Progress,
		CreatedAt:      a.CreatedAt,
		ResolvedAt:     a.ResolvedAt,
	}
	if !a.OfferedAt.IsZero() {
		t := a.OfferedAt
		res.OfferedAt = &t
	}
	if !a.ResponseDeadline.IsZero() {
		t := a.ResponseDeadline
		res.ResponseDeadline = &t
	}
	return res
}
