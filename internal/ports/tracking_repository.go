package ports

import (
	"context"

	"delivery-dispatch-service/internal/domain"
)

// Port: append-only tracking history and exception records.
type TrackingRepository interface {
	AppendEvent(ctx context.Context, e *domain.TrackingEvent) error
	ListEvents(ctx context.Context, assignmentID string) ([]*domain.TrackingEvent, error)

	AppendException(ctx context.Context, e *domain.DeliveryException) error
	ListExceptions(ctx context.Context, assignmentID string) ([]*domain.DeliveryException, error)
}
