package ports

import (
	"context"
	"time"

	"delivery-dispatch-service/internal/domain"
)

// ReportFilters bound the assignment history read by the reporting service.
type ReportFilters struct {
	From     time.Time
	To       time.Time
	DriverID string
	Status   domain.AssignmentStatus
}

// Port: a boundary for assignment records.
type AssignmentRepository interface {
	Create(ctx context.Context, a *domain.Assignment) error

	Get(ctx context.Context, id string) (*domain.Assignment, error)

	// GetActiveByOrder returns the order's non-terminal assignment, or
	// domain.ErrAssignmentNotFound when none exists.
	GetActiveByOrder(ctx context.Context, orderID string) (*domain.Assignment, error)

	// Update commits a, expecting the stored version to equal a.Version, and
	// increments a.Version on success. Returns domain.ErrVersionConflict when
	// another writer got there first.
	Update(ctx context.Context, a *domain.Assignment) error

	// ListExpiredOffers returns offered assignments whose response deadline
	// is at or before cutoff.
	ListExpiredOffers(ctx context.Context, cutoff time.Time) ([]*domain.Assignment, error)

	ListByBatch(ctx context.Context, batchID string) ([]*domain.Assignment, error)

	// ListForReport returns terminal assignments matching the filters.
	ListForReport(ctx context.Context, f ReportFilters) ([]*domain.Assignment, error)
}
