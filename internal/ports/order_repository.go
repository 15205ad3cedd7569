package ports

import (
	"context"

	"delivery-dispatch-service/internal/domain"
)

// Port: read-only access to order records owned elsewhere.
type OrderRepository interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Order, error)
}
