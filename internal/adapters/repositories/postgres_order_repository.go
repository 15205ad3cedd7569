package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"delivery-dispatch-service/internal/domain"
)

// Postgres-backed implementation of the read-only OrderRepository port.
type PostgresOrderRepository struct{ DB *sql.DB }

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{DB: db}
}

const orderColumns = `
	id, branch_name, pickup_lat, pickup_lon, customer_id, customer_name,
	delivery_lat, delivery_lon
`

func (r *PostgresOrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

func (r *PostgresOrderRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Order, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id IN (` + strings.Join(placeholders, ", ") + `) ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get orders by ids: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("get orders by ids: scan: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get orders by ids: row iteration: %w", err)
	}
	return out, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(&o.ID, &o.BranchName, &o.Pickup.Lat, &o.Pickup.Lon,
		&o.CustomerID, &o.CustomerName, &o.Delivery.Lat, &o.Delivery.Lon)
	if err != nil {
		return nil, err
	}
	return o, nil
}
