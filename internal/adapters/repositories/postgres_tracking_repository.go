package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"delivery-dispatch-service/internal/domain"
)

// Postgres-backed implementation of the TrackingRepository port. Both tables
// are append-only: rows are never updated or deleted.
type PostgresTrackingRepository struct{ DB *sql.DB }

func NewPostgresTrackingRepository(db *sql.DB) *PostgresTrackingRepository {
	return &PostgresTrackingRepository{DB: db}
}

func (r *PostgresTrackingRepository) AppendEvent(ctx context.Context, e *domain.TrackingEvent) error {
	_, err := r.DB.ExecContext(ctx, `
	INSERT INTO tracking_events (id, assignment_id, lat, lon, recorded_at, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.AssignmentID, e.Position.Lat, e.Position.Lon, e.RecordedAt, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append tracking event for %s: %w", e.AssignmentID, err)
	}
	return nil
}

func (r *PostgresTrackingRepository) ListEvents(ctx context.Context, assignmentID string) ([]*domain.TrackingEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `
	SELECT id, assignment_id, lat, lon, recorded_at, created_at
	FROM tracking_events
	WHERE assignment_id = $1
	ORDER BY recorded_at`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list tracking events for %s: %w", assignmentID, err)
	}
	defer rows.Close()

	var out []*domain.TrackingEvent
	for rows.Next() {
		e := &domain.TrackingEvent{}
		if err := rows.Scan(&e.ID, &e.AssignmentID, &e.Position.Lat, &e.Position.Lon, &e.RecordedAt, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("list tracking events for %s: scan: %w", assignmentID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresTrackingRepository) AppendException(ctx context.Context, e *domain.DeliveryException) error {
	_, err := r.DB.ExecContext(ctx, `
	INSERT INTO delivery_exceptions (id, assignment_id, type, details, detected_at)
	VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.AssignmentID, string(e.Type), e.Details, e.DetectedAt)
	if err != nil {
		return fmt.Errorf("append exception for %s: %w", e.AssignmentID, err)
	}
	return nil
}

func (r *PostgresTrackingRepository) ListExceptions(ctx context.Context, assignmentID string) ([]*domain.DeliveryException, error) {
	rows, err := r.DB.QueryContext(ctx, `
	SELECT id, assignment_id, type, details, detected_at
	FROM delivery_exceptions
	WHERE assignment_id = $1
	ORDER BY detected_at`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("list exceptions for %s: %w", assignmentID, err)
	}
	defer rows.Close()

	var out []*domain.DeliveryException
	for rows.Next() {
		e := &domain.DeliveryException{}
		var typ string
		if err := rows.Scan(&e.ID, &e.AssignmentID, &typ, &e.Details, &e.DetectedAt); err != nil {
			return nil, fmt.Errorf("list exceptions for %s: scan: %w", assignmentID, err)
		}
		e.Type = domain.ExceptionType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}
