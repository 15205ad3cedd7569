package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
)

// Postgres-backed implementation of the AssignmentRepository port. The offer
// history, route plan and progress snapshot are stored as JSONB alongside the
// indexed scalar columns.
type PostgresAssignmentRepository struct{ DB *sql.DB }

func NewPostgresAssignmentRepository(db *sql.DB) *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{DB: db}
}

const assignmentColumns = `
	id, order_id, COALESCE(driver_id, ''), COALESCE(batch_id, ''), status,
	offered_at, response_deadline, offers, route, route_stop_index,
	progress, created_at, updated_at, resolved_at, version
`

func (r *PostgresAssignmentRepository) Create(ctx context.Context, a *domain.Assignment) error {
	offers, route, progress, err := marshalAssignment(a)
	if err != nil {
		return fmt.Errorf("create assignment %s: %w", a.ID, err)
	}

	_, err = r.DB.ExecContext(ctx, `
	INSERT INTO assignments (
		id, order_id, driver_id, batch_id, status,
		offered_at, response_deadline, offers, route, route_stop_index,
		progress, created_at, updated_at, resolved_at, version
	) VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.OrderID, a.DriverID, a.BatchID, string(a.Status),
		nullableTime(a.OfferedAt), nullableTime(a.ResponseDeadline), offers, route, a.RouteStopIndex,
		progress, a.CreatedAt, a.UpdatedAt, a.ResolvedAt, a.Version)
	if err != nil {
		// The partial unique index on active assignments rejects a second
		// live row for the same order.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("create assignment %s: %w", a.ID, domain.ErrActiveAssignmentExists)
		}
		return fmt.Errorf("create assignment %s: %w", a.ID, err)
	}
	return nil
}

func (r *PostgresAssignmentRepository) Get(ctx context.Context, id string) (*domain.Assignment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment %s: %w", id, err)
	}
	return a, nil
}

func (r *PostgresAssignmentRepository) GetActiveByOrder(ctx context.Context, orderID string) (*domain.Assignment, error) {
	row := r.DB.QueryRowContext(ctx, `
	SELECT `+assignmentColumns+`
	FROM assignments
	WHERE order_id = $1 AND status NOT IN ('delivered', 'failed', 'cancelled')
	LIMIT 1`, orderID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAssignmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get active assignment for order %s: %w", orderID, err)
	}
	return a, nil
}

// Update commits the assignment guarded by the version column. The stored
// version must equal a.Version; on success both are advanced by one.
func (r *PostgresAssignmentRepository) Update(ctx context.Context, a *domain.Assignment) error {
	offers, route, progress, err := marshalAssignment(a)
	if err != nil {
		return fmt.Errorf("update assignment %s: %w", a.ID, err)
	}

	res, err := r.DB.ExecContext(ctx, `
	UPDATE assignments SET
		driver_id = NULLIF($2, ''), batch_id = NULLIF($3, ''), status = $4,
		offered_at = $5, response_deadline = $6, offers = $7, route = $8,
		route_stop_index = $9, progress = $10, updated_at = $11,
		resolved_at = $12, version = version + 1
	WHERE id = $1 AND version = $13`,
		a.ID, a.DriverID, a.BatchID, string(a.Status),
		nullableTime(a.OfferedAt), nullableTime(a.ResponseDeadline), offers, route,
		a.RouteStopIndex, progress, a.UpdatedAt, a.ResolvedAt, a.Version)
	if err != nil {
		return fmt.Errorf("update assignment %s: %w", a.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update assignment %s: %w", a.ID, err)
	}
	if n == 0 {
		if _, gerr := r.Get(ctx, a.ID); errors.Is(gerr, domain.ErrAssignmentNotFound) {
			return domain.ErrAssignmentNotFound
		}
		return domain.ErrVersionConflict
	}
	a.Version++
	return nil
}

func (r *PostgresAssignmentRepository) ListExpiredOffers(ctx context.Context, cutoff time.Time) ([]*domain.Assignment, error) {
	return r.list(ctx, `
	SELECT `+assignmentColumns+`
	FROM assignments
	WHERE status = 'offered' AND response_deadline <= $1
	ORDER BY response_deadline`, cutoff)
}

func (r *PostgresAssignmentRepository) ListByBatch(ctx context.Context, batchID string) ([]*domain.Assignment, error) {
	return r.list(ctx, `
	SELECT `+assignmentColumns+`
	FROM assignments
	WHERE batch_id = $1
	ORDER BY route_stop_index`, batchID)
}

func (r *PostgresAssignmentRepository) ListForReport(ctx context.Context, f ports.ReportFilters) ([]*domain.Assignment, error) {
	query := `SELECT ` + assignmentColumns + `
	FROM assignments
	WHERE status IN ('delivered', 'failed', 'cancelled')`
	args := []any{}

	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	if f.DriverID != "" {
		args = append(args, f.DriverID)
		query += fmt.Sprintf(" AND driver_id = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at"

	return r.list(ctx, query, args...)
}

func (r *PostgresAssignmentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Assignment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("list assignments: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list assignments: row iteration: %w", err)
	}
	return out, nil
}

func marshalAssignment(a *domain.Assignment) (offers, route, progress []byte, err error) {
	offers, err = json.Marshal(a.Offers)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal offers: %w", err)
	}
	if a.Route != nil {
		route, err = json.Marshal(a.Route)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal route: %w", err)
		}
	}
	if a.Progress != nil {
		progress, err = json.Marshal(a.Progress)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal progress: %w", err)
		}
	}
	return offers, route, progress, nil
}

func scanAssignment(row rowScanner) (*domain.Assignment, error) {
	a := &domain.Assignment{}
	var status string
	var offeredAt, deadline, resolvedAt sql.NullTime
	var offers, route, progress []byte

	err := row.Scan(&a.ID, &a.OrderID, &a.DriverID, &a.BatchID, &status,
		&offeredAt, &deadline, &offers, &route, &a.RouteStopIndex,
		&progress, &a.CreatedAt, &a.UpdatedAt, &resolvedAt, &a.Version)
	if err != nil {
		return nil, err
	}

	a.Status = domain.AssignmentStatus(status)
	if offeredAt.Valid {
		a.OfferedAt = offeredAt.Time
	}
	if deadline.Valid {
		a.ResponseDeadline = deadline.Time
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	if len(offers) > 0 {
		if err := json.Unmarshal(offers, &a.Offers); err != nil {
			return nil, fmt.Errorf("unmarshal offers: %w", err)
		}
	}
	if len(route) > 0 {
		a.Route = &domain.RoutePlan{}
		if err := json.Unmarshal(route, a.Route); err != nil {
			return nil, fmt.Errorf("unmarshal route: %w", err)
		}
	}
	if len(progress) > 0 {
		a.Progress = &domain.Progress{}
		if err := json.Unmarshal(progress, a.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal progress: %w", err)
		}
	}
	return a, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
