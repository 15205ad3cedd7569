package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/ports"
)

// Postgres-backed implementation of the DriverRepository port.
type PostgresDriverRepository struct{ DB *sql.DB }

func NewPostgresDriverRepository(db *sql.DB) *PostgresDriverRepository {
	return &PostgresDriverRepository{DB: db}
}

const driverColumns = `
	id, name, vehicle, lat, lon, is_online, is_available, is_active, rating,
	COALESCE(offered_assignment_id, ''), last_assigned_at, completed, cancelled
`

func (r *PostgresDriverRepository) ListAvailable(ctx context.Context, f ports.DriverFilters) ([]*domain.Driver, error) {
	query := `SELECT ` + driverColumns + `
	FROM drivers
	WHERE is_active AND is_online AND is_available`
	args := []any{}

	if f.Vehicle != "" {
		args = append(args, string(f.Vehicle))
		query += fmt.Sprintf(" AND vehicle = $%d", len(args))
	}
	if f.ZoneID != "" {
		args = append(args, f.ZoneID)
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM working_zones z WHERE z.driver_id = drivers.id AND z.id = $%d)", len(args))
	}
	query += " ORDER BY id"

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list available drivers: %w", err)
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("list available drivers: %w", err)
		}
		drivers = append(drivers, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list available drivers: row iteration: %w", err)
	}

	for _, d := range drivers {
		if err := r.loadZones(ctx, d); err != nil {
			return nil, fmt.Errorf("list available drivers: %w", err)
		}
	}
	return drivers, nil
}

func (r *PostgresDriverRepository) Get(ctx context.Context, id string) (*domain.Driver, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
	d, err := scanDriver(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDriverNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get driver %s: %w", id, err)
	}
	if err := r.loadZones(ctx, d); err != nil {
		return nil, fmt.Errorf("get driver %s: %w", id, err)
	}
	return d, nil
}

func (r *PostgresDriverRepository) UpdateStatus(ctx context.Context, id string, online, available *bool) error {
	res, err := r.DB.ExecContext(ctx, `
	UPDATE drivers
	SET is_online = COALESCE($2, is_online),
	    is_available = COALESCE($3, is_available)
	WHERE id = $1`, id, nullableBool(online), nullableBool(available))
	if err != nil {
		return fmt.Errorf("update driver %s status: %w", id, err)
	}
	return requireRow(res, domain.ErrDriverNotFound)
}

func (r *PostgresDriverRepository) UpdateLocation(ctx context.Context, id string, pos domain.Coordinates) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE drivers SET lat = $2, lon = $3 WHERE id = $1`, id, pos.Lat, pos.Lon)
	if err != nil {
		return fmt.Errorf("update driver %s location: %w", id, err)
	}
	return requireRow(res, domain.ErrDriverNotFound)
}

// MarkOffered claims the offered marker with a conditional write so that two
// coordinators can never both claim the same driver.
func (r *PostgresDriverRepository) MarkOffered(ctx context.Context, driverID, assignmentID string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
	UPDATE drivers
	SET offered_assignment_id = $2
	WHERE id = $1 AND (offered_assignment_id IS NULL OR offered_assignment_id = $2)`,
		driverID, assignmentID)
	if err != nil {
		return false, fmt.Errorf("mark driver %s offered: %w", driverID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark driver %s offered: %w", driverID, err)
	}
	return n > 0, nil
}

func (r *PostgresDriverRepository) ClearOffer(ctx context.Context, driverID, assignmentID string) error {
	_, err := r.DB.ExecContext(ctx, `
	UPDATE drivers
	SET offered_assignment_id = NULL
	WHERE id = $1 AND offered_assignment_id = $2`, driverID, assignmentID)
	if err != nil {
		return fmt.Errorf("clear driver %s offer: %w", driverID, err)
	}
	return nil
}

func (r *PostgresDriverRepository) RecordOutcome(ctx context.Context, driverID string, completed bool) error {
	query := `UPDATE drivers SET cancelled = cancelled + 1, last_assigned_at = now() WHERE id = $1`
	if completed {
		query = `UPDATE drivers SET completed = completed + 1, last_assigned_at = now() WHERE id = $1`
	}
	res, err := r.DB.ExecContext(ctx, query, driverID)
	if err != nil {
		return fmt.Errorf("record driver %s outcome: %w", driverID, err)
	}
	return requireRow(res, domain.ErrDriverNotFound)
}

func (r *PostgresDriverRepository) loadZones(ctx context.Context, d *domain.Driver) error {
	rows, err := r.DB.QueryContext(ctx, `
	SELECT id, center_lat, center_lon, radius_km, hours_from, hours_to, priority
	FROM working_zones
	WHERE driver_id = $1
	ORDER BY priority, id`, d.ID)
	if err != nil {
		return fmt.Errorf("load zones for driver %s: %w", d.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		z := domain.WorkingZone{DriverID: d.ID}
		if err := rows.Scan(&z.ID, &z.Center.Lat, &z.Center.Lon, &z.RadiusKm, &z.HoursFrom, &z.HoursTo, &z.Priority); err != nil {
			return fmt.Errorf("load zones for driver %s: scan: %w", d.ID, err)
		}
		d.Zones = append(d.Zones, z)
	}
	return rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanDriver(row rowScanner) (*domain.Driver, error) {
	d := &domain.Driver{}
	var lat, lon sql.NullFloat64
	var lastAssigned sql.NullTime

	err := row.Scan(&d.ID, &d.Name, &d.Vehicle, &lat, &lon,
		&d.IsOnline, &d.IsAvailable, &d.IsActive, &d.Rating,
		&d.OfferedAssignmentID, &lastAssigned, &d.Completed, &d.Cancelled)
	if err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		d.Position = domain.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		d.HasPosition = true
	}
	if lastAssigned.Valid {
		d.LastAssignedAt = lastAssigned.Time
	}
	return d, nil
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
