package repositories

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
)

// InitSchema creates the dispatch tables when they do not exist yet.
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS drivers (
		id                    TEXT PRIMARY KEY,
		name                  TEXT NOT NULL,
		vehicle               TEXT NOT NULL,
		lat                   DOUBLE PRECISION,
		lon                   DOUBLE PRECISION,
		is_online             BOOLEAN NOT NULL DEFAULT FALSE,
		is_available          BOOLEAN NOT NULL DEFAULT FALSE,
		is_active             BOOLEAN NOT NULL DEFAULT TRUE,
		rating                DOUBLE PRECISION NOT NULL DEFAULT 0,
		offered_assignment_id TEXT,
		last_assigned_at      TIMESTAMPTZ,
		completed             INTEGER NOT NULL DEFAULT 0,
		cancelled             INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS working_zones (
		id         TEXT PRIMARY KEY,
		driver_id  TEXT NOT NULL REFERENCES drivers(id),
		center_lat DOUBLE PRECISION NOT NULL,
		center_lon DOUBLE PRECISION NOT NULL,
		radius_km  DOUBLE PRECISION NOT NULL CHECK (radius_km > 0),
		hours_from INTEGER NOT NULL DEFAULT 0,
		hours_to   INTEGER NOT NULL DEFAULT 0,
		priority   INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS orders (
		id            TEXT PRIMARY KEY,
		branch_name   TEXT NOT NULL,
		pickup_lat    DOUBLE PRECISION NOT NULL,
		pickup_lon    DOUBLE PRECISION NOT NULL,
		customer_id   TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		delivery_lat  DOUBLE PRECISION NOT NULL,
		delivery_lon  DOUBLE PRECISION NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id                TEXT PRIMARY KEY,
		order_id          TEXT NOT NULL REFERENCES orders(id),
		driver_id         TEXT REFERENCES drivers(id),
		batch_id          TEXT,
		status            TEXT NOT NULL,
		offered_at        TIMESTAMPTZ,
		response_deadline TIMESTAMPTZ,
		offers            JSONB NOT NULL DEFAULT '[]',
		route             JSONB,
		route_stop_index  INTEGER NOT NULL DEFAULT 0,
		progress          JSONB,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL,
		resolved_at       TIMESTAMPTZ,
		version           INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_assignments_order ON assignments(order_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_assignments_active_order
		ON assignments(order_id)
		WHERE status NOT IN ('delivered', 'failed', 'cancelled');
	CREATE INDEX IF NOT EXISTS idx_assignments_batch ON assignments(batch_id);
	CREATE INDEX IF NOT EXISTS idx_assignments_offered
		ON assignments(response_deadline) WHERE status = 'offered';

	CREATE TABLE IF NOT EXISTS tracking_events (
		id            TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		lat           DOUBLE PRECISION NOT NULL,
		lon           DOUBLE PRECISION NOT NULL,
		recorded_at   TIMESTAMPTZ NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tracking_events_assignment
		ON tracking_events(assignment_id, recorded_at);

	CREATE TABLE IF NOT EXISTS delivery_exceptions (
		id            TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		type          TEXT NOT NULL,
		details       TEXT NOT NULL DEFAULT '',
		detected_at   TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_delivery_exceptions_assignment
		ON delivery_exceptions(assignment_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

type seedZone struct {
	ID        string  `json:"id"`
	CenterLat float64 `json:"center_lat"`
	CenterLon float64 `json:"center_lon"`
	RadiusKm  float64 `json:"radius_km"`
	HoursFrom int     `json:"hours_from"`
	HoursTo   int     `json:"hours_to"`
	Priority  int     `json:"priority"`
}

type seedDriver struct {
	ID      string     `json:"id"`
	Name    string     `json:"name"`
	Vehicle string     `json:"vehicle"`
	Lat     float64    `json:"lat"`
	Lon     float64    `json:"lon"`
	Rating  float64    `json:"rating"`
	Zones   []seedZone `json:"zones"`
}

type seedOrder struct {
	ID           string  `json:"id"`
	BranchName   string  `json:"branch_name"`
	PickupLat    float64 `json:"pickup_lat"`
	PickupLon    float64 `json:"pickup_lon"`
	CustomerID   string  `json:"customer_id"`
	CustomerName string  `json:"customer_name"`
	DeliveryLat  float64 `json:"delivery_lat"`
	DeliveryLon  float64 `json:"delivery_lon"`
}

type seedFile struct {
	Drivers []seedDriver `json:"drivers"`
	Orders  []seedOrder  `json:"orders"`
}

// SeedFromJSON loads demo drivers and orders for local runs. Existing rows
// are left untouched.
func SeedFromJSON(db *sql.DB, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: read %q: %w", path, err)
	}

	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("seed: parse %q: %w", path, err)
	}

	for _, d := range seed.Drivers {
		_, err := db.Exec(`
		INSERT INTO drivers (id, name, vehicle, lat, lon, is_online, is_available, is_active, rating)
		VALUES ($1, $2, $3, $4, $5, TRUE, TRUE, TRUE, $6)
		ON CONFLICT (id) DO NOTHING`,
			d.ID, d.Name, d.Vehicle, d.Lat, d.Lon, d.Rating)
		if err != nil {
			return fmt.Errorf("seed: driver %s: %w", d.ID, err)
		}
		for _, z := range d.Zones {
			_, err := db.Exec(`
			INSERT INTO working_zones (id, driver_id, center_lat, center_lon, radius_km, hours_from, hours_to, priority)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
				z.ID, d.ID, z.CenterLat, z.CenterLon, z.RadiusKm, z.HoursFrom, z.HoursTo, z.Priority)
			if err != nil {
				return fmt.Errorf("seed: zone %s: %w", z.ID, err)
			}
		}
	}

	for _, o := range seed.Orders {
		_, err := db.Exec(`
		INSERT INTO orders (id, branch_name, pickup_lat, pickup_lon, customer_id, customer_name, delivery_lat, delivery_lon)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
			o.ID, o.BranchName, o.PickupLat, o.PickupLon, o.CustomerID, o.CustomerName, o.DeliveryLat, o.DeliveryLon)
		if err != nil {
			return fmt.Errorf("seed: order %s: %w", o.ID, err)
		}
	}

	return nil
}
