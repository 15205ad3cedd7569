package config

import (
	"os"
	"strconv"
	"time"

	"delivery-dispatch-service/internal/domain"
)

// Get returns the environment value for key, or fallback when unset.
func Get(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func GetInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func GetFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func GetDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// Dispatch aggregates the engine tunables. Values are read once at startup;
// defaults reflect urban traffic (~2 minutes per kilometer).
type Dispatch struct {
	OfferResponseWindow time.Duration
	MaxOffers           int
	SweepInterval       time.Duration

	// MinutesPerKm maps vehicle type to a speed-to-time factor; Default is
	// used for unknown types.
	MinutesPerKm        map[domain.VehicleType]float64
	DefaultMinutesPerKm float64

	// Candidate search.
	MaxCandidateDistanceKm float64

	// Batching: pickups further apart than this cannot share a run.
	BatchPickupRadiusKm float64

	// Tracker thresholds.
	OffRouteThresholdKm float64
	StalledWindow       time.Duration
	StalledEpsilonKm    float64
	MissedWindowGrace   time.Duration

	// Reporting.
	OnTimeGrace time.Duration

	// Location cache freshness.
	LocationTTL time.Duration
}

// LoadDispatch reads dispatch tunables from the environment.
func LoadDispatch() Dispatch {
	return Dispatch{
		OfferResponseWindow: GetDuration("OFFER_RESPONSE_WINDOW", 60*time.Second),
		MaxOffers:           GetInt("MAX_OFFERS", 5),
		SweepInterval:       GetDuration("SWEEP_INTERVAL", 15*time.Second),
		MinutesPerKm: map[domain.VehicleType]float64{
			domain.VehicleBike:    GetFloat("MINUTES_PER_KM_BIKE", 3.0),
			domain.VehicleScooter: GetFloat("MINUTES_PER_KM_SCOOTER", 2.2),
			domain.VehicleCar:     GetFloat("MINUTES_PER_KM_CAR", 2.0),
		},
		DefaultMinutesPerKm:    GetFloat("MINUTES_PER_KM", 2.0),
		MaxCandidateDistanceKm: GetFloat("MAX_CANDIDATE_DISTANCE_KM", 10.0),
		BatchPickupRadiusKm:    GetFloat("BATCH_PICKUP_RADIUS_KM", 2.0),
		OffRouteThresholdKm:    GetFloat("OFF_ROUTE_THRESHOLD_KM", 1.0),
		StalledWindow:          GetDuration("STALLED_WINDOW", 5*time.Minute),
		StalledEpsilonKm:       GetFloat("STALLED_EPSILON_KM", 0.05),
		MissedWindowGrace:      GetDuration("MISSED_WINDOW_GRACE", 10*time.Minute),
		OnTimeGrace:            GetDuration("ON_TIME_GRACE", 5*time.Minute),
		LocationTTL:            GetDuration("LOCATION_TTL", 2*time.Minute),
	}
}

// Factor returns the minutes-per-km factor for a vehicle type.
func (d Dispatch) Factor(v domain.VehicleType) float64 {
	if f, ok := d.MinutesPerKm[v]; ok && f > 0 {
		return f
	}
	return d.DefaultMinutesPerKm
}
