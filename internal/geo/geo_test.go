package geo

import (
	"math"
	"testing"

	"delivery-dispatch-service/internal/domain"
)

func TestDistanceIdentityAndSymmetry(t *testing.T) {
	pairs := []struct{ a, b domain.Coordinates }{
		{domain.Coordinates{Lat: 24.7136, Lon: 46.6753}, domain.Coordinates{Lat: 24.7118, Lon: 46.6749}},
		{domain.Coordinates{Lat: 0, Lon: 0}, domain.Coordinates{Lat: 0, Lon: 1}},
		{domain.Coordinates{Lat: -33.8688, Lon: 151.2093}, domain.Coordinates{Lat: 51.5074, Lon: -0.1278}},
	}

	for _, p := range pairs {
		if d := DistanceKm(p.a, p.a); d != 0 {
			t.Fatalf("distance(A,A) = %v, want 0", d)
		}
		ab := DistanceKm(p.a, p.b)
		ba := DistanceKm(p.b, p.a)
		if ab < 0 {
			t.Fatalf("distance must be non-negative, got %v", ab)
		}
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("distance not symmetric: %v vs %v", ab, ba)
		}
	}
}

func TestDistanceKnownValue(t *testing.T) {
	// One degree of longitude at the equator is ~111.19 km.
	d := DistanceKm(domain.Coordinates{Lat: 0, Lon: 0}, domain.Coordinates{Lat: 0, Lon: 1})
	if math.Abs(d-111.19) > 0.5 {
		t.Fatalf("equator degree = %v km, want ~111.19", d)
	}
}

func TestInBoundingBox(t *testing.T) {
	center := domain.Coordinates{Lat: 24.7136, Lon: 46.6753}

	near := domain.Coordinates{Lat: 24.7150, Lon: 46.6760}
	if !InBoundingBox(center, near, 1.0) {
		t.Fatalf("expected %v inside 1km box around %v", near, center)
	}

	far := domain.Coordinates{Lat: 24.9000, Lon: 46.6753}
	if InBoundingBox(center, far, 1.0) {
		t.Fatalf("expected %v outside 1km box around %v", far, center)
	}

	if InBoundingBox(center, near, 0) {
		t.Fatalf("zero radius box must be empty")
	}
}

func TestNearestPointOnSegment(t *testing.T) {
	a := domain.Coordinates{Lat: 0, Lon: 0}
	b := domain.Coordinates{Lat: 0, Lon: 1}

	// Point above the midpoint projects onto the midpoint.
	p := domain.Coordinates{Lat: 0.1, Lon: 0.5}
	nearest, d := NearestPointOnSegment(p, a, b)
	if math.Abs(nearest.Lon-0.5) > 1e-6 || math.Abs(nearest.Lat) > 1e-6 {
		t.Fatalf("nearest = %+v, want (0, 0.5)", nearest)
	}
	if math.Abs(d-DistanceKm(p, nearest)) > 1e-9 {
		t.Fatalf("distance mismatch: %v", d)
	}

	// Point beyond the segment end clamps to the endpoint.
	q := domain.Coordinates{Lat: 0, Lon: 2}
	nearest, _ = NearestPointOnSegment(q, a, b)
	if math.Abs(nearest.Lon-1) > 1e-6 {
		t.Fatalf("nearest = %+v, want clamp to (0, 1)", nearest)
	}
}
