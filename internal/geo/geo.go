// Package geo holds the pure geospatial math shared by the directory,
// optimizer, ETA and tracking services. No state, no I/O.
package geo

import (
	"math"

	"delivery-dispatch-service/internal/domain"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance between a and b
// in kilometers.
func DistanceKm(a, b domain.Coordinates) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// InBoundingBox is a cheap prefilter: it reports whether p lies inside the
// axis-aligned box of radiusKm around center. Callers must still confirm with
// DistanceKm; the box over-approximates the circle.
func InBoundingBox(center, p domain.Coordinates, radiusKm float64) bool {
	if radiusKm <= 0 {
		return false
	}
	dLat := radiusKm / 111.0 // ~111 km per degree of latitude
	latDelta := math.Abs(p.Lat - center.Lat)
	if latDelta > dLat {
		return false
	}

	// Longitude degrees shrink with latitude; guard the pole singularity.
	cosLat := math.Cos(radians(center.Lat))
	if cosLat < 1e-6 {
		return true
	}
	dLon := radiusKm / (111.0 * cosLat)
	return math.Abs(p.Lon-center.Lon) <= dLon
}

// NearestPointOnSegment projects p onto the segment a-b using an
// equirectangular approximation (adequate at delivery scales) and returns the
// nearest point plus the distance from p to it in kilometers.
func NearestPointOnSegment(p, a, b domain.Coordinates) (domain.Coordinates, float64) {
	// Flatten to a local plane around a: x east, y north, in km.
	cosLat := math.Cos(radians(a.Lat))
	ax, ay := 0.0, 0.0
	bx := (b.Lon - a.Lon) * 111.0 * cosLat
	by := (b.Lat - a.Lat) * 111.0
	px := (p.Lon - a.Lon) * 111.0 * cosLat
	py := (p.Lat - a.Lat) * 111.0

	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy

	t := 0.0
	if segLenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / segLenSq
		t = math.Max(0, math.Min(1, t))
	}

	nearest := domain.Coordinates{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lon: a.Lon + (b.Lon-a.Lon)*t,
	}
	return nearest, DistanceKm(p, nearest)
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
