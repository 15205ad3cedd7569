package domain

import "fmt"

// Immutable geographic coordinates (latitude, longitude) in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ValidateCoordinates checks latitude/longitude ranges.
func ValidateCoordinates(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return &ValidationError{Field: "lat", Reason: fmt.Sprintf("latitude %v out of range [-90,90]", lat)}
	}
	if lon < -180 || lon > 180 {
		return &ValidationError{Field: "lon", Reason: fmt.Sprintf("longitude %v out of range [-180,180]", lon)}
	}
	return nil
}

// Validate checks the receiver's ranges.
func (c Coordinates) Validate() error {
	return ValidateCoordinates(c.Lat, c.Lon)
}
