// Package geo provides geographic distance calculations.
package geo

import "math"

// EarthRadiusKm is the mean radius of Earth in kilometers.
const EarthRadiusKm = 6371.0

// Coordinates represents a geographic point in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineKm calculates the great-circle distance between two points
// given their latitude and longitude in decimal degrees.
// Returns the distance in kilometers. NaN inputs yield NaN.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := degreesToRadians(lat1)
	lat2Rad := degreesToRadians(lat2)
	deltaLat := degreesToRadians(lat2 - lat1)
	deltaLng := degreesToRadians(lng2 - lng1)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceKm calculates the distance in kilometers between two coordinate points.
// Callers validate that both points exist before calling.
func DistanceKm(from, to Coordinates) float64 {
	return HaversineKm(from.Lat, from.Lng, to.Lat, to.Lng)
}

// RoundKm rounds a distance to one decimal place, the precision used for display.
func RoundKm(km float64) float64 {
	return math.Round(km*10) / 10
}

func degreesToRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// IsValid returns true if the coordinates are within valid ranges.
// Latitude must be between -90 and 90, longitude between -180 and 180.
func (c Coordinates) IsValid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// IsZero returns true if both coordinates are zero (likely unset).
func (c Coordinates) IsZero() bool {
	return c.Lat == 0 && c.Lng == 0
}
