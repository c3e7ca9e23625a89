// Package geo provides great-circle distance calculations.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Point is a coordinate in decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// DistanceTo returns the great-circle distance in kilometers from p to q.
func (p Point) DistanceTo(q Point) float64 {
	return DistanceKm(p.Lat, p.Lng, q.Lat, q.Lng)
}

// DistanceKm returns the haversine distance in kilometers between two
// coordinates. Inputs are not range-checked. Identical coordinates yield
// exactly zero.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}

	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	a := sinLat*sinLat + math.Cos(radians(lat1))*math.Cos(radians(lat2))*sinLng*sinLng

	// Rounding can push a marginally past 1 for near-antipodal points.
	a = min(max(a, 0), 1)

	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
