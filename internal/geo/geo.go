package geo

import "math"

const earthRadiusKm = 6371.0

// Position is a GPS fix in decimal degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// IsZero reports whether the position has never been set.
func (p Position) IsZero() bool {
	return p.Lat == 0 && p.Lng == 0
}

// DistanceKm calculates the haversine distance between two GPS coordinates
// in kilometers.
func DistanceKm(a, b Position) float64 {
	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// SpeedKmh derives speed in km/h from two fixes and the elapsed seconds
// between them. Returns 0 when no time has passed.
func SpeedKmh(from, to Position, elapsedSeconds float64) float64 {
	if elapsedSeconds <= 0 {
		return 0
	}
	meters := DistanceKm(from, to) * 1000
	return (meters / elapsedSeconds) * 3.6
}
