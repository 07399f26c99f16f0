package geocsv

import (
	"github.com/golang/geo/s2"
)

// EarthRadius is the mean earth radius in meters used for distances.
const EarthRadius = 6371000.0

// Distance returns the great-circle distance in meters between two points
// given in degrees. The result is NaN when any coordinate is unknown.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	d, ok := distanceBetween(lat1, lon1, lat2, lon2)
	if !ok {
		return Unknown
	}
	return d
}

// distanceBetween is Distance with an explicit flag for unknown coordinates.
func distanceBetween(lat1, lon1, lat2, lon2 float64) (float64, bool) {
	if IsUnknown(lat1) || IsUnknown(lon1) || IsUnknown(lat2) || IsUnknown(lon2) {
		return 0, false
	}
	// s2 uses the haversine formula for LatLng distances.
	a := s2.LatLngFromDegrees(lat1, lon1)
	b := s2.LatLngFromDegrees(lat2, lon2)
	return a.Distance(b).Radians() * EarthRadius, true
}
