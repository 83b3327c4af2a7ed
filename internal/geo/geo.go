// Package geo provides stateless great-circle distance computation and the
// radius decision used for location-based check-in.
package geo

import "math"

// EarthRadiusMeters is the mean earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two
// coordinates using the haversine formula. Distance(x, x) is exactly zero
// for any point.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if lat1 == lat2 && lon1 == lon2 {
		return 0
	}

	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// Result captures the outcome of a radius check.
type Result struct {
	WithinRadius   bool
	DistanceMeters float64
}

// Verify reports whether the user coordinate falls within radiusMeters of
// the event coordinate. The boundary is inclusive: a user at exactly
// radiusMeters is within radius.
func Verify(userLat, userLon, eventLat, eventLon, radiusMeters float64) Result {
	distance := Distance(userLat, userLon, eventLat, eventLon)
	return Result{
		WithinRadius:   distance <= radiusMeters,
		DistanceMeters: distance,
	}
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
