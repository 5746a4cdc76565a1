// Package geo provides great-circle distance math for proximity queries.
package geo

import "math"

// EarthRadiusKM is the mean earth radius used for all distance computations.
const EarthRadiusKM = 6371.0

// DistanceKM returns the great-circle distance in kilometers between two
// points using the haversine formula. Deterministic for identical inputs.
func DistanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKM * c
}

// ValidLatLon reports whether the coordinates are within valid ranges.
func ValidLatLon(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// boxPadding over-sizes the prefilter box so a point at exactly the radius
// can never fall outside it through float rounding. The exact haversine check
// downstream discards anything the padding lets through.
const boxPadding = 1.01

// BoundingBox returns the latitude/longitude deltas in degrees that strictly
// enclose a circle of radiusKM around the given latitude. Used as a cheap SQL
// prefilter before the exact haversine check.
func BoundingBox(lat, radiusKM float64) (dLat, dLon float64) {
	dLat = radiusKM * boxPadding / EarthRadiusKM * 180 / math.Pi
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		// Near the poles every longitude is within reach.
		return dLat, 180
	}
	dLon = dLat / cos
	return dLat, dLon
}
