package geodesic

import (
	"math"

	"github.com/mzabaleta/veloloop/internal/core/domain"
)

const earthRadiusKm = 6371.0

// Distance calculates the great-circle distance in kilometers between two
// points (haversine, spherical-earth approximation). Symmetric, and zero
// only for identical points.
func Distance(a, b domain.Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// Project returns the point reached by travelling distanceKm from origin
// along the given compass bearing (degrees, 0 = north, clockwise) on a
// spherical earth. Distance(origin, Project(origin, b, d)) reproduces d to
// within floating-point tolerance.
func Project(origin domain.Point, bearingDeg, distanceKm float64) domain.Point {
	lat1 := toRad(origin.Lat)
	lng1 := toRad(origin.Lng)
	brg := toRad(math.Mod(math.Mod(bearingDeg, 360)+360, 360))
	d := distanceKm / earthRadiusKm

	lat2 := math.Asin(math.Sin(lat1)*math.Cos(d) +
		math.Cos(lat1)*math.Sin(d)*math.Cos(brg))
	lng2 := lng1 + math.Atan2(
		math.Sin(brg)*math.Sin(d)*math.Cos(lat1),
		math.Cos(d)-math.Sin(lat1)*math.Sin(lat2),
	)

	return domain.Point{
		Lat: toDeg(lat2),
		Lng: normalizeLng(toDeg(lng2)),
	}
}

// NormalizeBearing maps any bearing into [0, 360).
func NormalizeBearing(deg float64) float64 {
	return math.Mod(math.Mod(deg, 360)+360, 360)
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}

// normalizeLng wraps a longitude into [-180, 180].
func normalizeLng(lng float64) float64 {
	for lng > 180 {
		lng -= 360
	}
	for lng < -180 {
		lng += 360
	}
	return lng
}
