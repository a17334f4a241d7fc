// README: Pure geographic computation helpers.
package geo

import (
	"math"

	"relay/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// DisplayKm rounds a distance to two decimals for API responses. Scoring
// and sorting always use the full-precision value.
func DisplayKm(km float64) float64 {
	return math.Round(km*100) / 100
}

// EtaMinutes estimates travel time from straight-line distance and an
// assumed average speed, rounded up to the nearest whole minute.
func EtaMinutes(distanceKm, avgSpeedKmh float64) int {
	if distanceKm <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm / avgSpeedKmh * 60))
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
