// README: Geo index result types.
package geo

import (
	"time"

	"relay/internal/types"
)

// NearbyDriver is one driver position hit within a radius query, nearest
// first. DistanceKm is full precision.
type NearbyDriver struct {
	DriverID   types.ID
	Position   types.Point
	DistanceKm float64
	RecordedAt time.Time
}
