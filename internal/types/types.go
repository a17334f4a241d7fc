// README: Shared value types used across modules.
package types

import "math"

type ID string

func (id ID) String() string { return string(id) }

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zero reports whether the point carries no coordinate.
func (p Point) Zero() bool { return p.Lat == 0 && p.Lng == 0 }

// Valid reports whether the point is inside the WGS84 coordinate range.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lng) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
