// README: Dispatch request and driver candidate models.
package matching

import (
	"errors"
	"time"

	"relay/internal/modules/availability"
	"relay/internal/modules/scoring"
	"relay/internal/types"
)

// Kind distinguishes the two units of dispatchable work the marketplace
// produces. The request id is the order id or ride id accordingly.
type Kind string

const (
	KindOrder Kind = "order"
	KindRide  Kind = "ride"
)

func (k Kind) Valid() bool { return k == KindOrder || k == KindRide }

var (
	ErrMissingPickup = errors.New("request has no pickup location")
	ErrUnknownKind   = errors.New("request kind must be order or ride")
)

// Requirements narrow the candidate pool before scoring.
type Requirements struct {
	MaxDistanceKm float64 `json:"max_distance_km"`
	MinRating     float64 `json:"min_rating"`
	VehicleType   string  `json:"vehicle_type"`
	MinCapacity   int     `json:"min_capacity"`
}

// Request is one unit of dispatchable work. Immutable once created; the
// finder consumes it without mutation.
type Request struct {
	ID                types.ID     `json:"id"`
	Kind              Kind         `json:"kind"`
	Pickup            types.Point  `json:"pickup"`
	Dropoff           *types.Point `json:"dropoff,omitempty"`
	ServiceType       string       `json:"service_type"`
	PreferredDriverID types.ID     `json:"preferred_driver_id,omitempty"`
	Requirements      Requirements `json:"requirements"`
	Priority          int          `json:"priority"`
	ScheduledFor      *time.Time   `json:"scheduled_for,omitempty"`
	// Preferences are customer hints matched against vehicle attributes.
	Preferences []string  `json:"preferences,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate surfaces client errors per the dispatch error taxonomy:
// malformed requests are rejected immediately, never retried.
func (r *Request) Validate() error {
	if !r.Kind.Valid() {
		return ErrUnknownKind
	}
	if r.Pickup.Zero() || !r.Pickup.Valid() {
		return ErrMissingPickup
	}
	return nil
}

// Rolling carries a driver's rolling performance metrics. Nil fields mean
// the driver has no history yet.
type Rolling struct {
	AcceptanceRate *float64
	AvgResponseSec *float64
}

// Candidate is a driver considered for a request, with derived distance,
// ETA and score filled in by the finder.
type Candidate struct {
	DriverID    types.ID            `json:"driver_id"`
	Position    types.Point         `json:"position"`
	PositionAt  time.Time           `json:"position_at"`
	VehicleType string              `json:"vehicle_type"`
	Rating      float64             `json:"rating"`
	Status      availability.Status `json:"status"`
	DistanceKm  float64             `json:"distance_km"`
	EtaMinutes  int                 `json:"eta_minutes"`
	Score       float64             `json:"score"`
	Breakdown   scoring.Breakdown   `json:"breakdown"`
}

// Result is the outcome of one matching attempt. Success=false with an
// Error is an expected outcome (empty pool), not a system failure.
type Result struct {
	Success          bool        `json:"success"`
	Matches          []Candidate `json:"matches,omitempty"`
	EstimatedWaitMin *int        `json:"estimated_wait_min,omitempty"`
	Algorithm        string      `json:"algorithm"`
	Error            string      `json:"error,omitempty"`
}
