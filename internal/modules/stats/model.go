// README: Driver performance snapshot model.
package stats

import (
	"errors"
	"time"

	"relay/internal/types"
)

var ErrNoSnapshot = errors.New("no performance snapshot for driver")

// Snapshot is a driver's rolling performance over one window. Acceptance
// rate counts expiries as implicit declines: accepted over accepted plus
// rejected plus expired. Cancelled offers are excluded; the customer
// withdrew, the driver never answered.
type Snapshot struct {
	DriverID       types.ID  `json:"driver_id"`
	WindowStart    time.Time `json:"window_start"`
	WindowEnd      time.Time `json:"window_end"`
	OffersTotal    int       `json:"offers_total"`
	Accepted       int       `json:"accepted"`
	Rejected       int       `json:"rejected"`
	Expired        int       `json:"expired"`
	Cancelled      int       `json:"cancelled"`
	AcceptanceRate *float64  `json:"acceptance_rate,omitempty"`
	AvgResponseSec *float64  `json:"avg_response_sec,omitempty"`
	AvgScore       *float64  `json:"avg_score,omitempty"`
	OnlineMinutes  float64   `json:"online_minutes"`
	ComputedAt     time.Time `json:"computed_at"`
}
