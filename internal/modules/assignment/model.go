// README: Assignment (offer) model, statuses, and state machine rules.
package assignment

import (
	"errors"
	"time"

	"relay/internal/types"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
	// StatusCancelled marks offers withdrawn because the customer cancelled
	// the request; kept distinct from expiry-by-timeout in history.
	StatusCancelled Status = "cancelled"
)

// Terminal statuses never transition again.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusExpired || s == StatusCancelled
}

type Response string

const (
	ResponseAccepted Response = "accepted"
	ResponseRejected Response = "rejected"
)

func (r Response) Valid() bool { return r == ResponseAccepted || r == ResponseRejected }

var (
	ErrNotFound        = errors.New("assignment not found")
	ErrForbidden       = errors.New("assignment belongs to another driver")
	ErrAlreadyResolved = errors.New("assignment already resolved")
	ErrInvalidResponse = errors.New("response must be accepted or rejected")
	// ErrDriverBusy is returned by the store when creating would give a
	// driver a second pending offer.
	ErrDriverBusy = errors.New("driver already has a pending assignment")
)

// Assignment is one time-bounded offer of a request to one driver.
type Assignment struct {
	ID        types.ID `json:"id"`
	RequestID types.ID `json:"request_id"`
	DriverID  types.ID `json:"driver_id"`
	Status    Status   `json:"status"`
	Priority  int      `json:"priority"`
	// Rank is the candidate's position in the ranked list at offer time.
	Rank        int        `json:"rank"`
	Score       float64    `json:"score"`
	DistanceKm  float64    `json:"distance_km"`
	EtaMinutes  int        `json:"eta_minutes"`
	AssignedAt  time.Time  `json:"assigned_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	// Reason carries the driver's reject reason or the cancel cause.
	Reason string `json:"reason,omitempty"`
}

// CandidateRef is the per-request snapshot of the ranked candidate list
// taken when offers are first issued; sequential re-offers walk it.
type CandidateRef struct {
	RequestID  types.ID
	Rank       int
	DriverID   types.ID
	Score      float64
	DistanceKm float64
	EtaMinutes int
}

// ResponseOutcome reports how a driver response (or timeout) resolved and
// whether the request needs another round of matching.
type ResponseOutcome struct {
	Assignment           *Assignment
	RequiresReassignment bool
}
