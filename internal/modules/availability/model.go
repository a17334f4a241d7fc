// README: Driver availability statuses and interval records.
package availability

import (
	"errors"
	"time"

	"relay/internal/types"
)

type Status string

const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusBusy        Status = "busy"
	StatusAvailable   Status = "available"
	StatusBreak       Status = "break"
	StatusEmergency   Status = "emergency"
	StatusMaintenance Status = "maintenance"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusBusy, StatusAvailable,
		StatusBreak, StatusEmergency, StatusMaintenance:
		return true
	default:
		return false
	}
}

// Working reports whether the driver can receive offers in this status.
func (s Status) Working() bool {
	return s == StatusOnline || s == StatusAvailable
}

var (
	ErrDriverNotFound = errors.New("driver not found")
	ErrInvalidStatus  = errors.New("invalid availability status")
)

// Interval is one declared-state span for a driver. EndedAt is nil while
// the interval is the driver's current state; a new status closes the open
// interval at the same instant it opens its own.
type Interval struct {
	ID        int64
	DriverID  types.ID
	Status    Status
	Reason    string
	StartedAt time.Time
	EndedAt   *time.Time
}
