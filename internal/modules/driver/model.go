// README: Driver registry records: identity, vehicle, rating, device token.
package driver

import (
	"errors"
	"time"

	"relay/internal/types"
)

var ErrNotFound = errors.New("driver not found")

// Driver is the registry record for one driver. Profile editing lives in
// another service; dispatch only reads these fields.
type Driver struct {
	ID          types.ID
	Name        string
	VehicleType string
	Capacity    int
	// Attributes are free-form vehicle/service tags ("pet_friendly",
	// "thermal_bag", "wheelchair") matched against customer preferences.
	Attributes  []string
	Rating      float64
	DeviceToken string
	CreatedAt   time.Time
}

// HasAttribute reports whether the driver advertises the given tag.
func (d *Driver) HasAttribute(tag string) bool {
	for _, a := range d.Attributes {
		if a == tag {
			return true
		}
	}
	return false
}
