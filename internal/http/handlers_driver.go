// README: Driver-facing HTTP handlers: registry, availability, location, stats.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"relay/internal/modules/availability"
	"relay/internal/modules/driver"
	"relay/internal/types"
)

type upsertDriverBody struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	VehicleType string   `json:"vehicle_type"`
	Capacity    int      `json:"capacity"`
	Attributes  []string `json:"attributes"`
	Rating      float64  `json:"rating"`
	DeviceToken string   `json:"device_token"`
}

func (s *Server) upsertDriver(c *gin.Context) {
	var body upsertDriverBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if body.ID == "" || body.VehicleType == "" {
		writeError(c, http.StatusBadRequest, "missing id or vehicle_type")
		return
	}
	d := &driver.Driver{
		ID:          types.ID(body.ID),
		Name:        body.Name,
		VehicleType: body.VehicleType,
		Capacity:    body.Capacity,
		Attributes:  body.Attributes,
		Rating:      body.Rating,
		DeviceToken: body.DeviceToken,
	}
	if err := s.drivers.Upsert(c.Request.Context(), d); err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type availabilityBody struct {
	Status   string     `json:"status"`
	Reason   string     `json:"reason"`
	Location *pointBody `json:"location"`
}

func (s *Server) setAvailability(c *gin.Context) {
	var body availabilityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	var hint *types.Point
	if body.Location != nil {
		hint = &types.Point{Lat: body.Location.Lat, Lng: body.Location.Lng}
	}
	iv, err := s.availability.SetStatus(
		c.Request.Context(),
		types.ID(c.Param("id")),
		availability.Status(body.Status),
		body.Reason,
		hint,
	)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, iv)
}

func (s *Server) updateLocation(c *gin.Context) {
	var body pointBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	p := types.Point{Lat: body.Lat, Lng: body.Lng}
	if p.Zero() || !p.Valid() {
		writeError(c, http.StatusBadRequest, "invalid coordinates")
		return
	}
	driverID := types.ID(c.Param("id"))

	// Only working drivers belong in the spatial index.
	iv, err := s.availability.Current(c.Request.Context(), driverID)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if iv == nil || !iv.Status.Working() {
		c.JSON(http.StatusOK, gin.H{"driver_id": driverID, "indexed": false})
		return
	}
	if err := s.geo.Update(c.Request.Context(), driverID, p); err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"driver_id": driverID, "indexed": true})
}

func (s *Server) driverStats(c *gin.Context) {
	snap, err := s.stats.Latest(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
