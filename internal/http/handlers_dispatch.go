// README: Dispatch request and assignment response handlers.
package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"relay/internal/modules/assignment"
	"relay/internal/modules/matching"
	"relay/internal/types"
)

type pointBody struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type createRequestBody struct {
	ID                string     `json:"id"`
	Kind              string     `json:"kind"`
	Pickup            pointBody  `json:"pickup"`
	Dropoff           *pointBody `json:"dropoff"`
	ServiceType       string     `json:"service_type"`
	PreferredDriverID string     `json:"preferred_driver_id"`
	MaxDistanceKm     float64    `json:"max_distance_km"`
	MinRating         float64    `json:"min_rating"`
	VehicleType       string     `json:"vehicle_type"`
	MinCapacity       int        `json:"min_capacity"`
	Priority          int        `json:"priority"`
	ScheduledFor      *time.Time `json:"scheduled_for"`
	Preferences       []string   `json:"preferences"`
}

func (b *createRequestBody) toRequest(now time.Time) matching.Request {
	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	req := matching.Request{
		ID:                types.ID(id),
		Kind:              matching.Kind(b.Kind),
		Pickup:            types.Point{Lat: b.Pickup.Lat, Lng: b.Pickup.Lng},
		ServiceType:       b.ServiceType,
		PreferredDriverID: types.ID(b.PreferredDriverID),
		Requirements: matching.Requirements{
			MaxDistanceKm: b.MaxDistanceKm,
			MinRating:     b.MinRating,
			VehicleType:   b.VehicleType,
			MinCapacity:   b.MinCapacity,
		},
		Priority:     b.Priority,
		ScheduledFor: b.ScheduledFor,
		Preferences:  b.Preferences,
		CreatedAt:    now,
	}
	if b.Dropoff != nil {
		req.Dropoff = &types.Point{Lat: b.Dropoff.Lat, Lng: b.Dropoff.Lng}
	}
	return req
}

// createRequest persists the request, runs matching, and issues offers.
// A request that matches nobody is queued for reassignment rather than
// failed; the owner hears the outcome over the event stream.
func (s *Server) createRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	req := body.toRequest(time.Now().UTC())
	if err := req.Validate(); err != nil {
		writeDispatchError(c, err)
		return
	}
	if err := s.requests.Save(c.Request.Context(), &req); err != nil {
		writeDispatchError(c, err)
		return
	}

	res, err := s.finder.FindMatches(c.Request.Context(), req)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if !res.Success {
		s.queueForRetry(c, req, res.Error)
		return
	}

	offers, err := s.assignments.CreateAssignments(c.Request.Context(), req, res.Matches)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	if len(offers) == 0 {
		s.queueForRetry(c, req, "all candidates busy")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"request_id":         req.ID,
		"matched":            true,
		"algorithm":          res.Algorithm,
		"estimated_wait_min": res.EstimatedWaitMin,
		"offers":             offers,
	})
}

func (s *Server) queueForRetry(c *gin.Context, req matching.Request, reason string) {
	if err := s.queue.Enqueue(c.Request.Context(), req.ID, req.Priority, reason); err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"request_id": req.ID,
		"matched":    false,
		"queued":     true,
		"reason":     reason,
	})
}

// dryRunMatches re-runs matching for a stored request without touching
// offers, for operators inspecting the ranked list.
func (s *Server) dryRunMatches(c *gin.Context) {
	req, err := s.requests.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	res, err := s.finder.FindMatches(c.Request.Context(), *req)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) cancelRequest(c *gin.Context) {
	id := types.ID(c.Param("id"))
	if err := s.assignments.CancelRequest(c.Request.Context(), id); err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request_id": id, "status": "cancelled"})
}

type responseBody struct {
	DriverID string `json:"driver_id"`
	Response string `json:"response"`
	Reason   string `json:"reason"`
}

func (s *Server) driverResponse(c *gin.Context) {
	var body responseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if body.DriverID == "" {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	out, err := s.assignments.HandleDriverResponse(
		c.Request.Context(),
		types.ID(c.Param("id")),
		types.ID(body.DriverID),
		assignment.Response(body.Response),
		body.Reason,
	)
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"assignment":            out.Assignment,
		"requires_reassignment": out.RequiresReassignment,
	})
}

func (s *Server) drainQueue(c *gin.Context) {
	dispatched, err := s.queue.Drain(c.Request.Context())
	if err != nil {
		writeDispatchError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatched": dispatched})
}
