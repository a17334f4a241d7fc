// README: HTTP surface; registers routes and delegates to module services.
package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relay/internal/http/middleware"
	"relay/internal/modules/assignment"
	"relay/internal/modules/availability"
	"relay/internal/modules/driver"
	"relay/internal/modules/matching"
	"relay/internal/modules/stats"
	"relay/internal/types"
)

// RequestStore persists dispatch requests.
type RequestStore interface {
	Save(ctx context.Context, r *matching.Request) error
	Get(ctx context.Context, id types.ID) (*matching.Request, error)
}

// Matcher runs the candidate search.
type Matcher interface {
	FindMatches(ctx context.Context, req matching.Request) (matching.Result, error)
}

// Assignments is the offer lifecycle surface.
type Assignments interface {
	CreateAssignments(ctx context.Context, req matching.Request, matches []matching.Candidate) ([]assignment.Assignment, error)
	HandleDriverResponse(ctx context.Context, assignmentID, driverID types.ID, response assignment.Response, reason string) (assignment.ResponseOutcome, error)
	CancelRequest(ctx context.Context, requestID types.ID) error
}

// Availability is the driver status surface.
type Availability interface {
	SetStatus(ctx context.Context, driverID types.ID, status availability.Status, reason string, locationHint *types.Point) (*availability.Interval, error)
	Current(ctx context.Context, driverID types.ID) (*availability.Interval, error)
}

// GeoWriter feeds driver position pings into the spatial index.
type GeoWriter interface {
	Update(ctx context.Context, id types.ID, p types.Point) error
}

// DriverRegistry is the driver record surface.
type DriverRegistry interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
	Upsert(ctx context.Context, d *driver.Driver) error
}

// StatsSource serves performance snapshots.
type StatsSource interface {
	Latest(ctx context.Context, driverID types.ID) (*stats.Snapshot, error)
}

// Queue exposes the reassignment backlog.
type Queue interface {
	Enqueue(ctx context.Context, requestID types.ID, priority int, reason string) error
	Drain(ctx context.Context) (int, error)
}

type ServerDeps struct {
	Requests     RequestStore
	Finder       Matcher
	Assignments  Assignments
	Availability Availability
	Geo          GeoWriter
	Drivers      DriverRegistry
	Stats        StatsSource
	Queue        Queue
	Logger       *slog.Logger
}

type Server struct {
	requests     RequestStore
	finder       Matcher
	assignments  Assignments
	availability Availability
	geo          GeoWriter
	drivers      DriverRegistry
	stats        StatsSource
	queue        Queue
	logger       *slog.Logger
}

func NewServer(deps ServerDeps) *Server {
	return &Server{
		requests:     deps.Requests,
		finder:       deps.Finder,
		assignments:  deps.Assignments,
		availability: deps.Availability,
		geo:          deps.Geo,
		drivers:      deps.Drivers,
		stats:        deps.Stats,
		queue:        deps.Queue,
		logger:       deps.Logger,
	}
}

func (s *Server) Routes() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Recovery(s.logger))

	api := r.Group("/api")
	{
		api.POST("/dispatch/requests", s.createRequest)
		api.GET("/dispatch/requests/:id/matches", s.dryRunMatches)
		api.POST("/dispatch/requests/:id/cancel", s.cancelRequest)

		api.POST("/assignments/:id/response", s.driverResponse)

		api.POST("/drivers", s.upsertDriver)
		api.POST("/drivers/:id/availability", s.setAvailability)
		api.PUT("/drivers/:id/location", s.updateLocation)
		api.GET("/drivers/:id/stats", s.driverStats)

		api.POST("/queue/drain", s.drainQueue)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
