// README: Match finder: candidate search, filtering, scoring, ranking.
package matching

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"relay/internal/config"
	"relay/internal/modules/availability"
	"relay/internal/modules/driver"
	"relay/internal/modules/geo"
	"relay/internal/modules/scoring"
	"relay/internal/obs"
	"relay/internal/types"
)

// GeoSource yields drivers near a point, nearest first.
type GeoSource interface {
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]geo.NearbyDriver, error)
}

// AvailabilitySource yields the current status of many drivers.
type AvailabilitySource interface {
	CurrentBatch(ctx context.Context, driverIDs []types.ID) (map[types.ID]*availability.Interval, error)
}

// DriverSource yields registry records for candidate hydration.
type DriverSource interface {
	GetBatch(ctx context.Context, ids []types.ID) (map[types.ID]*driver.Driver, error)
}

// OpenAssignmentSource reports which of the given drivers already hold a
// pending or accepted assignment; those are not eligible.
type OpenAssignmentSource interface {
	DriversWithOpenAssignments(ctx context.Context, ids []types.ID) (map[types.ID]bool, error)
}

// RollingSource yields rolling performance metrics for scoring. Drivers
// without history are simply absent.
type RollingSource interface {
	RollingBatch(ctx context.Context, ids []types.ID) (map[types.ID]Rolling, error)
}

// WaitRefiner optionally sharpens the reported wait estimate with live
// travel data. Failures fall back to the straight-line estimate, so the
// ranked result never depends on it.
type WaitRefiner interface {
	EstimateMinutes(ctx context.Context, origin, dest types.Point) (int, error)
}

type Finder struct {
	geo         GeoSource
	avail       AvailabilitySource
	drivers     DriverSource
	assignments OpenAssignmentSource
	rolling     RollingSource
	engine      *scoring.Engine
	refiner     WaitRefiner
	cfg         config.MatchingConfig
	logger      *slog.Logger
}

func NewFinder(
	geoSrc GeoSource,
	avail AvailabilitySource,
	drivers DriverSource,
	assignments OpenAssignmentSource,
	rolling RollingSource,
	engine *scoring.Engine,
	refiner WaitRefiner,
	cfg config.MatchingConfig,
	logger *slog.Logger,
) *Finder {
	return &Finder{
		geo:         geoSrc,
		avail:       avail,
		drivers:     drivers,
		assignments: assignments,
		rolling:     rolling,
		engine:      engine,
		refiner:     refiner,
		cfg:         cfg,
		logger:      logger,
	}
}

// FindMatches produces the ranked candidate list for a request. An empty
// pool after filtering returns Success=false with a descriptive error; the
// error return is reserved for store failures.
func (f *Finder) FindMatches(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := f.findMatches(ctx, req)
	obs.MatchDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		obs.MatchAttempts.WithLabelValues("error").Inc()
	case !res.Success:
		obs.MatchAttempts.WithLabelValues("no_candidates").Inc()
	default:
		obs.MatchAttempts.WithLabelValues("matched").Inc()
	}
	return res, err
}

func (f *Finder) findMatches(ctx context.Context, req Request) (Result, error) {
	algorithm := f.engine.Algorithm()

	if err := req.Validate(); err != nil {
		return Result{Algorithm: algorithm}, err
	}

	radius := req.Requirements.MaxDistanceKm
	if radius <= 0 {
		radius = f.cfg.DefaultRadiusKm
	}
	if radius > f.cfg.MaxRadiusKm {
		radius = f.cfg.MaxRadiusKm
	}

	hits, err := f.geo.Nearby(ctx, req.Pickup, radius)
	if err != nil {
		return Result{Algorithm: algorithm}, err
	}
	if len(hits) == 0 {
		return Result{Algorithm: algorithm, Error: "no drivers within radius"}, nil
	}

	ids := make([]types.ID, len(hits))
	for i, h := range hits {
		ids[i] = h.DriverID
	}

	statuses, err := f.avail.CurrentBatch(ctx, ids)
	if err != nil {
		return Result{Algorithm: algorithm}, err
	}
	records, err := f.drivers.GetBatch(ctx, ids)
	if err != nil {
		return Result{Algorithm: algorithm}, err
	}
	busy, err := f.assignments.DriversWithOpenAssignments(ctx, ids)
	if err != nil {
		return Result{Algorithm: algorithm}, err
	}
	rollings, err := f.rolling.RollingBatch(ctx, ids)
	if err != nil {
		return Result{Algorithm: algorithm}, err
	}

	maxDist := req.Requirements.MaxDistanceKm
	if maxDist <= 0 {
		maxDist = radius
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		if h.DistanceKm > maxDist {
			continue
		}
		iv := statuses[h.DriverID]
		if iv == nil || !iv.Status.Working() {
			continue
		}
		if busy[h.DriverID] {
			continue
		}
		rec := records[h.DriverID]
		if rec == nil {
			// Position in the index but no registry record: stale entry.
			continue
		}
		if !f.meetsRequirements(req, rec) {
			continue
		}

		roll := rollings[h.DriverID]
		breakdown := f.engine.Score(scoring.Input{
			DistanceKm:     h.DistanceKm,
			MaxDistanceKm:  maxDist,
			Rating:         rec.Rating,
			AcceptanceRate: roll.AcceptanceRate,
			AvgResponseSec: roll.AvgResponseSec,
			Preferred:      req.PreferredDriverID != "" && req.PreferredDriverID == rec.ID,
			PreferenceHits: preferenceHits(req.Preferences, rec),
		})

		candidates = append(candidates, Candidate{
			DriverID:    h.DriverID,
			Position:    h.Position,
			PositionAt:  h.RecordedAt,
			VehicleType: rec.VehicleType,
			Rating:      rec.Rating,
			Status:      iv.Status,
			DistanceKm:  h.DistanceKm,
			EtaMinutes:  geo.EtaMinutes(h.DistanceKm, f.cfg.AvgSpeedKmh),
			Score:       breakdown.Total,
			Breakdown:   breakdown,
		})
	}

	if len(candidates) == 0 {
		return Result{Algorithm: algorithm, Error: "no eligible candidates after filtering"}, nil
	}

	sortCandidates(candidates)

	// The cap bounds the ranked result, not the raw radius hits; drivers
	// filtered out above must not consume candidate slots.
	if f.cfg.MaxCandidates > 0 && len(candidates) > f.cfg.MaxCandidates {
		candidates = candidates[:f.cfg.MaxCandidates]
	}

	wait := f.estimateWait(ctx, req, candidates[0])
	f.logger.Debug("match found",
		"request_id", req.ID, "candidates", len(candidates),
		"top_driver", candidates[0].DriverID, "top_score", candidates[0].Score)

	return Result{
		Success:          true,
		Matches:          candidates,
		EstimatedWaitMin: &wait,
		Algorithm:        algorithm,
	}, nil
}

func (f *Finder) meetsRequirements(req Request, rec *driver.Driver) bool {
	if req.Requirements.MinRating > 0 && rec.Rating < req.Requirements.MinRating {
		return false
	}
	if req.Requirements.VehicleType != "" && rec.VehicleType != req.Requirements.VehicleType {
		return false
	}
	if req.Requirements.MinCapacity > 0 && rec.Capacity < req.Requirements.MinCapacity {
		return false
	}
	if req.ServiceType != "" && req.Requirements.VehicleType == "" && rec.VehicleType != req.ServiceType {
		return false
	}
	return true
}

func (f *Finder) estimateWait(ctx context.Context, req Request, top Candidate) int {
	wait := top.EtaMinutes
	if f.refiner == nil {
		return wait
	}
	refined, err := f.refiner.EstimateMinutes(ctx, top.Position, req.Pickup)
	if err != nil {
		f.logger.Debug("wait refinement failed, using straight-line estimate",
			"request_id", req.ID, "err", err)
		return wait
	}
	return refined
}

func preferenceHits(prefs []string, rec *driver.Driver) int {
	hits := 0
	for _, p := range prefs {
		if rec.HasAttribute(p) {
			hits++
		}
	}
	return hits
}

// sortCandidates orders by score desc; ties break on shorter distance,
// then lower driver id, so rank order is fully deterministic.
func sortCandidates(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Score != cs[j].Score {
			return cs[i].Score > cs[j].Score
		}
		if cs[i].DistanceKm != cs[j].DistanceKm {
			return cs[i].DistanceKm < cs[j].DistanceKm
		}
		return cs[i].DriverID < cs[j].DriverID
	})
}
