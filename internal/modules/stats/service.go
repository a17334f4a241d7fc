// README: Performance aggregator: rolling acceptance, response time, online time.
package stats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"relay/internal/config"
	"relay/internal/modules/assignment"
	"relay/internal/modules/matching"
	"relay/internal/types"
)

// SnapshotStore is the persistence surface of the aggregator.
type SnapshotStore interface {
	Upsert(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, driverID types.ID) (*Snapshot, error)
	GetBatch(ctx context.Context, ids []types.ID) (map[types.ID]*Snapshot, error)
}

// TerminalSource yields a driver's resolved offers inside a window.
type TerminalSource interface {
	TerminalByDriverSince(ctx context.Context, driverID types.ID, from, to time.Time) ([]assignment.Assignment, error)
}

// OnlineSource yields a driver's accumulated working time.
type OnlineSource interface {
	OnlineMinutes(ctx context.Context, driverID types.ID, since time.Time) (time.Duration, error)
}

type Aggregator struct {
	store       SnapshotStore
	assignments TerminalSource
	online      OnlineSource
	cfg         config.StatsConfig
	logger      *slog.Logger
	now         func() time.Time
}

func NewAggregator(
	store SnapshotStore,
	assignments TerminalSource,
	online OnlineSource,
	cfg config.StatsConfig,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		store:       store,
		assignments: assignments,
		online:      online,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

func (a *Aggregator) window() time.Duration {
	return time.Duration(a.cfg.WindowDays) * 24 * time.Hour
}

// Recompute rebuilds the driver's snapshot from resolved offers and
// availability intervals inside the rolling window, and persists it.
func (a *Aggregator) Recompute(ctx context.Context, driverID types.ID) (*Snapshot, error) {
	end := a.now().UTC()
	start := end.Add(-a.window())

	resolved, err := a.assignments.TerminalByDriverSince(ctx, driverID, start, end)
	if err != nil {
		return nil, err
	}
	onlineFor, err := a.online.OnlineMinutes(ctx, driverID, start)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		DriverID:      driverID,
		WindowStart:   start,
		WindowEnd:     end,
		OnlineMinutes: onlineFor.Minutes(),
		ComputedAt:    end,
	}

	var responseTotal time.Duration
	var scoreTotal float64
	responses := 0
	for _, offer := range resolved {
		snap.OffersTotal++
		scoreTotal += offer.Score
		switch offer.Status {
		case assignment.StatusAccepted:
			snap.Accepted++
		case assignment.StatusRejected:
			snap.Rejected++
		case assignment.StatusExpired:
			snap.Expired++
		case assignment.StatusCancelled:
			snap.Cancelled++
		}
		if offer.RespondedAt != nil {
			responseTotal += offer.RespondedAt.Sub(offer.AssignedAt)
			responses++
		}
	}

	// Expiries count against the driver as implicit declines.
	answered := snap.Accepted + snap.Rejected + snap.Expired
	if answered > 0 {
		rate := float64(snap.Accepted) / float64(answered)
		snap.AcceptanceRate = &rate
	}
	if responses > 0 {
		avg := responseTotal.Seconds() / float64(responses)
		snap.AvgResponseSec = &avg
	}
	if snap.OffersTotal > 0 {
		avg := scoreTotal / float64(snap.OffersTotal)
		snap.AvgScore = &avg
	}

	if err := a.store.Upsert(ctx, snap); err != nil {
		return nil, err
	}
	a.logger.Debug("driver stats recomputed",
		"driver_id", driverID, "offers", snap.OffersTotal, "online_min", snap.OnlineMinutes)
	return snap, nil
}

// Latest returns the stored snapshot, recomputing synchronously when it is
// missing or older than the staleness bound.
func (a *Aggregator) Latest(ctx context.Context, driverID types.ID) (*Snapshot, error) {
	snap, err := a.store.Get(ctx, driverID)
	if errors.Is(err, ErrNoSnapshot) {
		return a.Recompute(ctx, driverID)
	}
	if err != nil {
		return nil, err
	}
	stale := time.Duration(a.cfg.StaleAfterSec) * time.Second
	if a.now().UTC().Sub(snap.ComputedAt) > stale {
		return a.Recompute(ctx, driverID)
	}
	return snap, nil
}

// RollingBatch adapts stored snapshots into the matcher's rolling metrics,
// recomputing any snapshot that is missing or past the staleness bound so
// scoring feeds on current history. Drivers without an answered offer in
// the window are simply absent, which the scorer treats as no history. A
// failed recompute degrades that one driver to no history instead of
// failing the match.
func (a *Aggregator) RollingBatch(ctx context.Context, ids []types.ID) (map[types.ID]matching.Rolling, error) {
	snaps, err := a.store.GetBatch(ctx, ids)
	if err != nil {
		return nil, err
	}
	stale := time.Duration(a.cfg.StaleAfterSec) * time.Second
	now := a.now().UTC()
	out := make(map[types.ID]matching.Rolling, len(ids))
	for _, id := range ids {
		snap := snaps[id]
		if snap == nil || now.Sub(snap.ComputedAt) > stale {
			snap, err = a.Recompute(ctx, id)
			if err != nil {
				a.logger.Warn("stats recompute failed, scoring without history",
					"driver_id", id, "err", err)
				continue
			}
		}
		if snap.AcceptanceRate == nil && snap.AvgResponseSec == nil {
			continue
		}
		out[id] = matching.Rolling{
			AcceptanceRate: snap.AcceptanceRate,
			AvgResponseSec: snap.AvgResponseSec,
		}
	}
	return out, nil
}
