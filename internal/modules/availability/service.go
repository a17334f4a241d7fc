// README: Availability tracker: per-driver status state machine and online-time bookkeeping.
package availability

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"relay/internal/modules/driver"
	"relay/internal/types"
)

// IntervalStore is the persistence surface the tracker needs.
type IntervalStore interface {
	Transition(ctx context.Context, driverID types.ID, status Status, reason string, now time.Time) (*Interval, error)
	Current(ctx context.Context, driverID types.ID) (*Interval, error)
	CurrentBatch(ctx context.Context, driverIDs []types.ID) (map[types.ID]*Interval, error)
	IntervalsSince(ctx context.Context, driverID types.ID, since time.Time) ([]Interval, error)
}

// DriverDirectory resolves driver ids against the registry.
type DriverDirectory interface {
	Get(ctx context.Context, id types.ID) (*driver.Driver, error)
}

// GeoUpdater mirrors working drivers into the spatial index. Optional.
type GeoUpdater interface {
	Update(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
}

type Service struct {
	store   IntervalStore
	drivers DriverDirectory
	geo     GeoUpdater
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(store IntervalStore, drivers DriverDirectory, geo GeoUpdater, logger *slog.Logger) *Service {
	return &Service{store: store, drivers: drivers, geo: geo, logger: logger, now: time.Now}
}

// SetStatus closes the driver's open interval and opens a new one. A
// location hint updates the spatial index; leaving a working status
// removes the driver from it. Pending offers are NOT auto-cancelled here;
// resolving them stays with the assignment manager's caller.
func (s *Service) SetStatus(ctx context.Context, driverID types.ID, status Status, reason string, locationHint *types.Point) (*Interval, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	if _, err := s.drivers.Get(ctx, driverID); err != nil {
		if errors.Is(err, driver.ErrNotFound) {
			return nil, ErrDriverNotFound
		}
		return nil, err
	}

	iv, err := s.store.Transition(ctx, driverID, status, reason, s.now().UTC())
	if err != nil {
		return nil, err
	}

	if s.geo != nil {
		if status.Working() {
			if locationHint != nil && locationHint.Valid() && !locationHint.Zero() {
				if err := s.geo.Update(ctx, driverID, *locationHint); err != nil {
					s.logger.Warn("geo index update failed", "driver_id", driverID, "err", err)
				}
			}
		} else {
			if err := s.geo.Remove(ctx, driverID); err != nil {
				s.logger.Warn("geo index remove failed", "driver_id", driverID, "err", err)
			}
		}
	}

	s.logger.Info("driver status changed", "driver_id", driverID, "status", status, "reason", reason)
	return iv, nil
}

// Current returns the driver's open interval, or nil if none.
func (s *Service) Current(ctx context.Context, driverID types.ID) (*Interval, error) {
	return s.store.Current(ctx, driverID)
}

// CurrentBatch returns open intervals for many drivers at once.
func (s *Service) CurrentBatch(ctx context.Context, driverIDs []types.ID) (map[types.ID]*Interval, error) {
	return s.store.CurrentBatch(ctx, driverIDs)
}

// OnlineMinutes sums the durations of online/available intervals
// intersected with [since, now).
func (s *Service) OnlineMinutes(ctx context.Context, driverID types.ID, since time.Time) (time.Duration, error) {
	intervals, err := s.store.IntervalsSince(ctx, driverID, since)
	if err != nil {
		return 0, err
	}
	now := s.now().UTC()
	var total time.Duration
	for _, iv := range intervals {
		if !iv.Status.Working() {
			continue
		}
		start := iv.StartedAt
		if start.Before(since) {
			start = since
		}
		end := now
		if iv.EndedAt != nil && iv.EndedAt.Before(now) {
			end = *iv.EndedAt
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return total, nil
}
