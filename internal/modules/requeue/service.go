// README: Reassignment queue service: enqueue, drain with radius escalation.
package requeue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"relay/internal/config"
	"relay/internal/modules/assignment"
	"relay/internal/modules/matching"
	"relay/internal/obs"
	"relay/internal/types"
)

// Store is the queue persistence surface.
type Store interface {
	Enqueue(ctx context.Context, item *Item) error
	Claim(ctx context.Context, limit int) ([]Item, error)
	Complete(ctx context.Context, id types.ID) error
	Retry(ctx context.Context, id types.ID, lastError string) error
	Fail(ctx context.Context, id types.ID, lastError string) error
	RemoveOpen(ctx context.Context, requestID types.ID) error
	CountOpen(ctx context.Context) (int, error)
}

// RequestSource reloads the original request for a drain round.
type RequestSource interface {
	Get(ctx context.Context, id types.ID) (*matching.Request, error)
}

// Matcher runs one matching attempt.
type Matcher interface {
	FindMatches(ctx context.Context, req matching.Request) (matching.Result, error)
}

// Assigner issues offers for the matched candidates.
type Assigner interface {
	CreateAssignments(ctx context.Context, req matching.Request, matches []matching.Candidate) ([]assignment.Assignment, error)
}

// ExhaustPublisher signals the request owner that dispatch gave up.
// Fire-and-forget.
type ExhaustPublisher interface {
	RequestExhausted(ctx context.Context, requestID types.ID, reason string)
}

// Service is the reassignment queue. It satisfies the manager's
// reassignment sink so exhausted requests flow back here.
type Service struct {
	store    Store
	requests RequestSource
	finder   Matcher
	assigner Assigner
	events   ExhaustPublisher
	cfg      config.RequeueConfig
	matchCfg config.MatchingConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(
	store Store,
	requests RequestSource,
	finder Matcher,
	assigner Assigner,
	events ExhaustPublisher,
	cfg config.RequeueConfig,
	matchCfg config.MatchingConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		store:    store,
		requests: requests,
		finder:   finder,
		assigner: assigner,
		events:   events,
		cfg:      cfg,
		matchCfg: matchCfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Enqueue adds a request to the queue. Enqueueing a request that already
// has an open item is a no-op.
func (s *Service) Enqueue(ctx context.Context, requestID types.ID, priority int, reason string) error {
	item := &Item{
		ID:         types.ID(uuid.NewString()),
		RequestID:  requestID,
		Status:     ItemPending,
		Priority:   priority,
		Reason:     reason,
		EnqueuedAt: s.now().UTC(),
	}
	if err := s.store.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("enqueue request %s: %w", requestID, err)
	}
	s.logger.Info("request queued for reassignment",
		"request_id", requestID, "priority", priority, "reason", reason)
	s.updateDepth(ctx)
	return nil
}

// RemoveOpen drops the open queue item for a cancelled request.
func (s *Service) RemoveOpen(ctx context.Context, requestID types.ID) error {
	if err := s.store.RemoveOpen(ctx, requestID); err != nil {
		return err
	}
	s.updateDepth(ctx)
	return nil
}

// Drain claims a batch and re-runs matching for each item. Item failures
// are isolated: one bad request never stalls the rest of the batch.
func (s *Service) Drain(ctx context.Context) (int, error) {
	items, err := s.store.Claim(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	dispatched := 0
	for _, item := range items {
		if s.drainOne(ctx, item) {
			dispatched++
		}
	}
	s.updateDepth(ctx)
	return dispatched, nil
}

// drainOne runs one matching round for a claimed item and reports whether
// offers went out. The search radius widens with each attempt so a request
// that found nobody nearby reaches further next round.
func (s *Service) drainOne(ctx context.Context, item Item) bool {
	if item.Attempts > s.cfg.AttemptCap {
		reason := fmt.Sprintf("no driver found after %d attempts", item.Attempts-1)
		if err := s.store.Fail(ctx, item.ID, reason); err != nil {
			s.logger.Error("fail queue item failed", "item_id", item.ID, "err", err)
		}
		obs.DrainResults.WithLabelValues("exhausted").Inc()
		s.events.RequestExhausted(ctx, item.RequestID, reason)
		s.logger.Warn("request exhausted reassignment attempts",
			"request_id", item.RequestID, "attempts", item.Attempts-1)
		return false
	}

	req, err := s.requests.Get(ctx, item.RequestID)
	if err != nil {
		if err := s.store.Fail(ctx, item.ID, err.Error()); err != nil {
			s.logger.Error("fail queue item failed", "item_id", item.ID, "err", err)
		}
		obs.DrainResults.WithLabelValues("error").Inc()
		s.logger.Error("load queued request failed", "request_id", item.RequestID, "err", err)
		return false
	}

	attempt := *req
	attempt.Requirements.MaxDistanceKm = s.escalatedRadius(req.Requirements.MaxDistanceKm, item.Attempts)

	res, err := s.finder.FindMatches(ctx, attempt)
	if err != nil {
		s.retry(ctx, item, err.Error())
		obs.DrainResults.WithLabelValues("error").Inc()
		return false
	}
	if !res.Success {
		s.retry(ctx, item, res.Error)
		obs.DrainResults.WithLabelValues("no_candidates").Inc()
		return false
	}

	created, err := s.assigner.CreateAssignments(ctx, attempt, res.Matches)
	if err != nil {
		s.retry(ctx, item, err.Error())
		obs.DrainResults.WithLabelValues("error").Inc()
		return false
	}
	if len(created) == 0 {
		s.retry(ctx, item, "all candidates busy")
		obs.DrainResults.WithLabelValues("no_candidates").Inc()
		return false
	}

	if err := s.store.Complete(ctx, item.ID); err != nil {
		s.logger.Error("complete queue item failed", "item_id", item.ID, "err", err)
	}
	obs.DrainResults.WithLabelValues("dispatched").Inc()
	s.logger.Info("queued request re-dispatched",
		"request_id", item.RequestID, "attempt", item.Attempts,
		"radius_km", attempt.Requirements.MaxDistanceKm, "offers", len(created))
	return true
}

func (s *Service) retry(ctx context.Context, item Item, lastError string) {
	if err := s.store.Retry(ctx, item.ID, lastError); err != nil {
		s.logger.Error("retry queue item failed", "item_id", item.ID, "err", err)
	}
}

// escalatedRadius grows the search radius geometrically per attempt,
// clamped at the configured maximum. Attempt 1 uses the base radius.
func (s *Service) escalatedRadius(base float64, attempt int) float64 {
	if base <= 0 {
		base = s.matchCfg.DefaultRadiusKm
	}
	if attempt < 1 {
		attempt = 1
	}
	r := base * math.Pow(s.cfg.RadiusGrowth, float64(attempt-1))
	if r > s.matchCfg.MaxRadiusKm {
		r = s.matchCfg.MaxRadiusKm
	}
	return r
}

func (s *Service) updateDepth(ctx context.Context) {
	n, err := s.store.CountOpen(ctx)
	if err != nil {
		s.logger.Error("count queue depth failed", "err", err)
		return
	}
	obs.QueueDepth.Set(float64(n))
}

// RunDrainer drives Drain on the configured interval until the context is
// cancelled.
func (s *Service) RunDrainer(ctx context.Context) {
	interval := time.Duration(s.cfg.DrainInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Drain(ctx); err != nil {
				s.logger.Error("queue drain failed", "err", err)
			}
		}
	}
}
