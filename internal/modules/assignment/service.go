// README: Assignment manager: offer issuance, driver responses, expiry sweep.
package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"relay/internal/config"
	"relay/internal/modules/availability"
	"relay/internal/modules/geo"
	"relay/internal/modules/matching"
	"relay/internal/obs"
	"relay/internal/types"
)

// Store is the persistence surface of the manager. Every transition is a
// compare-and-set; the store is the serialization point for the state
// machine invariants.
type Store interface {
	Create(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id types.ID) (*Assignment, error)
	Transition(ctx context.Context, id types.ID, from, to Status, respondedAt *time.Time, reason string) (bool, error)
	Accept(ctx context.Context, id, requestID types.ID, respondedAt time.Time) (bool, error)
	PendingByRequest(ctx context.Context, requestID types.ID) ([]Assignment, error)
	ByRequest(ctx context.Context, requestID types.ID) ([]Assignment, error)
	PendingDue(ctx context.Context, now time.Time) ([]Assignment, error)
	SaveCandidates(ctx context.Context, refs []CandidateRef) error
	CandidatesByRequest(ctx context.Context, requestID types.ID) ([]CandidateRef, error)
}

// AvailabilityMarker flips an accepting driver to busy.
type AvailabilityMarker interface {
	SetStatus(ctx context.Context, driverID types.ID, status availability.Status, reason string, locationHint *types.Point) (*availability.Interval, error)
}

// Notifier pushes offer countdowns to drivers. Fire-and-forget: delivery
// failures never block or roll back a transition.
type Notifier interface {
	OfferIssued(ctx context.Context, a *Assignment)
}

// Publisher signals the order/ride state owner. Fire-and-forget.
type Publisher interface {
	AssignmentAccepted(ctx context.Context, a *Assignment)
}

// ReassignmentSink receives requests that exhausted their offers.
type ReassignmentSink interface {
	Enqueue(ctx context.Context, requestID types.ID, priority int, reason string) error
	RemoveOpen(ctx context.Context, requestID types.ID) error
}

type Manager struct {
	store    Store
	avail    AvailabilityMarker
	notifier Notifier
	events   Publisher
	sink     ReassignmentSink
	cfg      config.AssignmentConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewManager(
	store Store,
	avail AvailabilityMarker,
	notifier Notifier,
	events Publisher,
	sink ReassignmentSink,
	cfg config.AssignmentConfig,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		store:    store,
		avail:    avail,
		notifier: notifier,
		events:   events,
		sink:     sink,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func (m *Manager) ttl() time.Duration {
	return time.Duration(m.cfg.ResponseTTLs) * time.Second
}

// CreateAssignments snapshots the ranked candidates and issues offers per
// the configured policy. Drivers that picked up a pending offer since
// matching are skipped in favour of the next rank. An empty return with no
// error means every candidate was busy; the caller decides to requeue.
func (m *Manager) CreateAssignments(ctx context.Context, req matching.Request, matches []matching.Candidate) ([]Assignment, error) {
	refs := make([]CandidateRef, len(matches))
	for i, c := range matches {
		refs[i] = CandidateRef{
			RequestID:  req.ID,
			Rank:       i + 1,
			DriverID:   c.DriverID,
			Score:      c.Score,
			DistanceKm: geo.DisplayKm(c.DistanceKm),
			EtaMinutes: c.EtaMinutes,
		}
	}
	if err := m.store.SaveCandidates(ctx, refs); err != nil {
		return nil, fmt.Errorf("save candidates: %w", err)
	}

	want := 1
	if m.cfg.Policy == "batch" {
		want = m.cfg.BatchSize
	}

	var created []Assignment
	for _, ref := range refs {
		if len(created) == want {
			break
		}
		a, err := m.offer(ctx, ref, req.Priority)
		if err == ErrDriverBusy {
			continue
		}
		if err != nil {
			return created, err
		}
		created = append(created, *a)
	}
	return created, nil
}

func (m *Manager) offer(ctx context.Context, ref CandidateRef, priority int) (*Assignment, error) {
	now := m.now().UTC()
	a := &Assignment{
		ID:         types.ID(uuid.NewString()),
		RequestID:  ref.RequestID,
		DriverID:   ref.DriverID,
		Status:     StatusPending,
		Priority:   priority,
		Rank:       ref.Rank,
		Score:      ref.Score,
		DistanceKm: ref.DistanceKm,
		EtaMinutes: ref.EtaMinutes,
		AssignedAt: now,
		ExpiresAt:  now.Add(m.ttl()),
	}
	if err := m.store.Create(ctx, a); err != nil {
		return nil, err
	}
	obs.Offers.WithLabelValues(string(StatusPending)).Inc()
	m.notifier.OfferIssued(ctx, a)
	m.logger.Info("offer issued",
		"assignment_id", a.ID, "request_id", a.RequestID,
		"driver_id", a.DriverID, "rank", a.Rank, "expires_at", a.ExpiresAt)
	return a, nil
}

// Get returns one assignment.
func (m *Manager) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	return m.store.Get(ctx, id)
}

// HandleDriverResponse resolves a pending offer with the driver's answer.
// A response to an already-resolved offer returns ErrAlreadyResolved and
// leaves the stored status untouched, so late or duplicate responses are
// detectable but harmless.
func (m *Manager) HandleDriverResponse(ctx context.Context, assignmentID, driverID types.ID, response Response, reason string) (ResponseOutcome, error) {
	if !response.Valid() {
		return ResponseOutcome{}, ErrInvalidResponse
	}
	a, err := m.store.Get(ctx, assignmentID)
	if err != nil {
		return ResponseOutcome{}, err
	}
	if a.DriverID != driverID {
		return ResponseOutcome{}, ErrForbidden
	}
	if a.Status.Terminal() {
		return ResponseOutcome{Assignment: a}, ErrAlreadyResolved
	}

	if response == ResponseAccepted {
		return m.accept(ctx, a)
	}
	return m.reject(ctx, a, reason)
}

func (m *Manager) accept(ctx context.Context, a *Assignment) (ResponseOutcome, error) {
	now := m.now().UTC()
	ok, err := m.store.Accept(ctx, a.ID, a.RequestID, now)
	if err != nil {
		return ResponseOutcome{}, err
	}
	if !ok {
		// Lost the race to the sweep or a sibling accept.
		cur, err := m.store.Get(ctx, a.ID)
		if err != nil {
			return ResponseOutcome{}, err
		}
		return ResponseOutcome{Assignment: cur}, ErrAlreadyResolved
	}
	a.Status = StatusAccepted
	a.RespondedAt = &now
	obs.Offers.WithLabelValues(string(StatusAccepted)).Inc()

	m.expireSiblings(ctx, a)

	if _, err := m.avail.SetStatus(ctx, a.DriverID, availability.StatusBusy, "assignment accepted", nil); err != nil {
		m.logger.Error("mark driver busy failed", "driver_id", a.DriverID, "err", err)
	}
	m.events.AssignmentAccepted(ctx, a)
	m.logger.Info("assignment accepted",
		"assignment_id", a.ID, "request_id", a.RequestID, "driver_id", a.DriverID)
	return ResponseOutcome{Assignment: a}, nil
}

// expireSiblings force-expires every other pending offer for the request
// the instant one is accepted (batch mode).
func (m *Manager) expireSiblings(ctx context.Context, winner *Assignment) {
	siblings, err := m.store.PendingByRequest(ctx, winner.RequestID)
	if err != nil {
		m.logger.Error("list sibling offers failed", "request_id", winner.RequestID, "err", err)
		return
	}
	for _, sib := range siblings {
		if sib.ID == winner.ID {
			continue
		}
		ok, err := m.store.Transition(ctx, sib.ID, StatusPending, StatusExpired, nil, "sibling accepted")
		if err != nil {
			m.logger.Error("expire sibling failed", "assignment_id", sib.ID, "err", err)
			continue
		}
		if ok {
			obs.Offers.WithLabelValues(string(StatusExpired)).Inc()
		}
	}
}

func (m *Manager) reject(ctx context.Context, a *Assignment, reason string) (ResponseOutcome, error) {
	now := m.now().UTC()
	ok, err := m.store.Transition(ctx, a.ID, StatusPending, StatusRejected, &now, reason)
	if err != nil {
		return ResponseOutcome{}, err
	}
	if !ok {
		cur, err := m.store.Get(ctx, a.ID)
		if err != nil {
			return ResponseOutcome{}, err
		}
		return ResponseOutcome{Assignment: cur}, ErrAlreadyResolved
	}
	a.Status = StatusRejected
	a.RespondedAt = &now
	a.Reason = reason
	obs.Offers.WithLabelValues(string(StatusRejected)).Inc()
	m.logger.Info("assignment rejected",
		"assignment_id", a.ID, "driver_id", a.DriverID, "reason", reason)

	requeue := m.continueDispatch(ctx, a)
	return ResponseOutcome{Assignment: a, RequiresReassignment: requeue}, nil
}

// continueDispatch advances a request whose offer just ended without an
// accept. Sequential policy re-offers to the next rank immediately; batch
// policy waits while sibling offers are still pending. It reports whether
// the request was handed to the reassignment queue.
func (m *Manager) continueDispatch(ctx context.Context, ended *Assignment) bool {
	if m.cfg.Policy == "batch" {
		pending, err := m.store.PendingByRequest(ctx, ended.RequestID)
		if err != nil {
			m.logger.Error("list pending offers failed", "request_id", ended.RequestID, "err", err)
			return false
		}
		if len(pending) > 0 {
			return false
		}
	} else {
		offered, err := m.offerNext(ctx, ended.RequestID, ended.Priority)
		if err != nil {
			m.logger.Error("sequential re-offer failed", "request_id", ended.RequestID, "err", err)
		}
		if offered {
			return false
		}
	}

	if err := m.sink.Enqueue(ctx, ended.RequestID, ended.Priority, "offers exhausted"); err != nil {
		m.logger.Error("requeue failed", "request_id", ended.RequestID, "err", err)
	}
	return true
}

// offerNext walks the candidate snapshot past already-offered drivers and
// issues the next offer. Returns false when the snapshot is exhausted.
func (m *Manager) offerNext(ctx context.Context, requestID types.ID, priority int) (bool, error) {
	refs, err := m.store.CandidatesByRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	history, err := m.store.ByRequest(ctx, requestID)
	if err != nil {
		return false, err
	}
	offered := make(map[types.ID]bool, len(history))
	for _, h := range history {
		offered[h.DriverID] = true
	}
	for _, ref := range refs {
		if offered[ref.DriverID] {
			continue
		}
		if _, err := m.offer(ctx, ref, priority); err != nil {
			if err == ErrDriverBusy {
				continue
			}
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// SweepExpired transitions every pending offer past its deadline to
// expired. The CAS makes the sweep idempotent and safe against concurrent
// accepts: an offer accepted a moment earlier simply fails the CAS and is
// left alone.
func (m *Manager) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	due, err := m.store.PendingDue(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, a := range due {
		ok, err := m.store.Transition(ctx, a.ID, StatusPending, StatusExpired, nil, "response timeout")
		if err != nil {
			m.logger.Error("expire failed", "assignment_id", a.ID, "err", err)
			continue
		}
		if !ok {
			continue
		}
		expired++
		obs.SweepExpirations.Inc()
		obs.Offers.WithLabelValues(string(StatusExpired)).Inc()
		a.Status = StatusExpired
		m.logger.Info("offer expired",
			"assignment_id", a.ID, "request_id", a.RequestID, "driver_id", a.DriverID)
		m.continueDispatch(ctx, &a)
	}
	return expired, nil
}

// CancelRequest withdraws a request: every pending offer is cancelled (a
// terminal state distinct from timeout expiry) and any open queue item is
// removed. Idempotent.
func (m *Manager) CancelRequest(ctx context.Context, requestID types.ID) error {
	pending, err := m.store.PendingByRequest(ctx, requestID)
	if err != nil {
		return err
	}
	now := m.now().UTC()
	for _, a := range pending {
		ok, err := m.store.Transition(ctx, a.ID, StatusPending, StatusCancelled, &now, "request cancelled")
		if err != nil {
			return err
		}
		if ok {
			obs.Offers.WithLabelValues(string(StatusCancelled)).Inc()
		}
	}
	if err := m.sink.RemoveOpen(ctx, requestID); err != nil {
		return err
	}
	m.logger.Info("request cancelled", "request_id", requestID, "offers_cancelled", len(pending))
	return nil
}

// RunSweeper drives SweepExpired on the configured interval until the
// context is cancelled.
func (m *Manager) RunSweeper(ctx context.Context) {
	interval := time.Duration(m.cfg.SweepInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SweepExpired(ctx, m.now().UTC()); err != nil {
				m.logger.Error("expiry sweep failed", "err", err)
			}
		}
	}
}
