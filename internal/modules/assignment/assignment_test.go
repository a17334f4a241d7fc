// README: Assignment manager unit tests with an in-memory CAS store.
package assignment

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"relay/internal/config"
	"relay/internal/modules/availability"
	"relay/internal/modules/matching"
	"relay/internal/types"
)

// ---------------------------------------------------------------------------
// In-memory store with the same CAS semantics as the Postgres store
// ---------------------------------------------------------------------------

type memStore struct {
	mu          sync.Mutex
	assignments map[types.ID]*Assignment
	candidates  map[types.ID][]CandidateRef
}

func newMemStore() *memStore {
	return &memStore{
		assignments: make(map[types.ID]*Assignment),
		candidates:  make(map[types.ID][]CandidateRef),
	}
}

func (m *memStore) Create(_ context.Context, a *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.assignments {
		if other.DriverID == a.DriverID && other.Status == StatusPending {
			return ErrDriverBusy
		}
	}
	cp := *a
	m.assignments[a.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) Transition(_ context.Context, id types.ID, from, to Status, respondedAt *time.Time, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok || a.Status != from {
		return false, nil
	}
	a.Status = to
	if respondedAt != nil {
		a.RespondedAt = respondedAt
	}
	a.Reason = reason
	return true, nil
}

func (m *memStore) Accept(_ context.Context, id, requestID types.ID, respondedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.assignments {
		if other.RequestID == requestID && other.Status == StatusAccepted {
			return false, nil
		}
	}
	a, ok := m.assignments[id]
	if !ok || a.Status != StatusPending {
		return false, nil
	}
	a.Status = StatusAccepted
	a.RespondedAt = &respondedAt
	return true, nil
}

func (m *memStore) PendingByRequest(_ context.Context, requestID types.ID) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.assignments {
		if a.RequestID == requestID && a.Status == StatusPending {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ByRequest(_ context.Context, requestID types.ID) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.assignments {
		if a.RequestID == requestID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) PendingDue(_ context.Context, now time.Time) ([]Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Assignment
	for _, a := range m.assignments {
		if a.Status == StatusPending && !a.ExpiresAt.After(now) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) SaveCandidates(_ context.Context, refs []CandidateRef) error {
	if len(refs) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates[refs[0].RequestID] = append([]CandidateRef(nil), refs...)
	return nil
}

func (m *memStore) CandidatesByRequest(_ context.Context, requestID types.ID) ([]CandidateRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CandidateRef(nil), m.candidates[requestID]...), nil
}

func (m *memStore) statusOf(t *testing.T, id types.ID) Status {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assignments[id]
	if !ok {
		t.Fatalf("assignment %s not found", id)
	}
	return a.Status
}

func (m *memStore) pendingCountForDriver(driverID types.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.assignments {
		if a.DriverID == driverID && a.Status == StatusPending {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Collaborator mocks
// ---------------------------------------------------------------------------

type mockMarker struct {
	mu       sync.Mutex
	statuses map[types.ID]availability.Status
}

func newMockMarker() *mockMarker {
	return &mockMarker{statuses: make(map[types.ID]availability.Status)}
}

func (m *mockMarker) SetStatus(_ context.Context, driverID types.ID, status availability.Status, _ string, _ *types.Point) (*availability.Interval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[driverID] = status
	return &availability.Interval{DriverID: driverID, Status: status}, nil
}

func (m *mockMarker) statusOf(id types.ID) availability.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[id]
}

type mockNotifier struct {
	mu     sync.Mutex
	offers []types.ID
}

func (m *mockNotifier) OfferIssued(_ context.Context, a *Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers = append(m.offers, a.ID)
}

type mockPublisher struct {
	mu       sync.Mutex
	accepted []types.ID
}

func (m *mockPublisher) AssignmentAccepted(_ context.Context, a *Assignment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted = append(m.accepted, a.ID)
}

type mockSink struct {
	mu       sync.Mutex
	enqueued []types.ID
	removed  []types.ID
}

func (m *mockSink) Enqueue(_ context.Context, requestID types.ID, _ int, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, requestID)
	return nil
}

func (m *mockSink) RemoveOpen(_ context.Context, requestID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, requestID)
	return nil
}

func (m *mockSink) enqueueCount(requestID types.ID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.enqueued {
		if id == requestID {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Fixture
// ---------------------------------------------------------------------------

type fixture struct {
	store    *memStore
	marker   *mockMarker
	notifier *mockNotifier
	events   *mockPublisher
	sink     *mockSink
	mgr      *Manager
}

func newFixture(policy string) *fixture {
	cfg := config.New().Assignment
	cfg.Policy = policy
	fx := &fixture{
		store:    newMemStore(),
		marker:   newMockMarker(),
		notifier: &mockNotifier{},
		events:   &mockPublisher{},
		sink:     &mockSink{},
	}
	fx.mgr = NewManager(fx.store, fx.marker, fx.notifier, fx.events, fx.sink, cfg, slog.New(slog.DiscardHandler))
	return fx
}

func testRequest(id types.ID) matching.Request {
	return matching.Request{
		ID:     id,
		Kind:   matching.KindRide,
		Pickup: types.Point{Lat: 47.57, Lng: -52.70},
	}
}

func candidates(ids ...types.ID) []matching.Candidate {
	out := make([]matching.Candidate, len(ids))
	for i, id := range ids {
		out[i] = matching.Candidate{DriverID: id, Score: float64(100 - i), DistanceKm: float64(i + 1)}
	}
	return out
}

// ---------------------------------------------------------------------------
// Offer issuance
// ---------------------------------------------------------------------------

func TestCreateAssignments_SequentialOffersTopRankOnly(t *testing.T) {
	fx := newFixture("sequential")
	created, err := fx.mgr.CreateAssignments(context.Background(), testRequest("r1"), candidates("d1", "d2", "d3"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 1 || created[0].DriverID != "d1" || created[0].Rank != 1 {
		t.Fatalf("expected single offer to d1, got %+v", created)
	}
}

func TestCreateAssignments_BatchOffersTopN(t *testing.T) {
	fx := newFixture("batch")
	created, err := fx.mgr.CreateAssignments(context.Background(), testRequest("r1"), candidates("d1", "d2", "d3", "d4"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected batch of 3 offers, got %d", len(created))
	}
}

func TestCreateAssignments_SkipsDriverWithPendingOffer(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()

	// d1 already holds a pending offer from another request.
	if _, err := fx.mgr.CreateAssignments(ctx, testRequest("other"), candidates("d1")); err != nil {
		t.Fatalf("setup offer: %v", err)
	}

	created, err := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1", "d2"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 1 || created[0].DriverID != "d2" {
		t.Fatalf("expected offer to fall through to d2, got %+v", created)
	}
	if n := fx.store.pendingCountForDriver("d1"); n != 1 {
		t.Fatalf("d1 pending offers = %d, want 1", n)
	}
}

func TestCreateAssignments_AllCandidatesBusyReturnsEmpty(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()
	if _, err := fx.mgr.CreateAssignments(ctx, testRequest("a"), candidates("d1")); err != nil {
		t.Fatalf("setup: %v", err)
	}

	created, err := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(created) != 0 {
		t.Fatalf("expected no offers, got %+v", created)
	}
}

// ---------------------------------------------------------------------------
// Driver responses
// ---------------------------------------------------------------------------

func TestHandleDriverResponse_Validation(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))
	a := created[0]

	if _, err := fx.mgr.HandleDriverResponse(ctx, "ghost", "d1", ResponseAccepted, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown assignment: got %v, want ErrNotFound", err)
	}
	if _, err := fx.mgr.HandleDriverResponse(ctx, a.ID, "intruder", ResponseAccepted, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("wrong driver: got %v, want ErrForbidden", err)
	}
	if _, err := fx.mgr.HandleDriverResponse(ctx, a.ID, "d1", Response("maybe"), ""); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("bad response: got %v, want ErrInvalidResponse", err)
	}
}

func TestHandleDriverResponse_AcceptMarksBusyAndPublishes(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))
	a := created[0]

	out, err := fx.mgr.HandleDriverResponse(ctx, a.ID, "d1", ResponseAccepted, "")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if out.Assignment.Status != StatusAccepted || out.RequiresReassignment {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.Assignment.RespondedAt == nil {
		t.Fatal("accept must stamp respondedAt")
	}
	if fx.marker.statusOf("d1") != availability.StatusBusy {
		t.Fatal("accepting driver must be marked busy")
	}
	if len(fx.events.accepted) != 1 {
		t.Fatalf("expected one accepted event, got %d", len(fx.events.accepted))
	}
}

func TestHandleDriverResponse_IdempotentAlreadyResolved(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))
	a := created[0]

	if _, err := fx.mgr.HandleDriverResponse(ctx, a.ID, "d1", ResponseAccepted, ""); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, err := fx.mgr.HandleDriverResponse(ctx, a.ID, "d1", ResponseRejected, "changed my mind")
		if !errors.Is(err, ErrAlreadyResolved) {
			t.Fatalf("late response %d: got %v, want ErrAlreadyResolved", i, err)
		}
		if got := fx.store.statusOf(t, a.ID); got != StatusAccepted {
			t.Fatalf("late response %d must not change status, got %s", i, got)
		}
	}
}

func TestHandleDriverResponse_RejectReoffersNextRank(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1", "d2"))

	out, err := fx.mgr.HandleDriverResponse(ctx, created[0].ID, "d1", ResponseRejected, "too far")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if out.RequiresReassignment {
		t.Fatal("re-offer to next rank should not requeue")
	}
	pending, _ := fx.store.PendingByRequest(ctx, "r1")
	if len(pending) != 1 || pending[0].DriverID != "d2" || pending[0].Rank != 2 {
		t.Fatalf("expected pending offer to d2 at rank 2, got %+v", pending)
	}
}

func TestHandleDriverResponse_RejectExhaustedQueues(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))

	out, err := fx.mgr.HandleDriverResponse(ctx, created[0].ID, "d1", ResponseRejected, "")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if !out.RequiresReassignment {
		t.Fatal("exhausted candidate list must signal reassignment")
	}
	if fx.sink.enqueueCount("r1") != 1 {
		t.Fatalf("expected exactly one enqueue, got %d", fx.sink.enqueueCount("r1"))
	}
}

// TestBatchFirstAcceptWins covers the sibling race: with offers out to d1
// (rank 1) and d2 (rank 2), d2 accepting first wins and d1's offer is
// force-expired.
func TestBatchFirstAcceptWins(t *testing.T) {
	fx := newFixture("batch")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1", "d2"))
	if len(created) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(created))
	}

	out, err := fx.mgr.HandleDriverResponse(ctx, created[1].ID, "d2", ResponseAccepted, "")
	if err != nil {
		t.Fatalf("accept d2: %v", err)
	}
	if out.Assignment.Status != StatusAccepted {
		t.Fatalf("d2 status = %s, want accepted", out.Assignment.Status)
	}
	if got := fx.store.statusOf(t, created[0].ID); got != StatusExpired {
		t.Fatalf("d1 sibling status = %s, want expired", got)
	}

	// The loser's late accept is rejected and changes nothing.
	if _, err := fx.mgr.HandleDriverResponse(ctx, created[0].ID, "d1", ResponseAccepted, ""); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("late sibling accept: got %v, want ErrAlreadyResolved", err)
	}
	if got := fx.store.statusOf(t, created[1].ID); got != StatusAccepted {
		t.Fatalf("winner status = %s, want accepted", got)
	}
}

// skewStore mimics the Postgres accept path under read committed: the
// NOT EXISTS sibling check reads the statement snapshot and misses accepts
// committed by concurrent writers of other rows, so it passes for every
// racer here. Only the unique accepted-per-request constraint separates
// the winner, and its violation surfaces as a lost race the way the SQL
// store maps 23505.
type skewStore struct {
	*memStore
	acceptedReqs map[types.ID]bool
}

func (s *skewStore) Accept(_ context.Context, id, requestID types.ID, respondedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok || a.Status != StatusPending {
		return false, nil
	}
	if s.acceptedReqs[requestID] {
		return false, nil
	}
	s.acceptedReqs[requestID] = true
	a.Status = StatusAccepted
	a.RespondedAt = &respondedAt
	return true, nil
}

func TestAccept_UniqueConstraintAloneSeparatesSiblings(t *testing.T) {
	fx := newFixture("batch")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1", "d2", "d3"))
	if len(created) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(created))
	}
	fx.mgr.store = &skewStore{memStore: fx.store, acceptedReqs: make(map[types.ID]bool)}

	var wg sync.WaitGroup
	accepts := make(chan error, len(created))
	for _, a := range created {
		wg.Add(1)
		go func(a Assignment) {
			defer wg.Done()
			_, err := fx.mgr.HandleDriverResponse(ctx, a.ID, a.DriverID, ResponseAccepted, "")
			accepts <- err
		}(a)
	}
	wg.Wait()
	close(accepts)

	wins := 0
	for err := range accepts {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrAlreadyResolved) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning accept, got %d", wins)
	}
	accepted := 0
	for _, a := range created {
		if fx.store.statusOf(t, a.ID) == StatusAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted assignment, got %d", accepted)
	}
}

func TestConcurrentSiblingAccepts_OnlyOneWins(t *testing.T) {
	fx := newFixture("batch")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1", "d2", "d3"))
	if len(created) != 3 {
		t.Fatalf("expected 3 offers, got %d", len(created))
	}

	var wg sync.WaitGroup
	accepts := make(chan error, len(created))
	for _, a := range created {
		wg.Add(1)
		go func(a Assignment) {
			defer wg.Done()
			_, err := fx.mgr.HandleDriverResponse(ctx, a.ID, a.DriverID, ResponseAccepted, "")
			accepts <- err
		}(a)
	}
	wg.Wait()
	close(accepts)

	wins := 0
	for err := range accepts {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrAlreadyResolved) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning accept, got %d", wins)
	}

	accepted := 0
	for _, a := range created {
		if fx.store.statusOf(t, a.ID) == StatusAccepted {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("expected exactly one accepted assignment, got %d", accepted)
	}
}

// ---------------------------------------------------------------------------
// Expiry sweep
// ---------------------------------------------------------------------------

func TestSweepExpired_ExpiresDueAndQueuesOnce(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fx.mgr.now = func() time.Time { return base }

	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))
	a := created[0]

	// One second past the response deadline.
	cutoff := a.ExpiresAt.Add(time.Second)

	n, err := fx.mgr.SweepExpired(ctx, cutoff)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired count = %d, want 1", n)
	}
	if got := fx.store.statusOf(t, a.ID); got != StatusExpired {
		t.Fatalf("status = %s, want expired", got)
	}
	if fx.sink.enqueueCount("r1") != 1 {
		t.Fatalf("requeue signaled %d times, want exactly once", fx.sink.enqueueCount("r1"))
	}

	// Second sweep with the same cutoff is a no-op.
	n, err = fx.mgr.SweepExpired(ctx, cutoff)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("second sweep expired %d, want 0", n)
	}
	if fx.sink.enqueueCount("r1") != 1 {
		t.Fatalf("second sweep must not re-signal, got %d", fx.sink.enqueueCount("r1"))
	}
}

func TestSweepExpired_DoesNotTouchFreshOffers(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))

	n, err := fx.mgr.SweepExpired(ctx, created[0].AssignedAt.Add(time.Second))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("fresh offer expired, count = %d", n)
	}
	if got := fx.store.statusOf(t, created[0].ID); got != StatusPending {
		t.Fatalf("status = %s, want pending", got)
	}
}

func TestSweepRace_AcceptJustBeforeSweepIsNotOverwritten(t *testing.T) {
	fx := newFixture("batch")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))
	a := created[0]
	cutoff := a.ExpiresAt.Add(time.Second)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = fx.mgr.HandleDriverResponse(ctx, a.ID, "d1", ResponseAccepted, "")
	}()
	go func() {
		defer wg.Done()
		_, _ = fx.mgr.SweepExpired(ctx, cutoff)
	}()
	wg.Wait()

	got := fx.store.statusOf(t, a.ID)
	if got != StatusAccepted && got != StatusExpired {
		t.Fatalf("status = %s, want accepted or expired", got)
	}
	// Whichever won, it must not have been overwritten afterwards.
	if _, err := fx.mgr.SweepExpired(ctx, cutoff); err != nil {
		t.Fatalf("follow-up sweep: %v", err)
	}
	if after := fx.store.statusOf(t, a.ID); after != got {
		t.Fatalf("terminal status changed from %s to %s", got, after)
	}
}

// ---------------------------------------------------------------------------
// Cancellation
// ---------------------------------------------------------------------------

func TestCancelRequest_CancelsPendingAndRemovesQueueItem(t *testing.T) {
	fx := newFixture("batch")
	ctx := context.Background()
	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1", "d2"))

	if err := fx.mgr.CancelRequest(ctx, "r1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	for _, a := range created {
		if got := fx.store.statusOf(t, a.ID); got != StatusCancelled {
			t.Fatalf("offer %s status = %s, want cancelled", a.ID, got)
		}
	}
	if len(fx.sink.removed) != 1 || fx.sink.removed[0] != "r1" {
		t.Fatalf("expected open queue item removal for r1, got %v", fx.sink.removed)
	}

	// Cancelling again is harmless.
	if err := fx.mgr.CancelRequest(ctx, "r1"); err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
}

func TestCancelledIsDistinctFromExpired(t *testing.T) {
	fx := newFixture("sequential")
	ctx := context.Background()

	created, _ := fx.mgr.CreateAssignments(ctx, testRequest("r1"), candidates("d1"))
	if err := fx.mgr.CancelRequest(ctx, "r1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	a, err := fx.mgr.Get(ctx, created[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a.Status != StatusCancelled || a.Status == StatusExpired {
		t.Fatalf("status = %s, want cancelled (not expired)", a.Status)
	}
	if a.Reason != "request cancelled" {
		t.Fatalf("reason = %q, want request cancelled", a.Reason)
	}
}
