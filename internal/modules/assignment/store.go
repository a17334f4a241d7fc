// README: Assignment store backed by PostgreSQL with CAS status transitions.
package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"relay/internal/types"
)

// The assignments table carries two partial unique indexes: (driver_id)
// WHERE status = 'pending' enforces one pending offer per driver, and
// (request_id) WHERE status = 'accepted' enforces one winner per request.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const uniqueViolation = "23505"

func (s *PGStore) Create(ctx context.Context, a *Assignment) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO assignments (
			id, request_id, driver_id, status, priority, rank, score,
			distance_km, eta_minutes, assigned_at, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(a.ID), string(a.RequestID), string(a.DriverID), string(a.Status),
		a.Priority, a.Rank, a.Score, a.DistanceKm, a.EtaMinutes,
		a.AssignedAt, a.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDriverBusy
	}
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, request_id, driver_id, status, priority, rank, score,
		       distance_km, eta_minutes, assigned_at, expires_at, responded_at, reason
		FROM assignments
		WHERE id = $1`, string(id),
	)
	return scanAssignment(row)
}

// Transition performs the compare-and-set from -> to. It reports false
// when the row was not in the expected status, which callers treat as a
// lost race, never as corruption.
func (s *PGStore) Transition(ctx context.Context, id types.ID, from, to Status, respondedAt *time.Time, reason string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE assignments
		SET status = $1, responded_at = COALESCE($2, responded_at), reason = $3
		WHERE id = $4 AND status = $5`,
		string(to), respondedAt, reason, string(id), string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Accept transitions pending -> accepted only if no sibling assignment for
// the same request has been accepted. The NOT EXISTS check reads the
// statement snapshot, so two concurrent accepts on sibling rows can both
// pass it under read committed; the partial unique index on (request_id)
// WHERE status = 'accepted' is the real serialization point, and its
// violation is a lost race, not an error.
func (s *PGStore) Accept(ctx context.Context, id, requestID types.ID, respondedAt time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE assignments
		SET status = 'accepted', responded_at = $1
		WHERE id = $2 AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM assignments
			WHERE request_id = $3 AND status = 'accepted'
		  )`,
		respondedAt, string(id), string(requestID),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) PendingByRequest(ctx context.Context, requestID types.ID) ([]Assignment, error) {
	return s.listAssignments(ctx, `
		SELECT id, request_id, driver_id, status, priority, rank, score,
		       distance_km, eta_minutes, assigned_at, expires_at, responded_at, reason
		FROM assignments
		WHERE request_id = $1 AND status = 'pending'
		ORDER BY rank ASC`, string(requestID))
}

// ByRequest returns every offer ever issued for the request, rank order.
func (s *PGStore) ByRequest(ctx context.Context, requestID types.ID) ([]Assignment, error) {
	return s.listAssignments(ctx, `
		SELECT id, request_id, driver_id, status, priority, rank, score,
		       distance_km, eta_minutes, assigned_at, expires_at, responded_at, reason
		FROM assignments
		WHERE request_id = $1
		ORDER BY assigned_at ASC, rank ASC`, string(requestID))
}

// PendingDue returns pending assignments whose response window has closed.
func (s *PGStore) PendingDue(ctx context.Context, now time.Time) ([]Assignment, error) {
	return s.listAssignments(ctx, `
		SELECT id, request_id, driver_id, status, priority, rank, score,
		       distance_km, eta_minutes, assigned_at, expires_at, responded_at, reason
		FROM assignments
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at ASC`, now)
}

// DriversWithOpenAssignments reports which of the given drivers hold a
// pending or accepted assignment.
func (s *PGStore) DriversWithOpenAssignments(ctx context.Context, ids []types.ID) (map[types.ID]bool, error) {
	if len(ids) == 0 {
		return map[types.ID]bool{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT driver_id
		FROM assignments
		WHERE driver_id = ANY($1) AND status IN ('pending', 'accepted')`, raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[types.ID(id)] = true
	}
	return out, rows.Err()
}

// SaveCandidates snapshots the ranked candidate list for a request so
// sequential re-offers can walk it without re-matching.
func (s *PGStore) SaveCandidates(ctx context.Context, refs []CandidateRef) error {
	if len(refs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range refs {
		batch.Queue(`
			INSERT INTO request_candidates (request_id, rank, driver_id, score, distance_km, eta_minutes)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (request_id, rank) DO UPDATE SET
				driver_id = EXCLUDED.driver_id,
				score = EXCLUDED.score,
				distance_km = EXCLUDED.distance_km,
				eta_minutes = EXCLUDED.eta_minutes`,
			string(r.RequestID), r.Rank, string(r.DriverID), r.Score, r.DistanceKm, r.EtaMinutes)
	}
	return s.db.SendBatch(ctx, batch).Close()
}

func (s *PGStore) CandidatesByRequest(ctx context.Context, requestID types.ID) ([]CandidateRef, error) {
	rows, err := s.db.Query(ctx, `
		SELECT request_id, rank, driver_id, score, distance_km, eta_minutes
		FROM request_candidates
		WHERE request_id = $1
		ORDER BY rank ASC`, string(requestID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CandidateRef
	for rows.Next() {
		var r CandidateRef
		if err := rows.Scan(&r.RequestID, &r.Rank, &r.DriverID, &r.Score, &r.DistanceKm, &r.EtaMinutes); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TerminalByDriverSince returns terminal assignments offered to a driver
// within [from, to), for metrics recomputation.
func (s *PGStore) TerminalByDriverSince(ctx context.Context, driverID types.ID, from, to time.Time) ([]Assignment, error) {
	return s.listAssignments(ctx, `
		SELECT id, request_id, driver_id, status, priority, rank, score,
		       distance_km, eta_minutes, assigned_at, expires_at, responded_at, reason
		FROM assignments
		WHERE driver_id = $1
		  AND status IN ('accepted', 'rejected', 'expired', 'cancelled')
		  AND assigned_at >= $2 AND assigned_at < $3
		ORDER BY assigned_at ASC`, string(driverID), from, to)
}

func (s *PGStore) listAssignments(ctx context.Context, sql string, args ...any) ([]Assignment, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row rowScanner) (*Assignment, error) {
	var a Assignment
	var respondedAt *time.Time
	var reason *string
	err := row.Scan(
		&a.ID, &a.RequestID, &a.DriverID, &a.Status, &a.Priority, &a.Rank,
		&a.Score, &a.DistanceKm, &a.EtaMinutes, &a.AssignedAt, &a.ExpiresAt,
		&respondedAt, &reason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.RespondedAt = respondedAt
	if reason != nil {
		a.Reason = *reason
	}
	return &a, nil
}
