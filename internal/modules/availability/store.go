// README: Availability interval store backed by PostgreSQL.
package availability

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relay/internal/types"
)

// The availability_intervals table carries a partial unique index on
// (driver_id) WHERE ended_at IS NULL, so two writers can never leave a
// driver with two open intervals.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Transition closes the driver's open interval (if any) at now and opens a
// new one with the given status, atomically.
func (s *Store) Transition(ctx context.Context, driverID types.ID, status Status, reason string, now time.Time) (*Interval, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE availability_intervals
		SET ended_at = $2
		WHERE driver_id = $1 AND ended_at IS NULL`,
		string(driverID), now,
	)
	if err != nil {
		return nil, err
	}

	var iv Interval
	err = tx.QueryRow(ctx, `
		INSERT INTO availability_intervals (driver_id, status, reason, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, driver_id, status, reason, started_at`,
		string(driverID), string(status), reason, now,
	).Scan(&iv.ID, &iv.DriverID, &iv.Status, &iv.Reason, &iv.StartedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &iv, nil
}

// Current returns the driver's open interval, or nil if the driver has
// never declared a status.
func (s *Store) Current(ctx context.Context, driverID types.ID) (*Interval, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, driver_id, status, reason, started_at
		FROM availability_intervals
		WHERE driver_id = $1 AND ended_at IS NULL`,
		string(driverID),
	)
	var iv Interval
	err := row.Scan(&iv.ID, &iv.DriverID, &iv.Status, &iv.Reason, &iv.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

// CurrentBatch returns the open intervals for the given drivers, keyed by
// driver id. Drivers with no declared status are absent.
func (s *Store) CurrentBatch(ctx context.Context, driverIDs []types.ID) (map[types.ID]*Interval, error) {
	if len(driverIDs) == 0 {
		return map[types.ID]*Interval{}, nil
	}
	raw := make([]string, len(driverIDs))
	for i, id := range driverIDs {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, driver_id, status, reason, started_at
		FROM availability_intervals
		WHERE driver_id = ANY($1) AND ended_at IS NULL`,
		raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]*Interval, len(driverIDs))
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.ID, &iv.DriverID, &iv.Status, &iv.Reason, &iv.StartedAt); err != nil {
			return nil, err
		}
		out[iv.DriverID] = &iv
	}
	return out, rows.Err()
}

// IntervalsSince returns all intervals for the driver overlapping
// [since, now), oldest first.
func (s *Store) IntervalsSince(ctx context.Context, driverID types.ID, since time.Time) ([]Interval, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, driver_id, status, reason, started_at, ended_at
		FROM availability_intervals
		WHERE driver_id = $1 AND (ended_at IS NULL OR ended_at > $2)
		ORDER BY started_at ASC`,
		string(driverID), since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interval
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.ID, &iv.DriverID, &iv.Status, &iv.Reason, &iv.StartedAt, &iv.EndedAt); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}
