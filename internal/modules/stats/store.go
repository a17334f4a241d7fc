// README: Driver performance snapshot store backed by PostgreSQL.
package stats

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relay/internal/types"
)

// One row per driver, overwritten on every recompute.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Upsert(ctx context.Context, snap *Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_stats (
			driver_id, window_start, window_end, offers_total, accepted,
			rejected, expired, cancelled, acceptance_rate, avg_response_sec,
			avg_score, online_minutes, computed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (driver_id) DO UPDATE SET
			window_start = EXCLUDED.window_start,
			window_end = EXCLUDED.window_end,
			offers_total = EXCLUDED.offers_total,
			accepted = EXCLUDED.accepted,
			rejected = EXCLUDED.rejected,
			expired = EXCLUDED.expired,
			cancelled = EXCLUDED.cancelled,
			acceptance_rate = EXCLUDED.acceptance_rate,
			avg_response_sec = EXCLUDED.avg_response_sec,
			avg_score = EXCLUDED.avg_score,
			online_minutes = EXCLUDED.online_minutes,
			computed_at = EXCLUDED.computed_at`,
		string(snap.DriverID), snap.WindowStart, snap.WindowEnd,
		snap.OffersTotal, snap.Accepted, snap.Rejected, snap.Expired,
		snap.Cancelled, snap.AcceptanceRate, snap.AvgResponseSec,
		snap.AvgScore, snap.OnlineMinutes, snap.ComputedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, driverID types.ID) (*Snapshot, error) {
	row := s.db.QueryRow(ctx, `
		SELECT driver_id, window_start, window_end, offers_total, accepted,
		       rejected, expired, cancelled, acceptance_rate, avg_response_sec,
		       avg_score, online_minutes, computed_at
		FROM driver_stats
		WHERE driver_id = $1`, string(driverID),
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	return snap, err
}

func (s *PGStore) GetBatch(ctx context.Context, ids []types.ID) (map[types.ID]*Snapshot, error) {
	if len(ids) == 0 {
		return map[types.ID]*Snapshot{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT driver_id, window_start, window_end, offers_total, accepted,
		       rejected, expired, cancelled, acceptance_rate, avg_response_sec,
		       avg_score, online_minutes, computed_at
		FROM driver_stats
		WHERE driver_id = ANY($1)`, raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]*Snapshot, len(ids))
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out[snap.DriverID] = snap
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var snap Snapshot
	err := row.Scan(
		&snap.DriverID, &snap.WindowStart, &snap.WindowEnd, &snap.OffersTotal,
		&snap.Accepted, &snap.Rejected, &snap.Expired, &snap.Cancelled,
		&snap.AcceptanceRate, &snap.AvgResponseSec, &snap.AvgScore,
		&snap.OnlineMinutes, &snap.ComputedAt,
	)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
