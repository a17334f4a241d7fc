// README: Dispatch request persistence backed by PostgreSQL.
package matching

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relay/internal/types"
)

var ErrRequestNotFound = errors.New("dispatch request not found")

// PGRequestStore persists requests so the reassignment queue can re-run
// matching long after the original submission.
type PGRequestStore struct {
	db *pgxpool.Pool
}

func NewPGRequestStore(db *pgxpool.Pool) *PGRequestStore {
	return &PGRequestStore{db: db}
}

func (s *PGRequestStore) Save(ctx context.Context, r *Request) error {
	var dropLat, dropLng *float64
	if r.Dropoff != nil {
		dropLat, dropLng = &r.Dropoff.Lat, &r.Dropoff.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO dispatch_requests (
			id, kind, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
			service_type, preferred_driver_id, max_distance_km, min_rating,
			vehicle_type, min_capacity, priority, scheduled_for, preferences,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO NOTHING`,
		string(r.ID), string(r.Kind), r.Pickup.Lat, r.Pickup.Lng, dropLat, dropLng,
		r.ServiceType, nullableID(r.PreferredDriverID),
		r.Requirements.MaxDistanceKm, r.Requirements.MinRating,
		r.Requirements.VehicleType, r.Requirements.MinCapacity,
		r.Priority, r.ScheduledFor, r.Preferences, r.CreatedAt,
	)
	return err
}

func (s *PGRequestStore) Get(ctx context.Context, id types.ID) (*Request, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, kind, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
		       service_type, preferred_driver_id, max_distance_km, min_rating,
		       vehicle_type, min_capacity, priority, scheduled_for, preferences,
		       created_at
		FROM dispatch_requests
		WHERE id = $1`, string(id),
	)

	var r Request
	var dropLat, dropLng *float64
	var preferred *string
	var scheduled *time.Time
	err := row.Scan(
		&r.ID, &r.Kind, &r.Pickup.Lat, &r.Pickup.Lng, &dropLat, &dropLng,
		&r.ServiceType, &preferred,
		&r.Requirements.MaxDistanceKm, &r.Requirements.MinRating,
		&r.Requirements.VehicleType, &r.Requirements.MinCapacity,
		&r.Priority, &scheduled, &r.Preferences, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	if dropLat != nil && dropLng != nil {
		r.Dropoff = &types.Point{Lat: *dropLat, Lng: *dropLng}
	}
	if preferred != nil {
		r.PreferredDriverID = types.ID(*preferred)
	}
	r.ScheduledFor = scheduled
	return &r, nil
}

func nullableID(id types.ID) *string {
	if id == "" {
		return nil
	}
	s := string(id)
	return &s
}
