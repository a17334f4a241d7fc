// README: Driver registry store backed by PostgreSQL.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"relay/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, name, vehicle_type, capacity, attributes, rating, device_token, created_at
		FROM drivers
		WHERE id = $1`, string(id),
	)
	var d Driver
	err := row.Scan(&d.ID, &d.Name, &d.VehicleType, &d.Capacity, &d.Attributes, &d.Rating, &d.DeviceToken, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetBatch returns the registry records for the given ids, keyed by id.
// Unknown ids are silently absent from the result.
func (s *Store) GetBatch(ctx context.Context, ids []types.ID) (map[types.ID]*Driver, error) {
	if len(ids) == 0 {
		return map[types.ID]*Driver{}, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, name, vehicle_type, capacity, attributes, rating, device_token, created_at
		FROM drivers
		WHERE id = ANY($1)`, raw,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[types.ID]*Driver, len(ids))
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.VehicleType, &d.Capacity, &d.Attributes, &d.Rating, &d.DeviceToken, &d.CreatedAt); err != nil {
			return nil, err
		}
		out[d.ID] = &d
	}
	return out, rows.Err()
}

// Upsert writes a registry record. Used by seeding and the thin profile
// sync path; dispatch itself never mutates drivers.
func (s *Store) Upsert(ctx context.Context, d *Driver) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO drivers (id, name, vehicle_type, capacity, attributes, rating, device_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			vehicle_type = EXCLUDED.vehicle_type,
			capacity = EXCLUDED.capacity,
			attributes = EXCLUDED.attributes,
			rating = EXCLUDED.rating,
			device_token = EXCLUDED.device_token`,
		string(d.ID), d.Name, d.VehicleType, d.Capacity, d.Attributes, d.Rating, d.DeviceToken,
	)
	return err
}
