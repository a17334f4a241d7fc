// README: Geo index store backed by Redis GEO plus a last-seen hash.
package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"relay/internal/types"
)

const (
	driverGeoKey  = "dispatch:drivers"
	driverSeenKey = "dispatch:drivers:seen"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Update records a driver's last-known position and its timestamp.
func (s *Store) Update(ctx context.Context, id types.ID, p types.Point) error {
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	})
	pipe.HSet(ctx, driverSeenKey, string(id), time.Now().UTC().Format(time.RFC3339))
	_, err := pipe.Exec(ctx)
	return err
}

// Remove drops a driver from the index (driver went offline).
func (s *Store) Remove(ctx context.Context, id types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, driverGeoKey, string(id))
	pipe.HDel(ctx, driverSeenKey, string(id))
	_, err := pipe.Exec(ctx)
	return err
}

// Nearby returns drivers within radiusKm of p, nearest first, with
// distances and coordinates.
func (s *Store) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]NearbyDriver, error) {
	results, err := s.redis.GeoSearchLocation(ctx, driverGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]NearbyDriver, 0, len(results))
	for _, r := range results {
		nd := NearbyDriver{
			DriverID:   types.ID(r.Name),
			Position:   types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		}
		if raw, err := s.redis.HGet(ctx, driverSeenKey, r.Name).Result(); err == nil {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				nd.RecordedAt = t
			}
		}
		out = append(out, nd)
	}
	return out, nil
}
