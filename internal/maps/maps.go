// README: Live travel-time refinement via the Google Maps Distance Matrix API.
package maps

import (
	"context"
	"fmt"
	"math"

	"googlemaps.github.io/maps"

	"relay/internal/types"
)

// Refiner sharpens straight-line wait estimates with road travel times.
// The matcher treats it as optional: errors fall back to the haversine
// estimate, so ranking never depends on the external API.
type Refiner struct {
	client *maps.Client
}

func NewRefiner(apiKey string) (*Refiner, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &Refiner{client: client}, nil
}

// EstimateMinutes returns the driving time from origin to dest, rounded up
// to whole minutes.
func (r *Refiner) EstimateMinutes(ctx context.Context, origin, dest types.Point) (int, error) {
	req := &maps.DistanceMatrixRequest{
		Origins:      []string{fmt.Sprintf("%f,%f", origin.Lat, origin.Lng)},
		Destinations: []string{fmt.Sprintf("%f,%f", dest.Lat, dest.Lng)},
		Mode:         maps.TravelModeDriving,
	}
	resp, err := r.client.DistanceMatrix(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("distance matrix: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return 0, fmt.Errorf("distance matrix returned no elements")
	}
	el := resp.Rows[0].Elements[0]
	if el.Status != "OK" {
		return 0, fmt.Errorf("distance matrix element status %s", el.Status)
	}
	return int(math.Ceil(el.Duration.Minutes())), nil
}
