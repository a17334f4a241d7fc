// README: Scoring engine unit tests: determinism, ordering, neutral defaults.
package scoring

import (
	"math"
	"testing"

	"relay/internal/config"
)

func testEngine() *Engine {
	return NewEngine(config.New().Scoring)
}

func f(v float64) *float64 { return &v }

func TestScore_Deterministic(t *testing.T) {
	e := testEngine()
	in := Input{
		DistanceKm:     2.4,
		MaxDistanceKm:  10,
		Rating:         4.8,
		AcceptanceRate: f(0.92),
		AvgResponseSec: f(8),
		Preferred:      true,
		PreferenceHits: 2,
	}
	first := e.Score(in)
	for i := 0; i < 100; i++ {
		if got := e.Score(in); got != first {
			t.Fatalf("score not deterministic: %+v vs %+v", got, first)
		}
	}
}

func TestScore_CloserDriverScoresHigher(t *testing.T) {
	e := testEngine()
	near := e.Score(Input{DistanceKm: 1, MaxDistanceKm: 10, Rating: 4.5})
	far := e.Score(Input{DistanceKm: 8, MaxDistanceKm: 10, Rating: 4.5})
	if near.Total <= far.Total {
		t.Fatalf("near (%f) should outrank far (%f)", near.Total, far.Total)
	}
}

func TestScore_HigherRatingScoresHigher(t *testing.T) {
	e := testEngine()
	good := e.Score(Input{DistanceKm: 3, MaxDistanceKm: 10, Rating: 5.0})
	poor := e.Score(Input{DistanceKm: 3, MaxDistanceKm: 10, Rating: 2.0})
	if good.Total <= poor.Total {
		t.Fatalf("rating 5.0 (%f) should outrank 2.0 (%f)", good.Total, poor.Total)
	}
}

func TestScore_NewDriverGetsNeutralDefaults(t *testing.T) {
	e := testEngine()
	fresh := e.Score(Input{DistanceKm: 3, MaxDistanceKm: 10, Rating: 4.0})
	poor := e.Score(Input{
		DistanceKm: 3, MaxDistanceKm: 10, Rating: 4.0,
		AcceptanceRate: f(0.1), AvgResponseSec: f(120),
	})
	strong := e.Score(Input{
		DistanceKm: 3, MaxDistanceKm: 10, Rating: 4.0,
		AcceptanceRate: f(1.0), AvgResponseSec: f(2),
	})
	if fresh.Reliability == 0 || fresh.Responsiveness == 0 {
		t.Fatal("missing rolling metrics must map to neutral sub-scores, not zero")
	}
	if !(poor.Total < fresh.Total && fresh.Total < strong.Total) {
		t.Fatalf("expected poor < fresh < strong, got %f / %f / %f",
			poor.Total, fresh.Total, strong.Total)
	}
}

func TestScore_PreferredDriverBonus(t *testing.T) {
	e := testEngine()
	base := Input{DistanceKm: 3, MaxDistanceKm: 10, Rating: 4.0}
	preferred := base
	preferred.Preferred = true

	plain := e.Score(base)
	bonus := e.Score(preferred)
	want := config.New().Scoring.PreferredBonus
	if diff := bonus.Total - plain.Total; math.Abs(diff-want) > 1e-9 {
		t.Fatalf("preferred bonus = %f, want %f", diff, want)
	}
}

func TestScore_BeyondMaxDistanceClampsToZeroProximity(t *testing.T) {
	e := testEngine()
	b := e.Score(Input{DistanceKm: 15, MaxDistanceKm: 10, Rating: 4.0})
	if b.Proximity != 0 {
		t.Fatalf("proximity beyond max distance = %f, want 0", b.Proximity)
	}
}

func TestScore_BreakdownSumsToTotal(t *testing.T) {
	e := testEngine()
	b := e.Score(Input{
		DistanceKm: 2, MaxDistanceKm: 10, Rating: 4.6,
		AcceptanceRate: f(0.8), AvgResponseSec: f(12), PreferenceHits: 1,
	})
	sum := b.Proximity + b.Reliability + b.Quality + b.Responsiveness + b.Preference
	if sum != b.Total {
		t.Fatalf("breakdown sum %f != total %f", sum, b.Total)
	}
}
