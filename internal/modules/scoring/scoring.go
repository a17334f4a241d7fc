// README: Deterministic weighted scoring of (request, driver) pairs.
package scoring

import (
	"fmt"

	"relay/internal/config"
)

// Neutral sub-score inputs for drivers with no rolling history yet. New
// drivers start mid-field instead of at the bottom.
const (
	neutralAcceptanceRate = 0.70
	neutralResponseSec    = 15.0
)

// responseHalfLifeSec is the response time at which the responsiveness
// sub-score halves.
const responseHalfLifeSec = 30.0

// Input carries everything the engine needs for one candidate. Rolling
// metrics are pointers: nil means "no history", which maps to the neutral
// defaults above.
type Input struct {
	DistanceKm     float64
	MaxDistanceKm  float64
	Rating         float64  // 1..5
	AcceptanceRate *float64 // 0..1
	AvgResponseSec *float64
	Preferred      bool
	// PreferenceHits counts customer preference tags the vehicle satisfies.
	PreferenceHits int
}

// Breakdown itemizes a score for audit. Total is the ranked value; higher
// is better.
type Breakdown struct {
	Proximity      float64 `json:"proximity"`
	Reliability    float64 `json:"reliability"`
	Quality        float64 `json:"quality"`
	Responsiveness float64 `json:"responsiveness"`
	Preference     float64 `json:"preference"`
	Total          float64 `json:"total"`
}

type Engine struct {
	cfg config.ScoringConfig
}

func NewEngine(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Algorithm identifies the scoring configuration that produced a result,
// for A/B comparison and audit trails.
func (e *Engine) Algorithm() string {
	return fmt.Sprintf("weighted-v1:p%.2f-r%.2f-q%.2f-t%.2f",
		e.cfg.ProximityWeight, e.cfg.ReliabilityWeight, e.cfg.QualityWeight, e.cfg.ResponsivenessWeight)
}

// Score is a pure function: identical inputs always produce identical
// output. Candidates beyond MaxDistanceKm must be filtered out before
// scoring; the proximity component merely clamps at zero.
func (e *Engine) Score(in Input) Breakdown {
	var b Breakdown

	if in.MaxDistanceKm > 0 {
		prox := 1 - in.DistanceKm/in.MaxDistanceKm
		if prox < 0 {
			prox = 0
		}
		b.Proximity = e.cfg.ProximityWeight * prox * 100
	}

	acceptance := neutralAcceptanceRate
	if in.AcceptanceRate != nil {
		acceptance = clamp01(*in.AcceptanceRate)
	}
	b.Reliability = e.cfg.ReliabilityWeight * acceptance * 100

	quality := clamp01((in.Rating - 1) / 4)
	b.Quality = e.cfg.QualityWeight * quality * 100

	responseSec := neutralResponseSec
	if in.AvgResponseSec != nil && *in.AvgResponseSec >= 0 {
		responseSec = *in.AvgResponseSec
	}
	b.Responsiveness = e.cfg.ResponsivenessWeight * (responseHalfLifeSec / (responseHalfLifeSec + responseSec)) * 100

	if in.Preferred {
		b.Preference += e.cfg.PreferredBonus
	}
	b.Preference += float64(in.PreferenceHits) * e.cfg.VehicleMatchBonus

	b.Total = b.Proximity + b.Reliability + b.Quality + b.Responsiveness + b.Preference
	return b
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
