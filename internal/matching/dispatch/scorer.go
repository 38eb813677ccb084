package dispatch

import (
	"math"

	"lead_distribution_backend/internal/matching/domain"
)

const (
	// reviewSaturation is the review count at which the reviews term reaches 1.
	reviewSaturation = 100
	// claimedBonus is added to claimed providers when prefer_claimed is set.
	claimedBonus = 5.0
)

// Scored is a candidate with its final score.
type Scored struct {
	Candidate
	Score float64
}

// Score computes the weighted score of one candidate. Each term is in
// [0,1]; the weighted mean is scaled to 0..100, renormalised over the
// terms that apply (proximity drops out without coordinates), then the
// claimed bonus and urgency multiplier are applied.
func Score(cfg domain.AlgorithmConfig, lead domain.Lead, c Candidate) float64 {
	w := cfg.Weights
	p := c.Provider

	sum := float64(w.Rating)*clamp01(p.Rating/5) +
		float64(w.Reviews)*reviewsTerm(p.ReviewCount) +
		float64(w.Verified)*boolTerm(p.Verified) +
		float64(w.DataQuality)*clamp01(float64(p.DataQuality)/100)
	total := float64(w.Rating + w.Reviews + w.Verified + w.DataQuality)

	if c.DistanceKm != nil && cfg.GeoRadiusKm > 0 {
		sum += float64(w.Proximity) * clamp01(1-*c.DistanceKm/cfg.GeoRadiusKm)
		total += float64(w.Proximity)
	}

	score := 0.0
	if total > 0 {
		score = 100 * sum / total
	}
	if cfg.PreferClaimed && p.Claimed {
		score += claimedBonus
	}
	return score * cfg.Multiplier(lead.Urgency)
}

// ScoreAll scores every candidate.
func ScoreAll(cfg domain.AlgorithmConfig, lead domain.Lead, candidates []Candidate) []Scored {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Candidate: c, Score: Score(cfg, lead, c)}
	}
	return out
}

func reviewsTerm(count int) float64 {
	if count <= 0 {
		return 0
	}
	return clamp01(math.Log1p(float64(count)) / math.Log1p(reviewSaturation))
}

func boolTerm(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
