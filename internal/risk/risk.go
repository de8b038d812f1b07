// Package risk implements weighted, explainable risk scoring for signals.
//
// Every signal is evaluated against 5 weighted components: sentiment,
// anomaly magnitude, ticket volume pressure, revenue deviation, and
// engagement surge. Composite scores range from 0.0 (safe) to 1.0
// (highest risk) and map to a fixed tier table.
package risk

import (
	"context"
	"errors"
	"math"
)

// Tier is the discrete risk bucket derived from a composite score.
type Tier string

const (
	TierCritical Tier = "critical"
	TierHigh     Tier = "high"
	TierModerate Tier = "moderate"
	TierLow      Tier = "low"
)

// Tier thresholds, inclusive lower bounds, checked high to low.
const (
	CriticalThreshold = 0.75
	HighThreshold     = 0.55
	ModerateThreshold = 0.30
)

// WeightTolerance is the allowed deviation of the weight sum from 1.0.
const WeightTolerance = 0.02

var (
	// ErrInvalidConfiguration indicates weights that do not sum to 1.0
	// within tolerance, or a negative weight.
	ErrInvalidConfiguration = errors.New("invalid risk weight configuration")
	// ErrMissingSignalData indicates a signal missing a required scoring
	// input (sentiment annotation).
	ErrMissingSignalData = errors.New("signal missing required scoring data")
)

// TierForScore maps a composite score to its tier.
func TierForScore(score float64) Tier {
	switch {
	case score >= CriticalThreshold:
		return TierCritical
	case score >= HighThreshold:
		return TierHigh
	case score >= ModerateThreshold:
		return TierModerate
	default:
		return TierLow
	}
}

// Weights is the validated per-component weight configuration.
type Weights struct {
	Sentiment    float64 `json:"sentiment"`
	Anomaly      float64 `json:"anomaly"`
	TicketVolume float64 `json:"ticketVolume"`
	Revenue      float64 `json:"revenue"`
	Engagement   float64 `json:"engagement"`
}

// DefaultWeights returns the shipped weight configuration.
func DefaultWeights() Weights {
	return Weights{
		Sentiment:    0.25,
		Anomaly:      0.25,
		TicketVolume: 0.20,
		Revenue:      0.15,
		Engagement:   0.15,
	}
}

// Validate checks that all weights are non-negative and sum to 1.0 within
// tolerance.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Sentiment, w.Anomaly, w.TicketVolume, w.Revenue, w.Engagement} {
		if v < 0 {
			return ErrInvalidConfiguration
		}
	}
	sum := w.Sentiment + w.Anomaly + w.TicketVolume + w.Revenue + w.Engagement
	if math.Abs(sum-1.0) > WeightTolerance {
		return ErrInvalidConfiguration
	}
	return nil
}

// Component is one row of the scoring breakdown.
type Component struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Weight   float64 `json:"weight"`
	Weighted float64 `json:"weighted"`
}

// Result is the outcome of scoring a single signal.
type Result struct {
	SignalID       string      `json:"signalId"`
	CompositeScore float64     `json:"compositeScore"`
	Tier           Tier        `json:"tier"`
	// Components is the full per-component breakdown, sorted by weighted
	// contribution descending.
	Components  []Component `json:"components"`
	Explanation string      `json:"explanation"`
}

// WeightsStore persists the active weight configuration.
type WeightsStore interface {
	GetWeights(ctx context.Context) (Weights, error)
	SetWeights(ctx context.Context, w Weights) error
}
