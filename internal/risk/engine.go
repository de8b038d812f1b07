package risk

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/riskpulse/riskpulse/internal/signal"
)

// Engine computes composite risk scores from signal annotations.
// Pure in-memory computation, safe for concurrent use.
type Engine struct{}

// NewEngine creates a scoring engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Score evaluates a signal against the given weights.
//
// The sentiment annotation is required; the remaining component inputs
// default to zero risk when absent. Returns ErrInvalidConfiguration for a
// bad weight set and ErrMissingSignalData when sentiment is missing.
func (e *Engine) Score(sig *signal.Signal, weights Weights) (*Result, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if sig.SentimentScore == nil {
		return nil, fmt.Errorf("%w: sentiment score absent on %s", ErrMissingSignalData, sig.ID)
	}

	sentimentRisk := sentimentToRisk(*sig.SentimentScore)

	var anomaly, ticket, revenue, engagement float64
	if c := sig.Components; c != nil {
		anomaly = clamp01(c.AnomalyMagnitude)
		ticket = clamp01(c.TicketVolume)
		revenue = clamp01(c.RevenueDeviation)
		engagement = clamp01(c.EngagementSurge)
	}

	components := []Component{
		{Name: "sentiment", Score: sentimentRisk, Weight: weights.Sentiment},
		{Name: "anomaly", Score: anomaly, Weight: weights.Anomaly},
		{Name: "ticket_volume", Score: ticket, Weight: weights.TicketVolume},
		{Name: "revenue", Score: revenue, Weight: weights.Revenue},
		{Name: "engagement", Score: engagement, Weight: weights.Engagement},
	}

	var composite float64
	for i := range components {
		components[i].Weighted = round4(components[i].Score * components[i].Weight)
		composite += components[i].Score * components[i].Weight
	}
	composite = clamp01(composite)
	composite = round4(composite)

	sort.Slice(components, func(i, j int) bool {
		if components[i].Weighted != components[j].Weighted {
			return components[i].Weighted > components[j].Weighted
		}
		return components[i].Name < components[j].Name
	})

	tier := TierForScore(composite)

	return &Result{
		SignalID:       sig.ID,
		CompositeScore: composite,
		Tier:           tier,
		Components:     components,
		Explanation:    explain(composite, tier, components),
	}, nil
}

// sentimentToRisk converts a sentiment score (-1 very negative .. 1 very
// positive) to a risk contribution (0 safe .. 1 risky).
func sentimentToRisk(raw float64) float64 {
	return clamp01((1.0 - raw) / 2.0)
}

func explain(composite float64, tier Tier, sorted []Component) string {
	var parts []string

	contributing := make([]Component, 0, len(sorted))
	for _, c := range sorted {
		if c.Score > 0 {
			contributing = append(contributing, c)
		}
	}

	if len(contributing) > 0 {
		top := contributing[0]
		parts = append(parts, fmt.Sprintf("Primary driver: %s (%.0f%% × %.0f%% weight = %.2f contribution)",
			componentLabel(top.Name), top.Score*100, top.Weight*100, top.Weighted))
	}
	if len(contributing) > 1 {
		var secondary []string
		for _, c := range contributing[1:] {
			secondary = append(secondary, fmt.Sprintf("%s (%.0f%%)", componentLabel(c.Name), c.Score*100))
			if len(secondary) == 2 {
				break
			}
		}
		parts = append(parts, "Secondary factors: "+strings.Join(secondary, ", "))
	}
	parts = append(parts, fmt.Sprintf("Composite score: %.2f → %s tier", composite, strings.ToUpper(string(tier))))

	return strings.Join(parts, ". ") + "."
}

func componentLabel(name string) string {
	switch name {
	case "sentiment":
		return "Sentiment risk"
	case "anomaly":
		return "Anomaly magnitude"
	case "ticket_volume":
		return "Ticket volume pressure"
	case "revenue":
		return "Revenue deviation"
	case "engagement":
		return "Engagement surge"
	}
	return name
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

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
