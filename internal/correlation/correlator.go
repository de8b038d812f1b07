package correlation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/signal"
	"github.com/riskpulse/riskpulse/internal/traces"
)

// Correlator scores signal pairs and ranks neighbors. It holds no state
// between queries.
type Correlator struct {
	signals     signal.Store
	tau         time.Duration
	minScore    float64
	graphLimits GraphLimits
}

// NewCorrelator creates a correlator over the signal store.
func NewCorrelator(signals signal.Store) *Correlator {
	return &Correlator{
		signals:     signals,
		tau:         DefaultTau,
		minScore:    DefaultMinScore,
		graphLimits: DefaultGraphLimits(),
	}
}

// WithTau overrides the temporal decay constant.
func (c *Correlator) WithTau(tau time.Duration) *Correlator {
	if tau > 0 {
		c.tau = tau
	}
	return c
}

// WithMinScore overrides the minimum combined score an edge must reach.
func (c *Correlator) WithMinScore(min float64) *Correlator {
	c.minScore = min
	return c
}

// WithGraphLimits overrides the bounds applied to graph queries. Zero or
// negative fields keep their defaults; values past the hard caps are
// lowered to them.
func (c *Correlator) WithGraphLimits(l GraphLimits) *Correlator {
	if l.Depth >= 1 {
		c.graphLimits.Depth = min(l.Depth, MaxDepth)
	}
	if l.K >= 1 {
		c.graphLimits.K = min(l.K, MaxK)
	}
	if l.MaxNodes >= 1 {
		c.graphLimits.MaxNodes = min(l.MaxNodes, MaxNodesCap)
	}
	return c
}

// Correlate returns the top-k signals most related to the given signal,
// ranked by combined score descending, ties broken by id ascending.
func (c *Correlator) Correlate(ctx context.Context, signalID string, k int) ([]Neighbor, error) {
	ctx, span := traces.StartSpan(ctx, "correlation.Correlate",
		traces.SignalID(signalID), traces.TopK(k))
	defer span.End()

	metrics.CorrelationQueriesTotal.WithLabelValues("correlate").Inc()

	if k < 1 {
		k = DefaultK
	}
	if k > c.graphLimits.K {
		k = c.graphLimits.K
	}

	target, err := c.signals.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}
	return c.neighbors(ctx, target, k)
}

func (c *Correlator) neighbors(ctx context.Context, target *signal.Signal, k int) ([]Neighbor, error) {
	from := target.Timestamp.Add(-CandidateSpan)
	to := target.Timestamp.Add(CandidateSpan + time.Second)
	candidates, err := c.signals.ListWindow(ctx, from, to, maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("list correlation candidates: %w", err)
	}

	targetEntities := entityTexts(target.Entities)

	neighbors := make([]Neighbor, 0, len(candidates))
	for _, cand := range candidates {
		if cand.ID == target.ID {
			continue
		}
		n := c.scorePair(target, cand, targetEntities)
		if n.Score < c.minScore {
			continue
		}
		neighbors = append(neighbors, n)
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}
		return neighbors[i].Signal.ID < neighbors[j].Signal.ID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// scorePair computes the combined score for one candidate. A missing
// embedding on either side zeroes only the embedding term.
func (c *Correlator) scorePair(target, cand *signal.Signal, targetEntities map[string]struct{}) Neighbor {
	embScore := cosineSimilarity(target.Embedding, cand.Embedding)
	tempScore := temporalProximity(target.Timestamp, cand.Timestamp, c.tau)
	entScore, shared := entityOverlap(targetEntities, cand.Entities)

	combined := EmbeddingWeight*embScore + TemporalWeight*tempScore + EntityWeight*entScore

	return Neighbor{
		Signal:         cand,
		Score:          round4(combined),
		EmbeddingScore: round4(embScore),
		TemporalScore:  round4(tempScore),
		EntityScore:    round4(entScore),
		Method:         methodLabel(embScore, tempScore, entScore),
		Explanation:    explain(target, cand, embScore, tempScore, entScore, shared),
	}
}

// cosineSimilarity returns the cosine of the two vectors clamped to [0,1].
// A nil or mismatched vector yields 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// temporalProximity decays exponentially with the gap between timestamps.
func temporalProximity(a, b time.Time, tau time.Duration) float64 {
	gap := a.Sub(b)
	if gap < 0 {
		gap = -gap
	}
	return math.Exp(-float64(gap) / float64(tau))
}

// entityOverlap is the Jaccard index over lowercased entity texts, plus
// the shared texts for the explanation.
func entityOverlap(targetTexts map[string]struct{}, candEntities []signal.Entity) (float64, []string) {
	if len(targetTexts) == 0 || len(candEntities) == 0 {
		return 0, nil
	}
	candTexts := entityTexts(candEntities)

	var shared []string
	for text := range targetTexts {
		if _, ok := candTexts[text]; ok {
			shared = append(shared, text)
		}
	}
	if len(shared) == 0 {
		return 0, nil
	}
	sort.Strings(shared)

	union := len(targetTexts) + len(candTexts) - len(shared)
	return float64(len(shared)) / float64(union), shared
}

func entityTexts(entities []signal.Entity) map[string]struct{} {
	texts := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		text := strings.ToLower(strings.TrimSpace(e.Text))
		if text != "" {
			texts[text] = struct{}{}
		}
	}
	return texts
}

func methodLabel(emb, temp, ent float64) string {
	var parts []string
	if emb > 0 {
		parts = append(parts, "embedding")
	}
	if temp > 0 {
		parts = append(parts, "temporal")
	}
	if ent > 0 {
		parts = append(parts, "entity")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

func explain(target, cand *signal.Signal, emb, temp, ent float64, shared []string) string {
	var parts []string
	if emb > 0 {
		parts = append(parts, fmt.Sprintf("semantic similarity %.0f%%", emb*100))
	}
	gap := target.Timestamp.Sub(cand.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	parts = append(parts, fmt.Sprintf("%.0fmin apart (%s, %s)", gap.Minutes(), target.Source, cand.Source))
	if ent > 0 {
		show := shared
		if len(show) > 3 {
			show = show[:3]
		}
		parts = append(parts, "shared entities: "+strings.Join(show, ", "))
	}
	return strings.Join(parts, "; ")
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
