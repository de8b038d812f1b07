// Package correlation computes pairwise signal relatedness and exposes a
// traversable neighborhood graph. Scores combine embedding similarity,
// temporal proximity, and entity overlap; the graph is rebuilt per query.
package correlation

import (
	"time"

	"github.com/riskpulse/riskpulse/internal/signal"
)

// Sub-score weights for the combined pair score. Fixed so that results are
// reproducible and individually testable.
const (
	EmbeddingWeight = 0.6
	TemporalWeight  = 0.2
	EntityWeight    = 0.2
)

// Defaults and hard caps for correlation queries.
const (
	DefaultTau      = 2 * time.Hour
	DefaultMinScore = 0.10
	DefaultK        = 10

	// CandidateSpan bounds how far from the target's timestamp candidate
	// signals are considered.
	CandidateSpan = 6 * time.Hour

	// maxCandidates bounds the window scan per query.
	maxCandidates = 2000

	MaxDepth    = 3
	MaxK        = 20
	MaxNodes    = 50
	MaxNodesCap = 200
)

// Neighbor is one ranked correlation result.
type Neighbor struct {
	Signal         *signal.Signal `json:"signal"`
	Score          float64        `json:"score"`
	EmbeddingScore float64        `json:"embeddingScore"`
	TemporalScore  float64        `json:"temporalScore"`
	EntityScore    float64        `json:"entityScore"`
	Method         string         `json:"method"`
	Explanation    string         `json:"explanation"`
}

// Node is a signal in a correlation graph.
type Node struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	RiskScore *float64  `json:"riskScore,omitempty"`
	RiskTier  string    `json:"riskTier,omitempty"`
}

// Edge connects two signals. Edges are undirected; Source/Target reflect
// the traversal direction that first produced the edge.
type Edge struct {
	SourceID string  `json:"sourceId"`
	TargetID string  `json:"targetId"`
	Weight   float64 `json:"weight"`
	Method   string  `json:"method"`
}

// Graph is the correlation neighborhood around a center signal.
type Graph struct {
	CenterID  string `json:"centerId"`
	Nodes     []Node `json:"nodes"`
	Edges     []Edge `json:"edges"`
	NodeCount int    `json:"nodeCount"`
	EdgeCount int    `json:"edgeCount"`
	Truncated bool   `json:"truncated"`
}

// GraphLimits bound graph traversal work.
type GraphLimits struct {
	Depth    int
	K        int
	MaxNodes int
}

// DefaultGraphLimits returns the traversal bounds used when none are
// configured.
func DefaultGraphLimits() GraphLimits {
	return GraphLimits{Depth: MaxDepth, K: MaxK, MaxNodes: MaxNodes}
}

// clampTo normalizes per-request limits against the configured bounds.
// Zero or negative fields take the bound (or the package default for K).
func (l GraphLimits) clampTo(bounds GraphLimits) GraphLimits {
	if l.Depth < 1 {
		l.Depth = 1
	}
	if l.Depth > bounds.Depth {
		l.Depth = bounds.Depth
	}
	if l.K < 1 {
		l.K = DefaultK
	}
	if l.K > bounds.K {
		l.K = bounds.K
	}
	if l.MaxNodes < 1 || l.MaxNodes > bounds.MaxNodes {
		l.MaxNodes = bounds.MaxNodes
	}
	return l
}
