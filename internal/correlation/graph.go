package correlation

import (
	"context"
	"sort"

	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/signal"
	"github.com/riskpulse/riskpulse/internal/traces"
)

// BuildGraph expands the correlation neighborhood around a signal with a
// bounded breadth-first traversal. Node and edge sets are rebuilt per
// query; edges are deduplicated by unordered pair keeping the higher
// weight. When a bound is hit the graph is truncated, never left hanging.
func (c *Correlator) BuildGraph(ctx context.Context, signalID string, limits GraphLimits) (*Graph, error) {
	limits = limits.clampTo(c.graphLimits)

	ctx, span := traces.StartSpan(ctx, "correlation.BuildGraph",
		traces.SignalID(signalID), traces.GraphDepth(limits.Depth), traces.TopK(limits.K))
	defer span.End()

	metrics.CorrelationQueriesTotal.WithLabelValues("graph").Inc()

	center, err := c.signals.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}

	nodes := map[string]Node{center.ID: toNode(center)}
	edges := map[[2]string]Edge{}
	truncated := false

	frontier := []*signal.Signal{center}
	for depth := 0; depth < limits.Depth && len(frontier) > 0; depth++ {
		// Deterministic expansion order.
		sort.Slice(frontier, func(i, j int) bool { return frontier[i].ID < frontier[j].ID })

		var next []*signal.Signal
		for _, node := range frontier {
			neighbors, err := c.neighbors(ctx, node, limits.K)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				key := pairKey(node.ID, n.Signal.ID)
				if existing, ok := edges[key]; !ok || n.Score > existing.Weight {
					edges[key] = Edge{
						SourceID: node.ID,
						TargetID: n.Signal.ID,
						Weight:   n.Score,
						Method:   n.Method,
					}
				}
				if _, seen := nodes[n.Signal.ID]; seen {
					continue
				}
				if len(nodes) >= limits.MaxNodes {
					truncated = true
					continue
				}
				nodes[n.Signal.ID] = toNode(n.Signal)
				next = append(next, n.Signal)
			}
		}
		frontier = next
	}

	graph := &Graph{
		CenterID:  center.ID,
		Nodes:     make([]Node, 0, len(nodes)),
		Edges:     make([]Edge, 0, len(edges)),
		Truncated: truncated,
	}
	for _, node := range nodes {
		graph.Nodes = append(graph.Nodes, node)
	}
	sort.Slice(graph.Nodes, func(i, j int) bool { return graph.Nodes[i].ID < graph.Nodes[j].ID })

	for _, edge := range edges {
		// Drop edges whose far endpoint was truncated away.
		if _, ok := nodes[edge.SourceID]; !ok {
			continue
		}
		if _, ok := nodes[edge.TargetID]; !ok {
			continue
		}
		graph.Edges = append(graph.Edges, edge)
	}
	sort.Slice(graph.Edges, func(i, j int) bool {
		if graph.Edges[i].Weight != graph.Edges[j].Weight {
			return graph.Edges[i].Weight > graph.Edges[j].Weight
		}
		if graph.Edges[i].SourceID != graph.Edges[j].SourceID {
			return graph.Edges[i].SourceID < graph.Edges[j].SourceID
		}
		return graph.Edges[i].TargetID < graph.Edges[j].TargetID
	})

	graph.NodeCount = len(graph.Nodes)
	graph.EdgeCount = len(graph.Edges)
	return graph, nil
}

func pairKey(a, b string) [2]string {
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func toNode(sig *signal.Signal) Node {
	return Node{
		ID:        sig.ID,
		Title:     sig.Title,
		Source:    string(sig.Source),
		Timestamp: sig.Timestamp,
		RiskScore: sig.RiskScore,
		RiskTier:  sig.RiskTier,
	}
}
