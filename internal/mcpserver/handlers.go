package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *RiskpulseClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *RiskpulseClient) *Handlers {
	return &Handlers{client: client}
}

// HandleSignalRisk scores a signal and explains the result.
func (h *Handlers) HandleSignalRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	signalID := req.GetString("signal_id", "")
	if signalID == "" {
		return mcp.NewToolResultError("signal_id is required"), nil
	}

	raw, err := h.client.ScoreSignal(ctx, signalID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to score signal: %v", err)), nil
	}

	text, err := formatRiskResult(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse score: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleRecentAnomalies lists recent anomaly events.
func (h *Handlers) HandleRecentAnomalies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)

	raw, err := h.client.RecentAnomalies(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list anomalies: %v", err)), nil
	}

	text, err := formatAnomalyList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse anomalies: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListIncidents lists incidents with optional filters.
func (h *Handlers) HandleListIncidents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "")
	severity := req.GetString("severity", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListIncidents(ctx, status, severity, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list incidents: %v", err)), nil
	}

	text, err := formatIncidentList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse incidents: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCorrelateSignal finds signals related to a given signal.
func (h *Handlers) HandleCorrelateSignal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	signalID := req.GetString("signal_id", "")
	if signalID == "" {
		return mcp.NewToolResultError("signal_id is required"), nil
	}
	k := req.GetInt("k", 10)

	raw, err := h.client.CorrelateSignal(ctx, signalID, k)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to correlate signal: %v", err)), nil
	}

	text, err := formatNeighborList(signalID, raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse correlation: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleRiskWeights returns the active scoring weights.
func (h *Handlers) HandleRiskWeights(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.RiskWeights(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get weights: %v", err)), nil
	}

	text, err := formatWeights(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse weights: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

func formatRiskResult(raw json.RawMessage) (string, error) {
	var resp struct {
		Result map[string]any `json:"result"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Result == nil {
		return "", fmt.Errorf("unexpected score response format")
	}
	r := resp.Result

	var sb strings.Builder
	sb.WriteString("Risk Assessment:\n")
	if v := getString(r, "signalId"); v != "" {
		sb.WriteString(fmt.Sprintf("  Signal: %s\n", v))
	}
	if v, ok := getFloat(r, "compositeScore"); ok {
		sb.WriteString(fmt.Sprintf("  Composite Score: %.4f\n", v))
	}
	if v := getString(r, "tier"); v != "" {
		sb.WriteString(fmt.Sprintf("  Tier: %s\n", v))
	}

	if comps, ok := r["components"].([]any); ok && len(comps) > 0 {
		sb.WriteString("\nComponents:\n")
		for _, c := range comps {
			m, ok := c.(map[string]any)
			if !ok {
				continue
			}
			score, _ := getFloat(m, "score")
			weight, _ := getFloat(m, "weight")
			weighted, _ := getFloat(m, "weighted")
			sb.WriteString(fmt.Sprintf("  %-14s score=%.4f weight=%.2f weighted=%.4f\n",
				getString(m, "name"), score, weight, weighted))
		}
	}

	if v := getString(r, "explanation"); v != "" {
		sb.WriteString(fmt.Sprintf("\n%s\n", v))
	}

	return sb.String(), nil
}

func formatAnomalyList(raw json.RawMessage) (string, error) {
	var resp struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected anomalies response format")
	}
	if len(resp.Events) == 0 {
		return "No recent anomalies.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d anomaly event(s):\n\n", len(resp.Events)))
	for i, e := range resp.Events {
		sb.WriteString(fmt.Sprintf("%d. [%s] %s\n", i+1, strings.ToUpper(getString(e, "severity")), getString(e, "title")))
		sb.WriteString(fmt.Sprintf("   Type: %s | Detected: %s\n", getString(e, "type"), getString(e, "detectedAt")))
		if v := getString(e, "description"); v != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", v))
		}
		if i < len(resp.Events)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatIncidentList(raw json.RawMessage) (string, error) {
	var resp struct {
		Incidents []map[string]any `json:"incidents"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected incidents response format")
	}
	if len(resp.Incidents) == 0 {
		return "No incidents found matching your criteria.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d incident(s):\n\n", len(resp.Incidents)))
	for i, inc := range resp.Incidents {
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, getString(inc, "title"), getString(inc, "id")))
		sb.WriteString(fmt.Sprintf("   Status: %s | Severity: %s | Started: %s\n",
			getString(inc, "status"), getString(inc, "severity"), getString(inc, "startTime")))
		if ids, ok := inc["relatedSignalIds"].([]any); ok && len(ids) > 0 {
			sb.WriteString(fmt.Sprintf("   Evidence: %d signal(s)\n", len(ids)))
		}
		if v := getString(inc, "rootCauseHypothesis"); v != "" {
			sb.WriteString(fmt.Sprintf("   Hypothesis: %s\n", v))
		}
		if i < len(resp.Incidents)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatNeighborList(signalID string, raw json.RawMessage) (string, error) {
	var resp struct {
		Neighbors []map[string]any `json:"neighbors"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected correlation response format")
	}
	if len(resp.Neighbors) == 0 {
		return fmt.Sprintf("No related signals found for %s.", signalID), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d signal(s) related to %s:\n\n", len(resp.Neighbors), signalID))
	for i, n := range resp.Neighbors {
		title := ""
		id := ""
		source := ""
		if sig, ok := n["signal"].(map[string]any); ok {
			id = getString(sig, "id")
			title = getString(sig, "title")
			source = getString(sig, "source")
		}
		score, _ := getFloat(n, "score")
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, title, id))
		sb.WriteString(fmt.Sprintf("   Score: %.4f | Method: %s | Source: %s\n", score, getString(n, "method"), source))
		if v := getString(n, "explanation"); v != "" {
			sb.WriteString(fmt.Sprintf("   %s\n", v))
		}
		if i < len(resp.Neighbors)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatWeights(raw json.RawMessage) (string, error) {
	var resp struct {
		Weights map[string]any `json:"weights"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Weights == nil {
		return "", fmt.Errorf("unexpected weights response format")
	}

	var sb strings.Builder
	sb.WriteString("Active Risk Weights:\n")
	for _, name := range []string{"sentiment", "anomaly", "ticketVolume", "revenue", "engagement"} {
		if v, ok := getFloat(resp.Weights, name); ok {
			sb.WriteString(fmt.Sprintf("  %-14s %.2f\n", name, v))
		}
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
