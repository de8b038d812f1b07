package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the riskpulse MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolSignalRisk = mcp.NewTool("signal_risk",
	mcp.WithDescription(
		"Score an operational signal and explain its risk. "+
			"Returns the composite risk score, tier (critical/high/moderate/low), "+
			"the per-component breakdown, and a plain-language explanation of the primary drivers."),
	mcp.WithString("signal_id",
		mcp.Required(),
		mcp.Description("The signal's id (e.g. 'sig_abc123')")),
)

var ToolRecentAnomalies = mcp.NewTool("recent_anomalies",
	mcp.WithDescription(
		"List recently detected anomalies: volume spikes, risk score surges, "+
			"and sentiment drift across monitored sources. "+
			"Use this to understand what is statistically unusual right now."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of anomaly events to return (default 10)")),
)

var ToolListIncidents = mcp.NewTool("list_incidents",
	mcp.WithDescription(
		"Browse tracked incidents with their status, severity, and evidence. "+
			"Filter by status (active/investigating/resolved/dismissed) or severity "+
			"(low/medium/high/critical) to focus on what needs attention."),
	mcp.WithString("status",
		mcp.Description("Filter by lifecycle status"),
		mcp.Enum("active", "investigating", "resolved", "dismissed")),
	mcp.WithString("severity",
		mcp.Description("Filter by severity"),
		mcp.Enum("low", "medium", "high", "critical")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of incidents to return (default 20)")),
)

var ToolCorrelateSignal = mcp.NewTool("correlate_signal",
	mcp.WithDescription(
		"Find signals related to a given signal by semantic similarity, "+
			"temporal proximity, and shared entities. "+
			"Use this to see whether a signal is part of a wider pattern."),
	mcp.WithString("signal_id",
		mcp.Required(),
		mcp.Description("The signal's id to correlate from (e.g. 'sig_abc123')")),
	mcp.WithNumber("k",
		mcp.Description("Number of related signals to return (default 10, max 20)")),
)

var ToolRiskWeights = mcp.NewTool("risk_weights",
	mcp.WithDescription(
		"Read the active risk scoring weight configuration. "+
			"Shows how much sentiment, anomaly magnitude, ticket volume, revenue deviation, "+
			"and engagement each contribute to composite risk scores."),
)
