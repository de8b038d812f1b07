package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all riskpulse tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("riskpulse", "0.1.0")
	client := NewRiskpulseClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolSignalRisk, h.HandleSignalRisk)
	s.AddTool(ToolRecentAnomalies, h.HandleRecentAnomalies)
	s.AddTool(ToolListIncidents, h.HandleListIncidents)
	s.AddTool(ToolCorrelateSignal, h.HandleCorrelateSignal)
	s.AddTool(ToolRiskWeights, h.HandleRiskWeights)

	return s
}
