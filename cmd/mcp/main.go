// Command mcp runs the RiskPulse MCP server over stdio, exposing the
// read-only risk query tools to LLM clients.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/riskpulse/riskpulse/internal/mcpserver"
)

func main() {
	_ = godotenv.Load()

	apiURL := os.Getenv("RISKPULSE_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	s := mcpserver.NewMCPServer(mcpserver.Config{APIURL: apiURL})
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "mcp server: %v\n", err)
		os.Exit(1)
	}
}
