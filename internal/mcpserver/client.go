package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the riskpulse API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
}

// RiskpulseClient is a pure HTTP client for the riskpulse API.
type RiskpulseClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewRiskpulseClient creates a new client for the riskpulse API.
func NewRiskpulseClient(cfg Config) *RiskpulseClient {
	return &RiskpulseClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *RiskpulseClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ScoreSignal scores a signal and returns its risk breakdown.
func (c *RiskpulseClient) ScoreSignal(ctx context.Context, signalID string) (json.RawMessage, error) {
	path := "/v1/signals/" + signalID + "/score"
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// RecentAnomalies returns recently detected anomaly events.
func (c *RiskpulseClient) RecentAnomalies(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/anomaly/recent", q, nil)
}

// ListIncidents lists incidents, optionally filtered by status and severity.
func (c *RiskpulseClient) ListIncidents(ctx context.Context, status, severity string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if severity != "" {
		q.Set("severity", severity)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/incidents", q, nil)
}

// CorrelateSignal returns the signals most related to the given signal.
func (c *RiskpulseClient) CorrelateSignal(ctx context.Context, signalID string, k int) (json.RawMessage, error) {
	q := url.Values{}
	if k > 0 {
		q.Set("k", strconv.Itoa(k))
	}
	path := "/v1/correlation/" + signalID
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// RiskWeights returns the active risk scoring weights.
func (c *RiskpulseClient) RiskWeights(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/risk/weights", nil, nil)
}
