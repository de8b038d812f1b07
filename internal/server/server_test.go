package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpulse/riskpulse/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:     "0",
		Env:      "development",
		LogLevel: "error",

		RateLimitRPM: 10000,

		RiskWeightSentiment:    0.25,
		RiskWeightAnomaly:      0.25,
		RiskWeightTicketVolume: 0.20,
		RiskWeightRevenue:      0.15,
		RiskWeightEngagement:   0.15,

		CycleInterval:  time.Minute,
		CurrentWindow:  time.Hour,
		BaselineWindow: 24 * time.Hour,
		MaxWindowSize:  5000,

		VolumeZModerate:    2.0,
		VolumeZHigh:        3.5,
		VolumeZCritical:    5.0,
		RiskDeltaModerate:  0.10,
		RiskDeltaHigh:      0.20,
		RiskDeltaCritical:  0.30,
		SentimentDriftMin:  0.20,
		MinBaselineSamples: 5,

		IncidentOverlapRatio: 0.5,
		AnomalyGracePeriod:   90 * time.Minute,
		ForecastGracePeriod:  3 * time.Hour,

		CorrelationTau:      2 * time.Hour,
		CorrelationMinScore: 0.10,
		GraphMaxNodes:       50,
		GraphMaxDepth:       3,
		GraphMaxK:           20,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv, err := New(testConfig())
	require.NoError(t, err)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestServer_IngestScoreAndFetch(t *testing.T) {
	srv := newTestServer(t)

	sentiment := -0.8
	w := doJSON(t, srv, http.MethodPost, "/v1/signals", gin.H{
		"source":         "reddit",
		"content":        "checkout is broken again",
		"sentimentScore": sentiment,
		"sentimentLabel": "negative",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Signal struct {
			ID string `json:"id"`
		} `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Contains(t, created.Signal.ID, "sig_")

	w = doJSON(t, srv, http.MethodPost, "/v1/signals/"+created.Signal.ID+"/score", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var scored struct {
		Result struct {
			CompositeScore float64 `json:"compositeScore"`
			Tier           string  `json:"tier"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scored))
	assert.InDelta(t, 0.225, scored.Result.CompositeScore, 0.001)
	assert.Equal(t, "low", scored.Result.Tier)

	w = doJSON(t, srv, http.MethodGet, "/v1/signals/"+created.Signal.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"riskTier":"low"`)
}

func TestServer_GraphCapsFromConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.GraphMaxNodes = 2
	srv, err := New(cfg)
	require.NoError(t, err)

	var firstID string
	for i := 0; i < 4; i++ {
		w := doJSON(t, srv, http.MethodPost, "/v1/signals", gin.H{
			"source":    "reddit",
			"content":   "checkout latency climbing",
			"embedding": []float64{1, 0, 0},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		if i == 0 {
			var created struct {
				Signal struct {
					ID string `json:"id"`
				} `json:"signal"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
			firstID = created.Signal.ID
		}
	}

	w := doJSON(t, srv, http.MethodGet, "/v1/correlation/graph/"+firstID+"?depth=3&k=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var graph struct {
		NodeCount int  `json:"nodeCount"`
		Truncated bool `json:"truncated"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &graph))
	assert.Equal(t, 2, graph.NodeCount)
	assert.True(t, graph.Truncated)
}

func TestServer_NotFoundMapping(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{
		"/v1/signals/sig_missing",
		"/v1/incidents/inc_missing",
		"/v1/correlation/sig_missing",
	} {
		w := doJSON(t, srv, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Contains(t, w.Body.String(), "not_found", path)
	}
}

func TestServer_WeightsFromConfig(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/v1/risk/weights", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Weights struct {
			Sentiment float64 `json:"sentiment"`
			Anomaly   float64 `json:"anomaly"`
		} `json:"weights"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0.25, resp.Weights.Sentiment)
	assert.Equal(t, 0.25, resp.Weights.Anomaly)
}

func TestServer_HealthAndReadiness(t *testing.T) {
	srv := newTestServer(t)

	// Not ready until Run has started the listener.
	w := doJSON(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// The cycle checker reports degraded until the timer runs.
	w = doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "cycle")

	w = doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RequestIDPropagates(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-test-123")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-test-123", w.Header().Get("X-Request-ID"))
}
