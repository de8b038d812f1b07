// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint for traces (optional)
	RateLimitRPM int

	// Risk scoring weights (must sum to 1.0 within WeightTolerance)
	RiskWeightSentiment    float64
	RiskWeightAnomaly      float64
	RiskWeightTicketVolume float64
	RiskWeightRevenue      float64
	RiskWeightEngagement   float64

	// Detection cycle
	CycleInterval  time.Duration // how often the background cycle runs
	CurrentWindow  time.Duration // recent window scanned for anomalies
	BaselineWindow time.Duration // comparison window for expected behavior
	MaxWindowSize  int           // cap on signals analyzed per window

	// Anomaly thresholds
	VolumeZModerate    float64
	VolumeZHigh        float64
	VolumeZCritical    float64
	RiskDeltaModerate  float64
	RiskDeltaHigh      float64
	RiskDeltaCritical  float64
	SentimentDriftMin  float64
	MinBaselineSamples int

	// Incident management
	IncidentOverlapRatio float64 // dedup: attach when this share of new ids already tracked
	AnomalyGracePeriod   time.Duration
	ForecastGracePeriod  time.Duration

	// Correlation
	CorrelationTau      time.Duration // temporal decay constant
	CorrelationMinScore float64
	GraphMaxNodes       int
	GraphMaxDepth       int
	GraphMaxK           int
}

// Defaults
const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"

	DefaultCycleInterval  = time.Minute
	DefaultCurrentWindow  = time.Hour
	DefaultBaselineWindow = 24 * time.Hour
	DefaultMaxWindowSize  = 5000

	DefaultRateLimit = 120

	// WeightTolerance is the allowed deviation of the risk weight sum from 1.0.
	WeightTolerance = 0.02
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM: int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimit)),

		RiskWeightSentiment:    getEnvFloat("RISK_WEIGHT_SENTIMENT", 0.25),
		RiskWeightAnomaly:      getEnvFloat("RISK_WEIGHT_ANOMALY", 0.25),
		RiskWeightTicketVolume: getEnvFloat("RISK_WEIGHT_TICKET_VOLUME", 0.20),
		RiskWeightRevenue:      getEnvFloat("RISK_WEIGHT_REVENUE", 0.15),
		RiskWeightEngagement:   getEnvFloat("RISK_WEIGHT_ENGAGEMENT", 0.15),

		CycleInterval:  getEnvDuration("CYCLE_INTERVAL", DefaultCycleInterval),
		CurrentWindow:  getEnvDuration("CURRENT_WINDOW", DefaultCurrentWindow),
		BaselineWindow: getEnvDuration("BASELINE_WINDOW", DefaultBaselineWindow),
		MaxWindowSize:  int(getEnvInt64("MAX_WINDOW_SIZE", DefaultMaxWindowSize)),

		VolumeZModerate:    getEnvFloat("VOLUME_Z_MODERATE", 2.0),
		VolumeZHigh:        getEnvFloat("VOLUME_Z_HIGH", 3.5),
		VolumeZCritical:    getEnvFloat("VOLUME_Z_CRITICAL", 5.0),
		RiskDeltaModerate:  getEnvFloat("RISK_DELTA_MODERATE", 0.10),
		RiskDeltaHigh:      getEnvFloat("RISK_DELTA_HIGH", 0.20),
		RiskDeltaCritical:  getEnvFloat("RISK_DELTA_CRITICAL", 0.30),
		SentimentDriftMin:  getEnvFloat("SENTIMENT_DRIFT_MIN", 0.20),
		MinBaselineSamples: int(getEnvInt64("MIN_BASELINE_SAMPLES", 5)),

		IncidentOverlapRatio: getEnvFloat("INCIDENT_OVERLAP_RATIO", 0.5),
		AnomalyGracePeriod:   getEnvDuration("ANOMALY_GRACE_PERIOD", 90*time.Minute),
		ForecastGracePeriod:  getEnvDuration("FORECAST_GRACE_PERIOD", 3*time.Hour),

		CorrelationTau:      getEnvDuration("CORRELATION_TAU", 2*time.Hour),
		CorrelationMinScore: getEnvFloat("CORRELATION_MIN_SCORE", 0.10),
		GraphMaxNodes:       int(getEnvInt64("GRAPH_MAX_NODES", 50)),
		GraphMaxDepth:       int(getEnvInt64("GRAPH_MAX_DEPTH", 3)),
		GraphMaxK:           int(getEnvInt64("GRAPH_MAX_K", 20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is coherent
func (c *Config) Validate() error {
	sum := c.RiskWeightSentiment + c.RiskWeightAnomaly + c.RiskWeightTicketVolume +
		c.RiskWeightRevenue + c.RiskWeightEngagement
	if math.Abs(sum-1.0) > WeightTolerance {
		return fmt.Errorf("risk weights must sum to 1.0 (±%.2f), got %.3f", WeightTolerance, sum)
	}
	for name, w := range map[string]float64{
		"RISK_WEIGHT_SENTIMENT":     c.RiskWeightSentiment,
		"RISK_WEIGHT_ANOMALY":       c.RiskWeightAnomaly,
		"RISK_WEIGHT_TICKET_VOLUME": c.RiskWeightTicketVolume,
		"RISK_WEIGHT_REVENUE":       c.RiskWeightRevenue,
		"RISK_WEIGHT_ENGAGEMENT":    c.RiskWeightEngagement,
	} {
		if w < 0 {
			return fmt.Errorf("%s must be non-negative, got %.3f", name, w)
		}
	}

	if c.CurrentWindow <= 0 || c.BaselineWindow <= 0 {
		return fmt.Errorf("windows must be positive (current=%s, baseline=%s)", c.CurrentWindow, c.BaselineWindow)
	}
	if c.BaselineWindow <= c.CurrentWindow {
		return fmt.Errorf("BASELINE_WINDOW (%s) must be longer than CURRENT_WINDOW (%s)", c.BaselineWindow, c.CurrentWindow)
	}
	if c.IncidentOverlapRatio < 0 || c.IncidentOverlapRatio > 1 {
		return fmt.Errorf("INCIDENT_OVERLAP_RATIO must be in [0,1], got %.3f", c.IncidentOverlapRatio)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
