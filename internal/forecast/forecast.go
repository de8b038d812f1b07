// Package forecast projects metric time series forward and flags
// concerning trends.
//
// Series come from metric samples attached to financial/system telemetry
// signals. A least-squares linear fit drives the projection, with a naive
// last-value fallback when the series is too short to fit.
package forecast

import (
	"time"
)

// Forecast methods.
const (
	MethodLinear           = "linear_regression"
	MethodNaive            = "naive_last_value"
	MethodInsufficientData = "insufficient_data"
)

// Trend directions.
const (
	TrendRising  = "rising"
	TrendFalling = "falling"
	TrendStable  = "stable"
)

// Point is one observation or projection in a metric series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Result is a generated forecast for one metric.
type Result struct {
	Metric      string    `json:"metric"`
	Method      string    `json:"method"`
	Trend       string    `json:"trend"`
	Confidence  float64   `json:"confidence"`
	Observed    []Point   `json:"observed"`
	Predicted   []Point   `json:"predicted"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Concern is a forecast judged bad enough to warrant an incident.
type Concern struct {
	Metric      string    `json:"metric"`
	Title       string    `json:"title"`
	Direction   string    `json:"direction"` // increasing | declining
	Severity    string    `json:"severity"`  // high | critical
	Description string    `json:"description"`
	Hypothesis  string    `json:"hypothesis"`
	Actions     string    `json:"actions"`
	Confidence  float64   `json:"confidence"`
	ChangeRatio float64   `json:"changeRatio"`
	GeneratedAt time.Time `json:"generatedAt"`
}
