// Package anomaly detects statistical deviations in recent signal traffic.
//
// Three independent detectors scan a rolling current window against a
// longer baseline window: per-source volume spikes (Poisson z-statistic),
// global risk score surges (mean delta), and negative sentiment drift
// (ratio delta). Events are immutable once created.
package anomaly

import (
	"context"
	"time"
)

// Type discriminates the detector that produced an event.
type Type string

const (
	TypeVolumeSpike    Type = "volume_spike"
	TypeRiskSpike      Type = "risk_spike"
	TypeSentimentDrift Type = "sentiment_drift"
)

// Severity grades how far the observation deviated.
type Severity string

const (
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is a detected anomaly. Created only by the detectors, never
// mutated afterwards.
type Event struct {
	ID                string    `json:"id"`
	Type              Type      `json:"type"`
	Severity          Severity  `json:"severity"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	AffectedSource    string    `json:"affectedSource,omitempty"`
	MetricValue       float64   `json:"metricValue"`
	Threshold         float64   `json:"threshold"`
	AffectedSignalIDs []string  `json:"affectedSignalIds,omitempty"`
	DetectedAt        time.Time `json:"detectedAt"`
}

// Store persists anomaly events.
type Store interface {
	Create(ctx context.Context, event *Event) error
	// ListRecent returns events ordered by detected_at descending.
	ListRecent(ctx context.Context, limit int) ([]*Event, error)
	// ListSince returns events with detected_at >= since, newest first.
	ListSince(ctx context.Context, since time.Time) ([]*Event, error)
}

// StatusSummary aggregates recent events for dashboards.
type StatusSummary struct {
	Total             int              `json:"total"`
	SeverityBreakdown map[Severity]int `json:"severityBreakdown"`
	TypeBreakdown     map[Type]int     `json:"typeBreakdown"`
	LastDetectedAt    *time.Time       `json:"lastDetectedAt,omitempty"`
}
