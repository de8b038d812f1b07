// Package signal defines the core Signal entity and its storage contract.
//
// A Signal is a single ingested item of operational data (social post,
// support ticket, payment event, page, metric reading) that arrives already
// annotated by the external NLP layer: sentiment, entities, summary,
// embedding, and normalized risk component inputs. The scoring engine is
// the only writer of the risk fields; everything else treats a stored
// signal as read-only.
package signal

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a signal id does not exist.
var ErrNotFound = errors.New("signal not found")

// Source identifies where a signal was ingested from.
type Source string

const (
	SourceReddit    Source = "reddit"
	SourceNews      Source = "news"
	SourceZendesk   Source = "zendesk"
	SourceStripe    Source = "stripe"
	SourcePagerDuty Source = "pagerduty"
	SourceSystem    Source = "system"
	SourceFinancial Source = "financial"
	SourceCustom    Source = "custom"
)

// KnownSources lists all accepted source values, for validation.
var KnownSources = []string{
	string(SourceReddit), string(SourceNews), string(SourceZendesk),
	string(SourceStripe), string(SourcePagerDuty), string(SourceSystem),
	string(SourceFinancial), string(SourceCustom),
}

// SentimentLabel is the discrete NLP sentiment classification.
type SentimentLabel string

const (
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentPositive SentimentLabel = "positive"
)

// Entity is a named entity extracted from the signal content.
type Entity struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// ComponentInputs carries the pre-normalized risk component inputs computed
// by the ingestion layer. All values are in [0,1] where 1.0 = highest risk.
type ComponentInputs struct {
	AnomalyMagnitude float64 `json:"anomalyMagnitude"`
	TicketVolume     float64 `json:"ticketVolume"`
	RevenueDeviation float64 `json:"revenueDeviation"`
	EngagementSurge  float64 `json:"engagementSurge"`
}

// MetricSample is an optional numeric observation attached to financial and
// system telemetry signals. Series of samples feed the forecast engine.
type MetricSample struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// Signal is the core analyzed entity.
//
// Immutable once created except for RiskScore/RiskTier, which are written
// together (and only) by the risk scoring engine.
type Signal struct {
	ID        string    `json:"id"`
	Source    Source    `json:"source"`
	SourceID  string    `json:"sourceId,omitempty"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// NLP annotations, attached before ingestion.
	SentimentScore *float64       `json:"sentimentScore,omitempty"` // -1 (very negative) .. 1 (very positive)
	SentimentLabel SentimentLabel `json:"sentimentLabel,omitempty"`
	Urgency        string         `json:"urgency,omitempty"`
	Entities       []Entity       `json:"entities,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Embedding      []float64      `json:"embedding,omitempty"`

	// Normalized risk component inputs from the ingestion layer.
	Components *ComponentInputs `json:"components,omitempty"`

	// Optional metric sample for financial/system telemetry.
	Metric *MetricSample `json:"metric,omitempty"`

	// Risk fields, written atomically by the scoring engine. Nil/empty
	// until the signal has been scored.
	RiskScore *float64 `json:"riskScore,omitempty"`
	RiskTier  string   `json:"riskTier,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Scored reports whether the signal has been risk-scored.
func (s *Signal) Scored() bool {
	return s.RiskScore != nil && s.RiskTier != ""
}

// ListQuery filters signal listings.
type ListQuery struct {
	Source string // optional source filter
	Cursor string // opaque pagination cursor
	Limit  int
}

// Store persists signals.
type Store interface {
	Create(ctx context.Context, sig *Signal) error
	Get(ctx context.Context, id string) (*Signal, error)
	// List returns signals ordered by timestamp descending, filtered by q.
	// Fetches limit+1 rows so the caller can compute a next cursor.
	List(ctx context.Context, q ListQuery) ([]*Signal, error)
	// ListWindow returns signals with from <= timestamp < to, ordered by
	// timestamp ascending and capped at limit most-recent entries.
	ListWindow(ctx context.Context, from, to time.Time, limit int) ([]*Signal, error)
	// ListUnscored returns signals without a risk score, oldest first.
	ListUnscored(ctx context.Context, limit int) ([]*Signal, error)
	// CountBySource counts signals per source with from <= timestamp < to.
	CountBySource(ctx context.Context, from, to time.Time) (map[Source]int, error)
	// UpdateRisk writes risk_score and risk_tier together. The pair is
	// atomic from a reader's perspective: no reader ever observes one
	// updated without the other.
	UpdateRisk(ctx context.Context, id string, score float64, tier string) error
	// ListMetricSamples returns the time-ordered series of samples for a
	// named metric since the given time.
	ListMetricSamples(ctx context.Context, name string, since time.Time, limit int) ([]TimedSample, error)
	// ListMetricNames returns the distinct metric names observed since the
	// given time, sorted ascending.
	ListMetricNames(ctx context.Context, since time.Time) ([]string, error)
}

// TimedSample is a metric observation with its signal timestamp.
type TimedSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}
