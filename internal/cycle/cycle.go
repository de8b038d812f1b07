// Package cycle runs the periodic detection pipeline: score pending
// signals, scan for anomalies, open or update incidents, evaluate metric
// forecasts, and reconcile incidents whose sources went quiet.
package cycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/riskpulse/riskpulse/internal/anomaly"
	"github.com/riskpulse/riskpulse/internal/forecast"
	"github.com/riskpulse/riskpulse/internal/incident"
	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/risk"
	"github.com/riskpulse/riskpulse/internal/traces"
)

// Scoring and forecasting work caps per cycle.
const (
	scoreBatchLimit  = 500
	forecastMetrics  = 6
	forecastHorizon  = forecast.DefaultHorizon
	forecastLookback = forecast.DefaultLookback
)

// Runner executes one full detection cycle. It is the glue between the
// engines and carries no state of its own besides its collaborators.
type Runner struct {
	risk      *risk.Service
	anomalies *anomaly.Service
	forecasts *forecast.Engine
	incidents *incident.Manager
	logger    *slog.Logger
}

// NewRunner wires a detection cycle runner.
func NewRunner(riskSvc *risk.Service, anomalies *anomaly.Service, forecasts *forecast.Engine, incidents *incident.Manager) *Runner {
	return &Runner{
		risk:      riskSvc,
		anomalies: anomalies,
		forecasts: forecasts,
		incidents: incidents,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// Summary reports what one cycle did.
type Summary struct {
	ScoredSignals     int `json:"scoredSignals"`
	AnomalyEvents     int `json:"anomalyEvents"`
	ForecastConcerns  int `json:"forecastConcerns"`
	IncidentsCreated  int `json:"incidentsCreated"`
	IncidentsUpdated  int `json:"incidentsUpdated"`
	IncidentsResolved int `json:"incidentsResolved"`
	OpenIncidents     int `json:"openIncidents"`
}

// RunOnce executes a single cycle. Stage failures are logged and the cycle
// continues; the pipeline is re-entrant and the next run picks up whatever
// this one missed.
func (r *Runner) RunOnce(ctx context.Context) (*Summary, error) {
	ctx, span := traces.StartSpan(ctx, "cycle.RunOnce")
	defer span.End()

	start := time.Now()
	defer func() {
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	summary := &Summary{}

	scored, err := r.risk.ScoreUnscored(ctx, scoreBatchLimit)
	if err != nil {
		r.logger.Warn("cycle: scoring pass failed", "error", err)
	}
	summary.ScoredSignals = scored

	events, err := r.anomalies.Run(ctx)
	if err != nil {
		r.logger.Warn("cycle: anomaly detection failed", "error", err)
	}
	summary.AnomalyEvents = len(events)

	activeAnomalyTitles := make(map[string]bool, len(events))
	for _, event := range events {
		inc, created, err := r.incidents.CreateFromAnomaly(ctx, event)
		if err != nil {
			r.logger.Warn("cycle: incident from anomaly failed",
				"event_id", event.ID, "error", err)
			continue
		}
		activeAnomalyTitles[inc.Title] = true
		if created {
			summary.IncidentsCreated++
		} else {
			summary.IncidentsUpdated++
		}
	}

	concerns, err := r.forecasts.CollectConcerns(ctx, forecastMetrics, forecastHorizon, forecastLookback)
	if err != nil {
		r.logger.Warn("cycle: forecast pass failed", "error", err)
	}
	summary.ForecastConcerns = len(concerns)

	activeForecastTitles := make(map[string]bool, len(concerns))
	for _, concern := range concerns {
		inc, created, err := r.incidents.CreateFromForecast(ctx, concern)
		if err != nil {
			r.logger.Warn("cycle: incident from forecast failed",
				"metric", concern.Metric, "error", err)
			continue
		}
		activeForecastTitles[inc.Title] = true
		if created {
			summary.IncidentsCreated++
		} else {
			summary.IncidentsUpdated++
		}
	}

	resolved, err := r.incidents.ReconcileStale(ctx, activeAnomalyTitles, activeForecastTitles)
	if err != nil {
		r.logger.Warn("cycle: stale reconcile failed", "error", err)
	}
	summary.IncidentsResolved = len(resolved)

	open, err := r.incidents.ListOpen(ctx)
	if err == nil {
		summary.OpenIncidents = len(open)
		metrics.OpenIncidents.Set(float64(len(open)))
	}

	r.logger.Info("cycle complete",
		"scored", summary.ScoredSignals,
		"anomalies", summary.AnomalyEvents,
		"concerns", summary.ForecastConcerns,
		"incidents_created", summary.IncidentsCreated,
		"incidents_updated", summary.IncidentsUpdated,
		"incidents_resolved", summary.IncidentsResolved,
		"duration", time.Since(start),
	)
	return summary, nil
}
