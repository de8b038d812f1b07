package anomaly

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/signal"
	"github.com/riskpulse/riskpulse/internal/traces"
)

// Service loads detection windows from the signal store and runs the
// detectors in a fixed order.
type Service struct {
	signals       signal.Store
	store         Store
	detectors     []Detector
	currentSpan   time.Duration
	baselineSpan  time.Duration
	maxWindowSize int
	now           func() time.Time
	logger        *slog.Logger
}

// NewService creates an anomaly service with the default detector set:
// volume spike, risk surge, sentiment drift — always in that order so
// reruns over the same data emit events in the same sequence.
func NewService(signals signal.Store, store Store, cfg Thresholds) *Service {
	return &Service{
		signals: signals,
		store:   store,
		detectors: []Detector{
			NewVolumeSpikeDetector(cfg),
			NewRiskSurgeDetector(cfg),
			NewSentimentDriftDetector(cfg),
		},
		currentSpan:   time.Hour,
		baselineSpan:  24 * time.Hour,
		maxWindowSize: 5000,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        slog.Default(),
	}
}

// WithWindows overrides the current/baseline window spans.
func (s *Service) WithWindows(current, baseline time.Duration, maxSize int) *Service {
	s.currentSpan = current
	s.baselineSpan = baseline
	if maxSize > 0 {
		s.maxWindowSize = maxSize
	}
	return s
}

// WithClock injects a deterministic clock for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Run executes one detection pass over the rolling windows and persists any
// events. Insufficient data in a window is a silent no-op per detector.
func (s *Service) Run(ctx context.Context) ([]*Event, error) {
	ctx, span := traces.StartSpan(ctx, "anomaly.Run")
	defer span.End()

	now := s.now()
	current, err := s.signals.ListWindow(ctx, now.Add(-s.currentSpan), now, s.maxWindowSize)
	if err != nil {
		return nil, fmt.Errorf("load current window: %w", err)
	}
	baseline, err := s.signals.ListWindow(ctx, now.Add(-s.baselineSpan), now.Add(-s.currentSpan), s.maxWindowSize)
	if err != nil {
		return nil, fmt.Errorf("load baseline window: %w", err)
	}
	metrics.WindowSignals.Set(float64(len(current)))

	// Volume statistics use exact store counts, not the capped slices.
	currentCounts, err := s.signals.CountBySource(ctx, now.Add(-s.currentSpan), now)
	if err != nil {
		return nil, fmt.Errorf("count current window: %w", err)
	}
	baselineCounts, err := s.signals.CountBySource(ctx, now.Add(-s.baselineSpan), now.Add(-s.currentSpan))
	if err != nil {
		return nil, fmt.Errorf("count baseline window: %w", err)
	}

	w := Window{
		Current:        current,
		Baseline:       baseline,
		CurrentSpan:    s.currentSpan,
		BaselineSpan:   s.baselineSpan,
		Now:            now,
		CurrentCounts:  currentCounts,
		BaselineCounts: baselineCounts,
	}

	var events []*Event
	for _, d := range s.detectors {
		events = append(events, d.Detect(w)...)
	}

	for _, event := range events {
		if err := s.store.Create(ctx, event); err != nil {
			return nil, fmt.Errorf("persist event %s: %w", event.ID, err)
		}
		metrics.AnomalyEventsTotal.WithLabelValues(string(event.Type), string(event.Severity)).Inc()
		s.logger.Info("anomaly detected",
			"event_id", event.ID,
			"type", event.Type,
			"severity", event.Severity,
			"source", event.AffectedSource,
		)
	}
	return events, nil
}

// Recent returns the most recent events.
func (s *Service) Recent(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return s.store.ListRecent(ctx, limit)
}

// Status summarizes events from the last 24 hours.
func (s *Service) Status(ctx context.Context) (*StatusSummary, error) {
	events, err := s.store.ListSince(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	summary := &StatusSummary{
		Total:             len(events),
		SeverityBreakdown: make(map[Severity]int),
		TypeBreakdown:     make(map[Type]int),
	}
	for _, e := range events {
		summary.SeverityBreakdown[e.Severity]++
		summary.TypeBreakdown[e.Type]++
		if summary.LastDetectedAt == nil || e.DetectedAt.After(*summary.LastDetectedAt) {
			at := e.DetectedAt
			summary.LastDetectedAt = &at
		}
	}
	return summary, nil
}
