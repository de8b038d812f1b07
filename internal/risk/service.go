package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/signal"
	"github.com/riskpulse/riskpulse/internal/traces"
)

// Service coordinates scoring against the signal store and owns the active
// weight configuration. It is the only writer of risk_score/risk_tier.
type Service struct {
	engine  *Engine
	signals signal.Store
	weights WeightsStore
	logger  *slog.Logger
}

// NewService creates a risk service.
func NewService(signals signal.Store, weights WeightsStore) *Service {
	return &Service{
		engine:  NewEngine(),
		signals: signals,
		weights: weights,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// ScoreSignal scores one signal with the active weights and persists the
// result. Rescoring overwrites score and tier together.
func (s *Service) ScoreSignal(ctx context.Context, signalID string) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "risk.ScoreSignal", traces.SignalID(signalID))
	defer span.End()

	sig, err := s.signals.Get(ctx, signalID)
	if err != nil {
		return nil, err
	}

	weights, err := s.weights.GetWeights(ctx)
	if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}

	result, err := s.engine.Score(sig, weights)
	if err != nil {
		return nil, err
	}

	if err := s.signals.UpdateRisk(ctx, sig.ID, result.CompositeScore, string(result.Tier)); err != nil {
		return nil, fmt.Errorf("persist risk: %w", err)
	}

	metrics.SignalsScoredTotal.WithLabelValues(string(result.Tier)).Inc()
	return result, nil
}

// BatchItemError records a per-signal failure inside a batch scoring run.
type BatchItemError struct {
	SignalID string `json:"signalId"`
	Error    string `json:"error"`
}

// ScoreBatch scores every given signal, continuing past per-signal
// failures. Returns the successful results and the per-item errors.
func (s *Service) ScoreBatch(ctx context.Context, signalIDs []string) ([]*Result, []BatchItemError) {
	var results []*Result
	var failures []BatchItemError
	for _, id := range signalIDs {
		result, err := s.ScoreSignal(ctx, id)
		if err != nil {
			failures = append(failures, BatchItemError{SignalID: id, Error: err.Error()})
			s.logger.Warn("scoring failed", "signal_id", id, "error", err)
			continue
		}
		results = append(results, result)
	}
	return results, failures
}

// ScoreUnscored scores every signal that has not been scored yet, up to
// limit. Used by the background cycle.
func (s *Service) ScoreUnscored(ctx context.Context, limit int) (scored int, err error) {
	unscored, err := s.signals.ListUnscored(ctx, limit)
	if err != nil {
		return 0, err
	}
	for _, sig := range unscored {
		if _, err := s.ScoreSignal(ctx, sig.ID); err != nil {
			if errors.Is(err, ErrMissingSignalData) {
				s.logger.Debug("skipping unscoreable signal", "signal_id", sig.ID)
				continue
			}
			s.logger.Warn("scoring failed", "signal_id", sig.ID, "error", err)
			continue
		}
		scored++
	}
	return scored, nil
}

// GetWeights returns the active weight configuration.
func (s *Service) GetWeights(ctx context.Context) (Weights, error) {
	return s.weights.GetWeights(ctx)
}

// UpdateWeights validates and stores a new configuration.
func (s *Service) UpdateWeights(ctx context.Context, w Weights) (Weights, error) {
	if err := w.Validate(); err != nil {
		return Weights{}, err
	}
	if err := s.weights.SetWeights(ctx, w); err != nil {
		return Weights{}, err
	}
	s.logger.Info("risk weights updated",
		"sentiment", w.Sentiment,
		"anomaly", w.Anomaly,
		"ticket_volume", w.TicketVolume,
		"revenue", w.Revenue,
		"engagement", w.Engagement,
	)
	return w, nil
}

// ResetWeights restores the default configuration.
func (s *Service) ResetWeights(ctx context.Context) (Weights, error) {
	defaults := DefaultWeights()
	if err := s.weights.SetWeights(ctx, defaults); err != nil {
		return Weights{}, err
	}
	s.logger.Info("risk weights reset to defaults")
	return defaults, nil
}
