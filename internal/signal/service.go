package signal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riskpulse/riskpulse/internal/idgen"
	"github.com/riskpulse/riskpulse/internal/metrics"
	"github.com/riskpulse/riskpulse/internal/validation"
)

// Service coordinates signal ingestion and retrieval.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a signal service
func NewService(store Store) *Service {
	return &Service{store: store, logger: slog.Default()}
}

// WithLogger sets the logger
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Store exposes the underlying store to other services (scoring, anomaly,
// correlation) that read signals.
func (s *Service) Store() Store {
	return s.store
}

// Ingest validates and persists a new annotated signal.
func (s *Service) Ingest(ctx context.Context, sig *Signal) (*Signal, error) {
	if errs := validation.Validate(
		validation.Required("content", sig.Content),
		validation.MaxLength("content", sig.Content, validation.MaxStringLength),
		validation.Required("source", string(sig.Source)),
		validation.OneOf("source", string(sig.Source), KnownSources...),
	); len(errs) > 0 {
		return nil, errs
	}
	if sig.SentimentScore != nil {
		if errs := validation.Validate(
			validation.UnitRange("sentimentScore", *sig.SentimentScore, -1, 1),
		); len(errs) > 0 {
			return nil, errs
		}
	}
	if c := sig.Components; c != nil {
		if errs := validation.Validate(
			validation.UnitRange("components.anomalyMagnitude", c.AnomalyMagnitude, 0, 1),
			validation.UnitRange("components.ticketVolume", c.TicketVolume, 0, 1),
			validation.UnitRange("components.revenueDeviation", c.RevenueDeviation, 0, 1),
			validation.UnitRange("components.engagementSurge", c.EngagementSurge, 0, 1),
		); len(errs) > 0 {
			return nil, errs
		}
	}
	sig.Title = validation.SanitizeString(sig.Title, 500)
	sig.Content = validation.SanitizeString(sig.Content, validation.MaxStringLength)

	now := time.Now().UTC()
	if sig.Timestamp.IsZero() {
		sig.Timestamp = now
	}
	sig.ID = idgen.WithPrefix("sig_")
	sig.CreatedAt = now
	sig.RiskScore = nil
	sig.RiskTier = ""

	if err := s.store.Create(ctx, sig); err != nil {
		return nil, fmt.Errorf("store signal: %w", err)
	}

	metrics.SignalsIngestedTotal.WithLabelValues(string(sig.Source)).Inc()
	s.logger.Debug("signal ingested",
		"signal_id", sig.ID,
		"source", sig.Source,
	)
	return sig, nil
}

// Get returns a signal by id
func (s *Service) Get(ctx context.Context, id string) (*Signal, error) {
	return s.store.Get(ctx, id)
}

// List returns a page of signals
func (s *Service) List(ctx context.Context, q ListQuery) ([]*Signal, error) {
	if q.Limit <= 0 || q.Limit > 200 {
		q.Limit = 50
	}
	return s.store.List(ctx, q)
}

