package anomaly

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/riskpulse/riskpulse/internal/idgen"
	"github.com/riskpulse/riskpulse/internal/signal"
)

// Window is the pre-loaded input to one detection pass: a current window of
// recent signals and a longer baseline window for comparison. Both slices
// are ordered by timestamp ascending.
type Window struct {
	Current      []*signal.Signal
	Baseline     []*signal.Signal
	CurrentSpan  time.Duration
	BaselineSpan time.Duration
	Now          time.Time

	// CurrentCounts and BaselineCounts are exact per-source arrival counts
	// straight from the store, so the window size cap cannot skew volume
	// statistics. Nil counts fall back to counting the slices.
	CurrentCounts  map[signal.Source]int
	BaselineCounts map[signal.Source]int
}

// Detector is one statistical test over a window. Implementations must be
// deterministic: same window, same thresholds, same events.
type Detector interface {
	Detect(w Window) []*Event
}

// Thresholds carries the detector configuration.
type Thresholds struct {
	VolumeZModerate float64
	VolumeZHigh     float64
	VolumeZCritical float64

	RiskDeltaModerate float64
	RiskDeltaHigh     float64
	RiskDeltaCritical float64

	// SentimentDriftMin is the minimum increase in negative-sentiment
	// ratio over baseline to fire.
	SentimentDriftMin float64

	// MinBaselineSamples is the statistical validity floor: windows with
	// fewer samples produce no events rather than noisy ones.
	MinBaselineSamples int
}

// DefaultThresholds returns the shipped detector configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		VolumeZModerate:    2.0,
		VolumeZHigh:        3.5,
		VolumeZCritical:    5.0,
		RiskDeltaModerate:  0.10,
		RiskDeltaHigh:      0.20,
		RiskDeltaCritical:  0.30,
		SentimentDriftMin:  0.20,
		MinBaselineSamples: 5,
	}
}

// maxAffectedSignals bounds the evidence list on a single event.
const maxAffectedSignals = 10

// VolumeSpikeDetector flags sources whose current arrival count exceeds the
// Poisson expectation derived from the baseline window.
type VolumeSpikeDetector struct {
	cfg Thresholds
}

func NewVolumeSpikeDetector(cfg Thresholds) *VolumeSpikeDetector {
	return &VolumeSpikeDetector{cfg: cfg}
}

var _ Detector = (*VolumeSpikeDetector)(nil)

func (d *VolumeSpikeDetector) Detect(w Window) []*Event {
	if w.CurrentSpan <= 0 || w.BaselineSpan <= w.CurrentSpan {
		return nil
	}

	currentCounts := w.CurrentCounts
	if currentCounts == nil {
		currentCounts = countBySource(w.Current)
	}
	baselineCounts := w.BaselineCounts
	if baselineCounts == nil {
		baselineCounts = countBySource(w.Baseline)
	}

	// Baseline rate per current-window span length.
	periods := (w.BaselineSpan - w.CurrentSpan).Hours() / w.CurrentSpan.Hours()
	if periods <= 0 {
		return nil
	}

	var events []*Event
	for _, source := range sortedSources(currentCounts) {
		if baselineCounts[source] < d.cfg.MinBaselineSamples {
			continue // not enough baseline data for this source
		}
		observed := float64(currentCounts[source])
		expected := float64(baselineCounts[source]) / periods
		if expected <= 0 {
			continue
		}

		z := (observed - expected) / math.Sqrt(expected)
		if z < d.cfg.VolumeZModerate {
			continue
		}

		severity := SeverityModerate
		switch {
		case z >= d.cfg.VolumeZCritical:
			severity = SeverityCritical
		case z >= d.cfg.VolumeZHigh:
			severity = SeverityHigh
		}

		events = append(events, &Event{
			ID:       idgen.WithPrefix("anom_"),
			Type:     TypeVolumeSpike,
			Severity: severity,
			Title:    fmt.Sprintf("Volume spike: %s", source),
			Description: fmt.Sprintf(
				"%s produced %.0f signals in the current window vs %.1f expected (z=%.1f)",
				source, observed, expected, z),
			AffectedSource:    string(source),
			MetricValue:       observed,
			Threshold:         expected + d.cfg.VolumeZModerate*math.Sqrt(expected),
			AffectedSignalIDs: signalIDsForSource(w.Current, source, maxAffectedSignals),
			DetectedAt:        w.Now,
		})
	}
	return events
}

// RiskSurgeDetector flags a global jump in mean risk score over baseline.
type RiskSurgeDetector struct {
	cfg Thresholds
}

func NewRiskSurgeDetector(cfg Thresholds) *RiskSurgeDetector {
	return &RiskSurgeDetector{cfg: cfg}
}

var _ Detector = (*RiskSurgeDetector)(nil)

func (d *RiskSurgeDetector) Detect(w Window) []*Event {
	currentMean, currentN := meanRisk(w.Current)
	baselineMean, baselineN := meanRisk(w.Baseline)
	if currentN < 3 || baselineN < d.cfg.MinBaselineSamples {
		return nil
	}

	delta := currentMean - baselineMean
	if delta < d.cfg.RiskDeltaModerate {
		return nil
	}

	severity := SeverityModerate
	switch {
	case delta >= d.cfg.RiskDeltaCritical:
		severity = SeverityCritical
	case delta >= d.cfg.RiskDeltaHigh:
		severity = SeverityHigh
	}

	return []*Event{{
		ID:       idgen.WithPrefix("anom_"),
		Type:     TypeRiskSpike,
		Severity: severity,
		Title:    "Risk score surge detected",
		Description: fmt.Sprintf(
			"Mean risk score rose to %.0f%% from %.0f%% baseline (+%.0f points)",
			currentMean*100, baselineMean*100, delta*100),
		MetricValue:       currentMean,
		Threshold:         baselineMean + d.cfg.RiskDeltaModerate,
		AffectedSignalIDs: topRiskSignalIDs(w.Current, maxAffectedSignals),
		DetectedAt:        w.Now,
	}}
}

// SentimentDriftDetector flags a shift toward negative sentiment relative
// to baseline.
type SentimentDriftDetector struct {
	cfg Thresholds
}

func NewSentimentDriftDetector(cfg Thresholds) *SentimentDriftDetector {
	return &SentimentDriftDetector{cfg: cfg}
}

var _ Detector = (*SentimentDriftDetector)(nil)

func (d *SentimentDriftDetector) Detect(w Window) []*Event {
	currentNeg, currentTotal := negativeRatio(w.Current)
	baselineNeg, baselineTotal := negativeRatio(w.Baseline)
	if currentTotal < d.cfg.MinBaselineSamples || baselineTotal < d.cfg.MinBaselineSamples {
		return nil
	}

	delta := currentNeg - baselineNeg
	if delta < d.cfg.SentimentDriftMin {
		return nil
	}

	severity := SeverityModerate
	switch {
	case currentNeg >= 0.75:
		severity = SeverityCritical
	case currentNeg >= 0.60:
		severity = SeverityHigh
	}

	return []*Event{{
		ID:       idgen.WithPrefix("anom_"),
		Type:     TypeSentimentDrift,
		Severity: severity,
		Title:    "Negative sentiment surge",
		Description: fmt.Sprintf(
			"%.0f%% of current signals are negative vs %.0f%% baseline",
			currentNeg*100, baselineNeg*100),
		MetricValue:       currentNeg,
		Threshold:         baselineNeg + d.cfg.SentimentDriftMin,
		AffectedSignalIDs: negativeSignalIDs(w.Current, maxAffectedSignals),
		DetectedAt:        w.Now,
	}}
}

func countBySource(signals []*signal.Signal) map[signal.Source]int {
	counts := make(map[signal.Source]int)
	for _, s := range signals {
		counts[s.Source]++
	}
	return counts
}

func sortedSources(counts map[signal.Source]int) []signal.Source {
	sources := make([]signal.Source, 0, len(counts))
	for s := range counts {
		sources = append(sources, s)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	return sources
}

func signalIDsForSource(signals []*signal.Signal, source signal.Source, limit int) []string {
	var ids []string
	// Most recent first.
	for i := len(signals) - 1; i >= 0 && len(ids) < limit; i-- {
		if signals[i].Source == source {
			ids = append(ids, signals[i].ID)
		}
	}
	return ids
}

func meanRisk(signals []*signal.Signal) (mean float64, n int) {
	var sum float64
	for _, s := range signals {
		if s.RiskScore == nil {
			continue
		}
		sum += *s.RiskScore
		n++
	}
	if n == 0 {
		return 0, 0
	}
	return sum / float64(n), n
}

func topRiskSignalIDs(signals []*signal.Signal, limit int) []string {
	scored := make([]*signal.Signal, 0, len(signals))
	for _, s := range signals {
		if s.RiskScore != nil {
			scored = append(scored, s)
		}
	}
	sort.Slice(scored, func(i, j int) bool {
		if *scored[i].RiskScore != *scored[j].RiskScore {
			return *scored[i].RiskScore > *scored[j].RiskScore
		}
		return scored[i].ID < scored[j].ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
	}
	return ids
}

func negativeRatio(signals []*signal.Signal) (ratio float64, total int) {
	var neg int
	for _, s := range signals {
		if s.SentimentLabel == "" {
			continue
		}
		total++
		if s.SentimentLabel == signal.SentimentNegative {
			neg++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(neg) / float64(total), total
}

func negativeSignalIDs(signals []*signal.Signal, limit int) []string {
	var ids []string
	for i := len(signals) - 1; i >= 0 && len(ids) < limit; i-- {
		if signals[i].SentimentLabel == signal.SentimentNegative {
			ids = append(ids, signals[i].ID)
		}
	}
	return ids
}
