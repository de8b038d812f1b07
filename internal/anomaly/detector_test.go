package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/riskpulse/riskpulse/internal/signal"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// makeWindow builds a synthetic detection window: baselinePerHour signals
// per hour over 23 baseline hours, currentCount signals in the last hour,
// all from the given source.
func makeWindow(source signal.Source, baselinePerHour, currentCount int) Window {
	var baseline []*signal.Signal
	n := 0
	for h := 1; h <= 23; h++ {
		for i := 0; i < baselinePerHour; i++ {
			n++
			baseline = append(baseline, &signal.Signal{
				ID:        fmt.Sprintf("sig_b%d", n),
				Source:    source,
				Timestamp: testNow.Add(-time.Duration(h) * time.Hour),
			})
		}
	}
	var current []*signal.Signal
	for i := 0; i < currentCount; i++ {
		current = append(current, &signal.Signal{
			ID:        fmt.Sprintf("sig_c%d", i),
			Source:    source,
			Timestamp: testNow.Add(-30 * time.Minute),
		})
	}
	return Window{
		Current:      current,
		Baseline:     baseline,
		CurrentSpan:  time.Hour,
		BaselineSpan: 24 * time.Hour,
		Now:          testNow,
	}
}

func TestVolumeSpike_ZeroDeviationNoEvents(t *testing.T) {
	d := NewVolumeSpikeDetector(DefaultThresholds())

	// Current count equals the baseline hourly rate.
	events := d.Detect(makeWindow(signal.SourceReddit, 10, 10))
	if len(events) != 0 {
		t.Fatalf("expected no events for zero deviation, got %d", len(events))
	}
}

func TestVolumeSpike_FiveTimesExpected(t *testing.T) {
	d := NewVolumeSpikeDetector(DefaultThresholds())

	events := d.Detect(makeWindow(signal.SourceReddit, 10, 50))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Type != TypeVolumeSpike {
		t.Errorf("type = %v, want volume_spike", e.Type)
	}
	if e.AffectedSource != "reddit" {
		t.Errorf("affected source = %q, want reddit", e.AffectedSource)
	}
	if e.MetricValue != 50 {
		t.Errorf("metric value = %v, want 50", e.MetricValue)
	}
	if len(e.AffectedSignalIDs) == 0 {
		t.Error("expected affected signal ids")
	}
	if e.DetectedAt != testNow {
		t.Errorf("detected at = %v, want injected clock", e.DetectedAt)
	}
}

func TestVolumeSpike_SeverityMonotone(t *testing.T) {
	d := NewVolumeSpikeDetector(DefaultThresholds())
	rank := map[Severity]int{SeverityModerate: 1, SeverityHigh: 2, SeverityCritical: 3}

	prev := 0
	for _, count := range []int{18, 25, 50} {
		events := d.Detect(makeWindow(signal.SourceZendesk, 10, count))
		if len(events) != 1 {
			t.Fatalf("count=%d: expected 1 event, got %d", count, len(events))
		}
		r := rank[events[0].Severity]
		if r < prev {
			t.Errorf("count=%d: severity %v is lower than for smaller deviation", count, events[0].Severity)
		}
		prev = r
	}
}

func TestVolumeSpike_InsufficientBaseline(t *testing.T) {
	d := NewVolumeSpikeDetector(DefaultThresholds())

	// 4 baseline signals total is below the 5-sample validity floor.
	w := makeWindow(signal.SourceNews, 0, 40)
	for i := 0; i < 4; i++ {
		w.Baseline = append(w.Baseline, &signal.Signal{
			ID:        fmt.Sprintf("sig_x%d", i),
			Source:    signal.SourceNews,
			Timestamp: testNow.Add(-2 * time.Hour),
		})
	}

	if events := d.Detect(w); len(events) != 0 {
		t.Fatalf("expected silent no-op for thin baseline, got %d events", len(events))
	}
}

func TestVolumeSpike_Deterministic(t *testing.T) {
	d := NewVolumeSpikeDetector(DefaultThresholds())
	w := makeWindow(signal.SourceReddit, 10, 50)

	first := d.Detect(w)
	second := d.Detect(w)
	if len(first) != len(second) {
		t.Fatalf("rerun produced different event counts: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Severity != second[i].Severity || first[i].MetricValue != second[i].MetricValue {
			t.Errorf("event %d diverged between reruns", i)
		}
	}
}

func riskWindow(currentRisk, baselineRisk float64, currentN, baselineN int) Window {
	w := Window{CurrentSpan: time.Hour, BaselineSpan: 24 * time.Hour, Now: testNow}
	for i := 0; i < currentN; i++ {
		r := currentRisk
		w.Current = append(w.Current, &signal.Signal{
			ID: fmt.Sprintf("sig_c%d", i), Source: signal.SourceSystem,
			Timestamp: testNow.Add(-10 * time.Minute), RiskScore: &r,
		})
	}
	for i := 0; i < baselineN; i++ {
		r := baselineRisk
		w.Baseline = append(w.Baseline, &signal.Signal{
			ID: fmt.Sprintf("sig_b%d", i), Source: signal.SourceSystem,
			Timestamp: testNow.Add(-5 * time.Hour), RiskScore: &r,
		})
	}
	return w
}

func TestRiskSurge_FiresOnDelta(t *testing.T) {
	d := NewRiskSurgeDetector(DefaultThresholds())

	events := d.Detect(riskWindow(0.65, 0.30, 5, 20))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Type != TypeRiskSpike {
		t.Errorf("type = %v, want risk_spike", e.Type)
	}
	if e.Severity != SeverityCritical {
		t.Errorf("severity = %v, want critical for +0.35 delta", e.Severity)
	}
	if len(e.AffectedSignalIDs) != 5 {
		t.Errorf("affected ids = %d, want 5", len(e.AffectedSignalIDs))
	}
}

func TestRiskSurge_BelowDeltaNoEvent(t *testing.T) {
	d := NewRiskSurgeDetector(DefaultThresholds())

	if events := d.Detect(riskWindow(0.35, 0.30, 5, 20)); len(events) != 0 {
		t.Fatalf("expected no events for +0.05 delta, got %d", len(events))
	}
}

func TestRiskSurge_InsufficientSamples(t *testing.T) {
	d := NewRiskSurgeDetector(DefaultThresholds())

	if events := d.Detect(riskWindow(0.9, 0.1, 2, 20)); len(events) != 0 {
		t.Fatal("expected no events with fewer than 3 current samples")
	}
	if events := d.Detect(riskWindow(0.9, 0.1, 5, 3)); len(events) != 0 {
		t.Fatal("expected no events with thin baseline")
	}
}

func TestRiskSurge_AffectedIDsBoundedAndSorted(t *testing.T) {
	d := NewRiskSurgeDetector(DefaultThresholds())
	w := riskWindow(0.8, 0.2, 25, 20)

	events := d.Detect(w)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ids := events[0].AffectedSignalIDs
	if len(ids) != maxAffectedSignals {
		t.Errorf("affected ids = %d, want %d", len(ids), maxAffectedSignals)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] < ids[i-1] {
			t.Error("equal-risk ties must break by id ascending")
			break
		}
	}
}

func sentimentWindow(currentNeg, currentTotal, baselineNeg, baselineTotal int) Window {
	w := Window{CurrentSpan: time.Hour, BaselineSpan: 24 * time.Hour, Now: testNow}
	label := func(i, neg int) signal.SentimentLabel {
		if i < neg {
			return signal.SentimentNegative
		}
		return signal.SentimentNeutral
	}
	for i := 0; i < currentTotal; i++ {
		w.Current = append(w.Current, &signal.Signal{
			ID: fmt.Sprintf("sig_c%d", i), Source: signal.SourceReddit,
			Timestamp:      testNow.Add(-10 * time.Minute),
			SentimentLabel: label(i, currentNeg),
		})
	}
	for i := 0; i < baselineTotal; i++ {
		w.Baseline = append(w.Baseline, &signal.Signal{
			ID: fmt.Sprintf("sig_b%d", i), Source: signal.SourceReddit,
			Timestamp:      testNow.Add(-5 * time.Hour),
			SentimentLabel: label(i, baselineNeg),
		})
	}
	return w
}

func TestSentimentDrift_FiresOnRatioJump(t *testing.T) {
	d := NewSentimentDriftDetector(DefaultThresholds())

	// 80% negative now vs 20% baseline.
	events := d.Detect(sentimentWindow(8, 10, 4, 20))
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Type != TypeSentimentDrift {
		t.Errorf("type = %v, want sentiment_drift", e.Type)
	}
	if e.Severity != SeverityCritical {
		t.Errorf("severity = %v, want critical at 80%% negative", e.Severity)
	}
	if len(e.AffectedSignalIDs) != 8 {
		t.Errorf("affected ids = %d, want the 8 negative signals", len(e.AffectedSignalIDs))
	}
}

func TestSentimentDrift_SmallDeltaNoEvent(t *testing.T) {
	d := NewSentimentDriftDetector(DefaultThresholds())

	// 30% now vs 20% baseline: +0.10 is below the 0.20 floor.
	if events := d.Detect(sentimentWindow(3, 10, 4, 20)); len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestSentimentDrift_MinSamples(t *testing.T) {
	d := NewSentimentDriftDetector(DefaultThresholds())

	if events := d.Detect(sentimentWindow(3, 4, 2, 20)); len(events) != 0 {
		t.Fatal("expected no events with fewer than 5 current samples")
	}
	if events := d.Detect(sentimentWindow(8, 10, 1, 4)); len(events) != 0 {
		t.Fatal("expected no events with thin baseline")
	}
}
