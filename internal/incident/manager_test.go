package incident

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpulse/riskpulse/internal/anomaly"
	"github.com/riskpulse/riskpulse/internal/forecast"
	"github.com/riskpulse/riskpulse/internal/signal"
)

var managerNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupManager(t *testing.T) (*Manager, *MemoryStore, *signal.MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	signals := signal.NewMemoryStore()
	mgr := NewManager(store, store, signals).
		WithClock(func() time.Time { return managerNow })
	return mgr, store, signals
}

func testEvent(ids ...string) *anomaly.Event {
	return &anomaly.Event{
		ID:                "anom_1",
		Type:              anomaly.TypeVolumeSpike,
		Severity:          anomaly.SeverityHigh,
		Title:             "Volume spike: reddit",
		Description:       "reddit produced 50 signals vs 10 expected",
		AffectedSource:    "reddit",
		MetricValue:       50,
		Threshold:         19.5,
		AffectedSignalIDs: ids,
		DetectedAt:        managerNow,
	}
}

func TestCreateFromAnomaly_CreatesActiveIncident(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := setupManager(t)

	inc, created, err := mgr.CreateFromAnomaly(ctx, testEvent("sig_a", "sig_b"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Contains(t, inc.ID, "inc_")
	assert.Equal(t, StatusActive, inc.Status)
	assert.Equal(t, SeverityHigh, inc.Severity)
	assert.Equal(t, "[Anomaly] Volume spike: reddit", inc.Title)
	assert.ElementsMatch(t, []string{"sig_a", "sig_b"}, inc.RelatedSignalIDs)
	assert.NotEmpty(t, inc.RootCauseHypothesis)
	assert.NotEmpty(t, inc.RecommendedActions)
	assert.Nil(t, inc.EndTime)
}

func TestCreateFromAnomaly_ConcurrentCallersDedup(t *testing.T) {
	ctx := context.Background()
	mgr, store, _ := setupManager(t)

	// A manual anomaly run racing the background cycle with the same event
	// must still land on a single incident.
	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := mgr.CreateFromAnomaly(ctx, testEvent("sig_a", "sig_b")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("CreateFromAnomaly: %v", err)
	}

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestCreateFromAnomaly_DedupByOverlap(t *testing.T) {
	ctx := context.Background()
	mgr, store, _ := setupManager(t)

	first, created, err := mgr.CreateFromAnomaly(ctx, testEvent("sig_a", "sig_b", "sig_c", "sig_d"))
	require.NoError(t, err)
	require.True(t, created)

	// Second event with a different title but 75% overlapping evidence.
	second := testEvent("sig_a", "sig_b", "sig_c", "sig_z")
	second.ID = "anom_2"
	second.Type = anomaly.TypeRiskSpike
	second.Severity = anomaly.SeverityCritical
	second.Title = "Risk score surge detected"

	attached, created, err := mgr.CreateFromAnomaly(ctx, second)
	require.NoError(t, err)
	assert.False(t, created, "overlapping evidence must attach, not duplicate")
	assert.Equal(t, first.ID, attached.ID)
	assert.Equal(t, SeverityCritical, attached.Severity, "severity escalates to max")
	assert.Contains(t, attached.RelatedSignalIDs, "sig_z")

	all, err := store.List(ctx, ListQuery{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, all, 1, "incident count stays at 1")
}

func TestCreateFromAnomaly_LowOverlapCreatesNew(t *testing.T) {
	ctx := context.Background()
	mgr, store, _ := setupManager(t)

	_, _, err := mgr.CreateFromAnomaly(ctx, testEvent("sig_a", "sig_b", "sig_c", "sig_d"))
	require.NoError(t, err)

	disjoint := testEvent("sig_w", "sig_x", "sig_y", "sig_a") // 25% overlap
	disjoint.Title = "Negative sentiment surge"
	disjoint.Type = anomaly.TypeSentimentDrift

	_, created, err := mgr.CreateFromAnomaly(ctx, disjoint)
	require.NoError(t, err)
	assert.True(t, created)

	all, err := store.List(ctx, ListQuery{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCreateFromAnomaly_SameTitleRefreshes(t *testing.T) {
	ctx := context.Background()
	mgr, store, _ := setupManager(t)

	_, _, err := mgr.CreateFromAnomaly(ctx, testEvent("sig_a"))
	require.NoError(t, err)

	// Same anomaly fires next cycle with fresh evidence.
	repeat := testEvent("sig_e")
	_, created, err := mgr.CreateFromAnomaly(ctx, repeat)
	require.NoError(t, err)
	assert.False(t, created)

	all, err := store.List(ctx, ListQuery{Limit: 100})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.ElementsMatch(t, []string{"sig_a", "sig_e"}, all[0].RelatedSignalIDs)
}

func TestCreateFromForecast(t *testing.T) {
	ctx := context.Background()
	mgr, _, signals := setupManager(t)

	require.NoError(t, signals.Create(ctx, &signal.Signal{
		ID:        "sig_m1",
		Source:    signal.SourceFinancial,
		Content:   "mrr reading",
		Timestamp: managerNow.Add(-time.Hour),
		Metric:    &signal.MetricSample{Name: "mrr", Value: 900},
	}))

	concern := &forecast.Concern{
		Metric:      "mrr",
		Title:       "[Forecast] mrr declining trend risk",
		Direction:   "declining",
		Severity:    "critical",
		Description: "Forecast indicates downward pressure for mrr.",
		Hypothesis:  "Trend shift in mrr.",
		Actions:     "1. Validate forecast.",
		Confidence:  0.9,
		ChangeRatio: -0.25,
		GeneratedAt: managerNow,
	}

	inc, created, err := mgr.CreateFromForecast(ctx, concern)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, SeverityCritical, inc.Severity)
	assert.Equal(t, []string{"sig_m1"}, inc.RelatedSignalIDs)

	// Same concern next cycle refreshes rather than duplicating.
	_, created, err = mgr.CreateFromForecast(ctx, concern)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestTransition_Persists(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := setupManager(t)
	inc, _, err := mgr.CreateFromAnomaly(ctx, testEvent("sig_a"))
	require.NoError(t, err)

	updated, err := mgr.Transition(ctx, inc.ID, ActionAcknowledge)
	require.NoError(t, err)
	assert.Equal(t, StatusInvestigating, updated.Status)

	stored, err := mgr.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInvestigating, stored.Status)
	require.Len(t, stored.History, 1)

	_, err = mgr.Transition(ctx, inc.ID, ActionAcknowledge)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = mgr.Transition(ctx, "inc_missing", ActionResolve)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotes_AppendOnlyInAnyState(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := setupManager(t)
	inc, _, err := mgr.CreateFromAnomaly(ctx, testEvent("sig_a"))
	require.NoError(t, err)

	_, err = mgr.AddNote(ctx, inc.ID, "looking into it", "oncall")
	require.NoError(t, err)

	_, err = mgr.Transition(ctx, inc.ID, ActionResolve)
	require.NoError(t, err)

	// Notes remain legal after resolution.
	_, err = mgr.AddNote(ctx, inc.ID, "root cause was a deploy", "oncall")
	require.NoError(t, err)

	notes, err := mgr.ListNotes(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "looking into it", notes[0].Content)

	_, err = mgr.AddNote(ctx, "inc_missing", "x", "y")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTimeline_MergedAndOrdered(t *testing.T) {
	ctx := context.Background()
	mgr, _, signals := setupManager(t)

	require.NoError(t, signals.Create(ctx, &signal.Signal{
		ID:        "sig_a",
		Source:    signal.SourceReddit,
		Content:   "angry post",
		Timestamp: managerNow.Add(-2 * time.Hour),
	}))

	inc, _, err := mgr.CreateFromAnomaly(ctx, testEvent("sig_a"))
	require.NoError(t, err)
	_, err = mgr.Transition(ctx, inc.ID, ActionAcknowledge)
	require.NoError(t, err)
	_, err = mgr.AddNote(ctx, inc.ID, "triaged", "oncall")
	require.NoError(t, err)

	entries, err := mgr.Timeline(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4) // signal, created, transition, note

	assert.Equal(t, "signal", entries[0].Kind, "older signal arrival comes first")
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].At.Before(entries[i-1].At), "timeline must be time-ordered")
	}
}

func TestReconcileStale(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := setupManager(t)

	old := testEvent("sig_a")
	old.DetectedAt = managerNow.Add(-2 * time.Hour) // past the 90m grace
	staleInc, _, err := mgr.CreateFromAnomaly(ctx, old)
	require.NoError(t, err)

	fresh := testEvent("sig_q")
	fresh.Title = "Negative sentiment surge"
	fresh.DetectedAt = managerNow.Add(-2 * time.Hour)
	activeInc, _, err := mgr.CreateFromAnomaly(ctx, fresh)
	require.NoError(t, err)

	resolved, err := mgr.ReconcileStale(ctx,
		map[string]bool{activeInc.Title: true}, // still firing
		map[string]bool{})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, staleInc.ID, resolved[0].ID)
	assert.Equal(t, StatusResolved, resolved[0].Status)
	require.NotNil(t, resolved[0].EndTime)

	still, err := mgr.Get(ctx, activeInc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, still.Status)

	// Auto-resolve leaves a system note.
	notes, err := mgr.ListNotes(ctx, staleInc.ID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "system", notes[0].Author)
}

func TestReconcileStale_WithinGraceUntouched(t *testing.T) {
	ctx := context.Background()
	mgr, _, _ := setupManager(t)

	recent := testEvent("sig_a")
	recent.DetectedAt = managerNow.Add(-30 * time.Minute)
	inc, _, err := mgr.CreateFromAnomaly(ctx, recent)
	require.NoError(t, err)

	resolved, err := mgr.ReconcileStale(ctx, map[string]bool{}, map[string]bool{})
	require.NoError(t, err)
	assert.Empty(t, resolved)

	got, err := mgr.Get(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}
