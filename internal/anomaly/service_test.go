package anomaly

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpulse/riskpulse/internal/signal"
)

func seedVolumeSpike(t *testing.T, signals signal.Store, now time.Time) {
	t.Helper()
	ctx := context.Background()
	n := 0
	// Steady baseline: 10 reddit signals per hour for 23 hours, seeded
	// strictly before the current-hour boundary so the half-open
	// [from, to) current window never picks up the h=1 batch.
	for h := 1; h <= 23; h++ {
		for i := 0; i < 10; i++ {
			n++
			require.NoError(t, signals.Create(ctx, &signal.Signal{
				ID:        fmt.Sprintf("sig_b%d", n),
				Source:    signal.SourceReddit,
				Content:   "steady chatter",
				Timestamp: now.Add(-time.Duration(h)*time.Hour - time.Minute),
			}))
		}
	}
	// Spike: 50 in the last hour.
	for i := 0; i < 50; i++ {
		require.NoError(t, signals.Create(ctx, &signal.Signal{
			ID:        fmt.Sprintf("sig_c%d", i),
			Source:    signal.SourceReddit,
			Content:   "everything is on fire",
			Timestamp: now.Add(-30 * time.Minute),
		}))
	}
}

func TestRun_PersistsDetectedEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	signals := signal.NewMemoryStore()
	store := NewMemoryStore()
	seedVolumeSpike(t, signals, now)

	svc := NewService(signals, store, DefaultThresholds()).
		WithClock(func() time.Time { return now })

	events, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TypeVolumeSpike, events[0].Type)

	recent, err := svc.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, events[0].ID, recent[0].ID)
}

func TestRun_VolumeCountsUnaffectedByWindowCap(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	signals := signal.NewMemoryStore()
	seedVolumeSpike(t, signals, now)

	// Window slices capped well below the real arrival counts.
	svc := NewService(signals, NewMemoryStore(), DefaultThresholds()).
		WithWindows(time.Hour, 24*time.Hour, 20).
		WithClock(func() time.Time { return now })

	events, err := svc.Run(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, TypeVolumeSpike, events[0].Type)
	// All 50 current-hour arrivals are counted, not just the 20 in the slice.
	assert.Equal(t, float64(50), events[0].MetricValue)
	assert.Equal(t, SeverityCritical, events[0].Severity)
}

func TestRun_QuietWindowNoEvents(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	signals := signal.NewMemoryStore()
	// Uniform rate including the current hour.
	n := 0
	for h := 0; h <= 23; h++ {
		for i := 0; i < 10; i++ {
			n++
			require.NoError(t, signals.Create(ctx, &signal.Signal{
				ID:        fmt.Sprintf("sig_%d", n),
				Source:    signal.SourceZendesk,
				Content:   "routine ticket",
				Timestamp: now.Add(-time.Duration(h)*time.Hour + 30*time.Minute - time.Hour),
			}))
		}
	}

	svc := NewService(signals, NewMemoryStore(), DefaultThresholds()).
		WithClock(func() time.Time { return now })

	events, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestStatus_Breakdowns(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()

	for i, e := range []*Event{
		{Type: TypeVolumeSpike, Severity: SeverityHigh},
		{Type: TypeVolumeSpike, Severity: SeverityCritical},
		{Type: TypeSentimentDrift, Severity: SeverityModerate},
	} {
		e.ID = fmt.Sprintf("anom_%d", i)
		e.DetectedAt = now.Add(-time.Duration(i) * time.Hour)
		require.NoError(t, store.Create(ctx, e))
	}
	// Old event outside the 24h status window.
	require.NoError(t, store.Create(ctx, &Event{
		ID: "anom_old", Type: TypeRiskSpike, Severity: SeverityHigh,
		DetectedAt: now.Add(-30 * time.Hour),
	}))

	svc := NewService(signal.NewMemoryStore(), store, DefaultThresholds()).
		WithClock(func() time.Time { return now })

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, 2, status.TypeBreakdown[TypeVolumeSpike])
	assert.Equal(t, 1, status.TypeBreakdown[TypeSentimentDrift])
	assert.Equal(t, 1, status.SeverityBreakdown[SeverityCritical])
	require.NotNil(t, status.LastDetectedAt)
	assert.Equal(t, now, *status.LastDetectedAt)
}
