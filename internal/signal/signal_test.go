package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpulse/riskpulse/internal/pagination"
)

func encodeCursorFor(s *Signal) string {
	return pagination.Encode(s.Timestamp, s.ID)
}

func newTestSignal(source Source, ts time.Time) *Signal {
	return &Signal{
		Source:    source,
		Content:   "payment API returning 500s",
		Timestamp: ts,
	}
}

func TestIngest_AssignsIDAndDefaults(t *testing.T) {
	svc := NewService(NewMemoryStore())

	sig, err := svc.Ingest(context.Background(), &Signal{
		Source:  SourceZendesk,
		Content: "checkout is broken",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, sig.ID)
	assert.Contains(t, sig.ID, "sig_")
	assert.False(t, sig.Timestamp.IsZero())
	assert.False(t, sig.CreatedAt.IsZero())
	assert.Nil(t, sig.RiskScore)
	assert.Empty(t, sig.RiskTier)
}

func TestIngest_RejectsUnknownSource(t *testing.T) {
	svc := NewService(NewMemoryStore())

	_, err := svc.Ingest(context.Background(), &Signal{
		Source:  Source("carrier_pigeon"),
		Content: "coo",
	})
	assert.Error(t, err)
}

func TestIngest_RejectsEmptyContent(t *testing.T) {
	svc := NewService(NewMemoryStore())

	_, err := svc.Ingest(context.Background(), &Signal{Source: SourceReddit})
	assert.Error(t, err)
}

func TestIngest_RejectsOutOfRangeAnnotations(t *testing.T) {
	svc := NewService(NewMemoryStore())

	bad := 1.5
	_, err := svc.Ingest(context.Background(), &Signal{
		Source:         SourceReddit,
		Content:        "x",
		SentimentScore: &bad,
	})
	assert.Error(t, err)

	_, err = svc.Ingest(context.Background(), &Signal{
		Source:     SourceReddit,
		Content:    "x",
		Components: &ComponentInputs{TicketVolume: -0.1},
	})
	assert.Error(t, err)
}

func TestIngest_IgnoresClientRiskFields(t *testing.T) {
	svc := NewService(NewMemoryStore())

	score := 0.99
	sig, err := svc.Ingest(context.Background(), &Signal{
		Source:    SourceNews,
		Content:   "x",
		RiskScore: &score,
		RiskTier:  "critical",
	})
	require.NoError(t, err)
	assert.Nil(t, sig.RiskScore)
	assert.Empty(t, sig.RiskTier)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "sig_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ListOrderAndPagination(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := svc.Ingest(ctx, newTestSignal(SourceReddit, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	// First page of 2 fetches 3 (limit+1).
	page, err := svc.List(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.True(t, page[0].Timestamp.After(page[1].Timestamp), "newest first")

	// Resume from the second item with a cursor: must not repeat.
	cursorItem := page[1]
	next, err := svc.List(ctx, ListQuery{
		Limit:  10,
		Cursor: encodeCursorFor(cursorItem),
	})
	require.NoError(t, err)
	require.Len(t, next, 3)
	for _, s := range next {
		assert.True(t, s.Timestamp.Before(cursorItem.Timestamp))
	}
}

func TestMemoryStore_ListWindowBounds(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, ts := range []time.Time{
		base.Add(-time.Hour),  // before window
		base,                  // inclusive lower bound
		base.Add(time.Minute), // inside
		base.Add(time.Hour),   // exclusive upper bound
	} {
		sig := newTestSignal(SourceSystem, ts)
		sig.ID = string(rune('a' + i))
		require.NoError(t, store.Create(ctx, sig))
	}

	got, err := store.ListWindow(ctx, base, base.Add(time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, base, got[0].Timestamp)
	assert.Equal(t, base.Add(time.Minute), got[1].Timestamp)
}

func TestMemoryStore_ListWindowCapKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		sig := newTestSignal(SourceSystem, base.Add(time.Duration(i)*time.Second))
		sig.ID = string(rune('a' + i))
		require.NoError(t, store.Create(ctx, sig))
	}

	got, err := store.ListWindow(ctx, base, base.Add(time.Minute), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, base.Add(7*time.Second), got[0].Timestamp)
	assert.Equal(t, base.Add(9*time.Second), got[2].Timestamp)
}

func TestMemoryStore_UpdateRiskAndUnscored(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore())

	a, err := svc.Ingest(ctx, newTestSignal(SourceReddit, time.Now().UTC()))
	require.NoError(t, err)
	b, err := svc.Ingest(ctx, newTestSignal(SourceNews, time.Now().UTC()))
	require.NoError(t, err)

	unscored, err := svc.Store().ListUnscored(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unscored, 2)

	require.NoError(t, svc.Store().UpdateRisk(ctx, a.ID, 0.62, "high"))

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.RiskScore)
	assert.InDelta(t, 0.62, *got.RiskScore, 1e-9)
	assert.Equal(t, "high", got.RiskTier)
	assert.True(t, got.Scored())

	unscored, err = svc.Store().ListUnscored(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unscored, 1)
	assert.Equal(t, b.ID, unscored[0].ID)

	assert.ErrorIs(t, svc.Store().UpdateRisk(ctx, "sig_missing", 0.1, "low"), ErrNotFound)
}

func TestMemoryStore_CountBySource(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		sig := newTestSignal(SourceReddit, base)
		sig.ID = string(rune('a' + i))
		require.NoError(t, store.Create(ctx, sig))
	}
	z := newTestSignal(SourceZendesk, base)
	z.ID = "z"
	require.NoError(t, store.Create(ctx, z))

	counts, err := store.CountBySource(ctx, base.Add(-time.Minute), base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, counts[SourceReddit])
	assert.Equal(t, 1, counts[SourceZendesk])
}

func TestMemoryStore_MetricSamples(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		sig := newTestSignal(SourceFinancial, base.Add(time.Duration(i)*time.Minute))
		sig.ID = string(rune('a' + i))
		sig.Metric = &MetricSample{Name: "daily_revenue", Value: float64(100 + i)}
		require.NoError(t, store.Create(ctx, sig))
	}
	other := newTestSignal(SourceSystem, base)
	other.ID = "o"
	other.Metric = &MetricSample{Name: "error_rate", Value: 0.02}
	require.NoError(t, store.Create(ctx, other))

	samples, err := store.ListMetricSamples(ctx, "daily_revenue", base, 100)
	require.NoError(t, err)
	require.Len(t, samples, 4)
	assert.Equal(t, 100.0, samples[0].Value)
	assert.Equal(t, 103.0, samples[3].Value)

	names, err := store.ListMetricNames(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily_revenue", "error_rate"}, names)
}
