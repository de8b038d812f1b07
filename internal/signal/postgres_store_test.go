package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riskpulse/riskpulse/internal/testutil"
)

func TestPostgresStore_RoundTrip(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	neg := -0.7
	sig := &Signal{
		ID:             "sig_pg1",
		Source:         SourceZendesk,
		SourceID:       "ticket-42",
		Title:          "Checkout errors",
		Content:        "Customers report failed payments at checkout",
		Timestamp:      base,
		SentimentScore: &neg,
		SentimentLabel: SentimentNegative,
		Urgency:        "high",
		Entities:       []Entity{{Text: "checkout", Label: "FEATURE"}},
		Summary:        "Payment failures at checkout",
		Embedding:      []float64{0.1, 0.2, 0.3},
		Components:     &ComponentInputs{TicketVolume: 0.8},
		CreatedAt:      base,
	}
	require.NoError(t, store.Create(ctx, sig))

	got, err := store.Get(ctx, "sig_pg1")
	require.NoError(t, err)
	assert.Equal(t, sig.ID, got.ID)
	assert.Equal(t, sig.Source, got.Source)
	assert.Equal(t, sig.Title, got.Title)
	assert.Equal(t, sig.Entities, got.Entities)
	assert.Equal(t, sig.Embedding, got.Embedding)
	require.NotNil(t, got.SentimentScore)
	assert.InDelta(t, -0.7, *got.SentimentScore, 1e-9)
	require.NotNil(t, got.Components)
	assert.InDelta(t, 0.8, got.Components.TicketVolume, 1e-9)
	assert.False(t, got.Scored())

	_, err = store.Get(ctx, "sig_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_UpdateRisk(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Create(ctx, &Signal{
		ID: "sig_pg2", Source: SourceReddit, Content: "x", Timestamp: base, CreatedAt: base,
	}))

	require.NoError(t, store.UpdateRisk(ctx, "sig_pg2", 0.42, "moderate"))

	got, err := store.Get(ctx, "sig_pg2")
	require.NoError(t, err)
	require.NotNil(t, got.RiskScore)
	assert.InDelta(t, 0.42, *got.RiskScore, 1e-9)
	assert.Equal(t, "moderate", got.RiskTier)
	assert.True(t, got.Scored())

	assert.ErrorIs(t, store.UpdateRisk(ctx, "sig_missing", 0.1, "low"), ErrNotFound)
}

func TestPostgresStore_WindowsAndUnscored(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sig := &Signal{
			ID:        "sig_w" + string(rune('a'+i)),
			Source:    SourceReddit,
			Content:   "window",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			CreatedAt: base,
		}
		require.NoError(t, store.Create(ctx, sig))
	}
	require.NoError(t, store.UpdateRisk(ctx, "sig_wa", 0.2, "low"))

	// [base+1h, base+4h) -> sig_wb, sig_wc, sig_wd ascending
	window, err := store.ListWindow(ctx, base.Add(time.Hour), base.Add(4*time.Hour), 100)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, "sig_wb", window[0].ID)
	assert.Equal(t, "sig_wd", window[2].ID)

	// Cap keeps the most recent entries, still ascending.
	capped, err := store.ListWindow(ctx, base, base.Add(5*time.Hour), 2)
	require.NoError(t, err)
	require.Len(t, capped, 2)
	assert.Equal(t, "sig_wd", capped[0].ID)
	assert.Equal(t, "sig_we", capped[1].ID)

	unscored, err := store.ListUnscored(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unscored, 4)
	assert.Equal(t, "sig_wb", unscored[0].ID, "oldest unscored first")

	counts, err := store.CountBySource(ctx, base, base.Add(5*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, counts[SourceReddit])
}

func TestPostgresStore_ListPagination(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Create(ctx, &Signal{
			ID:        "sig_p" + string(rune('a'+i)),
			Source:    SourceNews,
			Content:   "page",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			CreatedAt: base,
		}))
	}

	// Limit 2 fetches limit+1 rows, newest first.
	page, err := store.List(ctx, ListQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "sig_pd", page[0].ID)
	assert.Equal(t, "sig_pc", page[1].ID)

	filtered, err := store.List(ctx, ListQuery{Source: "zendesk", Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, filtered)
}

func TestPostgresStore_MetricSeries(t *testing.T) {
	db := testutil.StartPostgres(t)
	ctx := context.Background()

	store := NewPostgresStore(db)
	require.NoError(t, store.Migrate(ctx))

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(ctx, &Signal{
			ID:        "sig_m" + string(rune('a'+i)),
			Source:    SourceFinancial,
			Content:   "mrr reading",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Metric:    &MetricSample{Name: "mrr", Value: 1000 - float64(i)*10},
			CreatedAt: base,
		}))
	}
	require.NoError(t, store.Create(ctx, &Signal{
		ID: "sig_nometric", Source: SourceReddit, Content: "x", Timestamp: base, CreatedAt: base,
	}))

	samples, err := store.ListMetricSamples(ctx, "mrr", base, 100)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.InDelta(t, 1000, samples[0].Value, 1e-9)
	assert.InDelta(t, 980, samples[2].Value, 1e-9)
	assert.True(t, samples[0].Timestamp.Before(samples[1].Timestamp))

	names, err := store.ListMetricNames(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, []string{"mrr"}, names)
}
