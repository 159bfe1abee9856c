package cost

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_GenerationTotals(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	agg := NewAggregator(l)
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "u-1", "openai", 1000, 0.10, base)))
	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "u-1", "anthropic", 500, 0.05, base.Add(time.Minute))))

	total, err := agg.TotalCostForGeneration(ctx, "g-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.15, total, 1e-12)

	tokens, err := agg.TotalTokensForGeneration(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1500), tokens)

	latency, err := agg.TotalLatencyForGeneration(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), latency)

	avg, err := agg.AverageCostPerTokenForGeneration(ctx, "g-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, avg, 1e-12)

	s, err := agg.SummarizeGeneration(ctx, "g-1")
	require.NoError(t, err)
	require.Len(t, s.ByProvider, 2)
	assert.Equal(t, "anthropic", s.ByProvider[0].Provider)
	assert.Equal(t, 2, s.Records)
}

func TestAggregator_AddingRecordChangesOnlyMatchingTotal(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	agg := NewAggregator(l)
	at := time.Now().UTC()

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "", "openai", 10, 0.25, at)))
	before, err := agg.TotalCostForGeneration(ctx, "g-1")
	require.NoError(t, err)

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-2", "", "openai", 10, 0.5, at.Add(time.Second))))
	unchanged, err := agg.TotalCostForGeneration(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, before, unchanged)

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "", "openai", 10, 0.5, at.Add(2*time.Second))))
	after, err := agg.TotalCostForGeneration(ctx, "g-1")
	require.NoError(t, err)
	assert.InDelta(t, before+0.5, after, 1e-12)
}

func TestAggregator_ZeroTokensGuard(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	agg := NewAggregator(l)

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "u-1", "local", 0, 0.3, time.Now().UTC())))

	avg, err := agg.AverageCostPerTokenForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Zero(t, avg)

	empty, err := agg.AverageCostPerTokenForGeneration(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestAggregator_PeriodBoundsInclusive(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	agg := NewAggregator(l)
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC)

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "u-1", "openai", 1, 1.0, from)))
	require.NoError(t, l.Add(ctx, mustRecord(t, "g-2", "u-1", "openai", 1, 2.0, to)))
	require.NoError(t, l.Add(ctx, mustRecord(t, "g-3", "u-1", "openai", 1, 4.0, to.Add(time.Second))))
	require.NoError(t, l.Add(ctx, mustRecord(t, "g-4", "u-1", "openai", 1, 8.0, from.Add(-time.Second))))

	total, err := agg.TotalCostForPeriod(ctx, from, to)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, total, 1e-12)

	tokens, err := agg.TotalTokensForPeriod(ctx, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tokens)

	userTotal, err := agg.TotalCostForUser(ctx, "u-1")
	require.NoError(t, err)
	assert.InDelta(t, 15.0, userTotal, 1e-12)
}
