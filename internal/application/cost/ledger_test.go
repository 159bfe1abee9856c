package cost

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
)

func mustRecord(t *testing.T, genID, userID, provider string, tokens int64, cost float64, at time.Time) *entity.CostRecord {
	t.Helper()
	var uid *string
	if userID != "" {
		uid = &userID
	}
	rec, err := entity.NewCostRecord(entity.CostRecordParams{
		ID:           fmt.Sprintf("%s-%s-%d", genID, provider, at.UnixNano()),
		JobID:        "job-" + genID,
		GenerationID: genID,
		UserID:       uid,
		ProviderName: provider,
		TokensUsed:   tokens,
		LatencyMs:    100,
		Cost:         cost,
		RecordedAt:   at,
	})
	require.NoError(t, err)
	return rec
}

func TestLedger_ListReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "u-1", "openai", 10, 0.1, base)))

	snap, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, snap, 1)

	snap[0].Cost = 999
	*snap[0].UserID = "hijacked"

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-2", "u-1", "openai", 10, 0.1, base.Add(time.Minute))))
	assert.Len(t, snap, 1)

	again, err := l.List(ctx)
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.InDelta(t, 0.1, again[0].Cost, 1e-12)
	assert.Equal(t, "u-1", *again[0].UserID)
}

func TestLedger_FilterIsConjunctive(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "u-1", "openai", 10, 0.1, base)))
	require.NoError(t, l.Add(ctx, mustRecord(t, "g-1", "u-2", "openai", 10, 0.1, base.Add(time.Hour))))
	require.NoError(t, l.Add(ctx, mustRecord(t, "g-2", "u-1", "openai", 10, 0.1, base.Add(2*time.Hour))))

	got, err := l.Filter(ctx, repository.CostFilter{GenerationID: "g-1", UserID: "u-1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	to := base.Add(time.Hour)
	got, err = l.Filter(ctx, repository.CostFilter{UserID: "u-1", To: &to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "g-1", got[0].GenerationID)
}

func TestLedger_ConcurrentAdds(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	at := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, _ := entity.NewCostRecord(entity.CostRecordParams{
				ID:           fmt.Sprintf("r-%d", i),
				GenerationID: "g-1",
				ProviderName: "openai",
				TokensUsed:   1,
				RecordedAt:   at,
			})
			assert.NoError(t, l.Add(ctx, rec))
			_, err := l.List(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, l.Len())
}
