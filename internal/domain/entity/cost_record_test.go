package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCostRecord_RejectsNegativeFields(t *testing.T) {
	tests := []struct {
		name   string
		params CostRecordParams
	}{
		{"negative tokens", CostRecordParams{ProviderName: "openai", TokensUsed: -1}},
		{"negative latency", CostRecordParams{ProviderName: "openai", LatencyMs: -5}},
		{"negative cost", CostRecordParams{ProviderName: "openai", Cost: -0.01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewCostRecord(tt.params)
			require.ErrorIs(t, err, ErrInvalidCostRecord)
			assert.Nil(t, rec)
		})
	}
}

func TestNewCostRecord_DefaultsTimestampAndCopiesUser(t *testing.T) {
	user := "u-1"
	before := time.Now().UTC()

	rec, err := NewCostRecord(CostRecordParams{
		JobID:        "j-1",
		GenerationID: "g-1",
		UserID:       &user,
		ProviderName: "openai",
		TokensUsed:   1500,
		LatencyMs:    1200,
		Cost:         0.15,
	})
	require.NoError(t, err)

	assert.False(t, rec.RecordedAt.Before(before))
	assert.True(t, rec.BelongsToUser("u-1"))

	user = "mutated"
	assert.True(t, rec.BelongsToUser("u-1"))
	assert.False(t, rec.BelongsToUser("mutated"))
}

func TestNewCostRecord_ZeroValuesAllowed(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec, err := NewCostRecord(CostRecordParams{ProviderName: "local", RecordedAt: at})
	require.NoError(t, err)
	assert.Equal(t, at, rec.RecordedAt)
	assert.Zero(t, rec.TokensUsed)
	assert.Nil(t, rec.UserID)
	assert.False(t, rec.BelongsToUser(""))
}
