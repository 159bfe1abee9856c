package cost

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-gen-api/internal/domain/entity"
)

func fixedCollector(at time.Time) *Collector {
	c := NewCollector()
	c.now = func() time.Time { return at }
	c.newID = func() string { return "rec-1" }
	return c
}

func TestCollector_NestedMetrics(t *testing.T) {
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	user := "u-1"

	rec, err := fixedCollector(at).Collect(entity.JobResult{
		JobID:   "j-1",
		Success: true,
		OutputPayload: entity.Payload{
			"content": "text",
			"metrics": map[string]any{
				"provider_name": "openai",
				"tokens_used":   1500,
				"latency_ms":    1200,
				"cost":          0.15,
			},
		},
	}, "g-1", &user)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "rec-1", rec.ID)
	assert.Equal(t, "j-1", rec.JobID)
	assert.Equal(t, "g-1", rec.GenerationID)
	assert.Equal(t, "openai", rec.ProviderName)
	assert.Equal(t, int64(1500), rec.TokensUsed)
	assert.Equal(t, int64(1200), rec.LatencyMs)
	assert.InDelta(t, 0.15, rec.Cost, 1e-12)
	assert.Equal(t, at, rec.RecordedAt)
	assert.True(t, rec.BelongsToUser("u-1"))
}

func TestCollector_NoRecordCases(t *testing.T) {
	tests := []struct {
		name   string
		result entity.JobResult
	}{
		{
			name: "failed result ignores payload",
			result: entity.JobResult{Success: false, OutputPayload: entity.Payload{
				"metrics": map[string]any{"provider_name": "openai", "tokens_used": 10},
			}},
		},
		{name: "nil payload", result: entity.JobResult{Success: true}},
		{name: "empty payload", result: entity.JobResult{Success: true, OutputPayload: entity.Payload{}}},
		{
			name:   "top level without provider",
			result: entity.JobResult{Success: true, OutputPayload: entity.Payload{"tokens_used": 10, "cost": 1.0}},
		},
		{
			name: "nested metrics without provider",
			result: entity.JobResult{Success: true, OutputPayload: entity.Payload{
				"metrics":       map[string]any{"tokens_used": 10},
				"provider_name": "ignored-because-nested-wins",
			}},
		},
		{
			name: "blank provider",
			result: entity.JobResult{Success: true, OutputPayload: entity.Payload{
				"metrics": map[string]any{"provider_name": "  "},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewCollector().Collect(tt.result, "g-1", nil)
			require.NoError(t, err)
			assert.Nil(t, rec)
		})
	}
}

func TestCollector_TopLevelMetricsWithProvider(t *testing.T) {
	rec, err := NewCollector().Collect(entity.JobResult{
		JobID:         "j-2",
		Success:       true,
		OutputPayload: entity.Payload{"provider_name": "anthropic", "tokens_used": "42"},
	}, "g-1", nil)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "anthropic", rec.ProviderName)
	assert.Equal(t, int64(42), rec.TokensUsed)
	assert.Zero(t, rec.LatencyMs)
	assert.Zero(t, rec.Cost)
	assert.Nil(t, rec.UserID)
	assert.False(t, rec.RecordedAt.IsZero())
}

func TestCollector_ZeroFillsMalformedValues(t *testing.T) {
	var payload entity.Payload
	require.NoError(t, json.Unmarshal([]byte(`{
		"metrics": {"provider_name": "openai", "tokens_used": "lots", "latency_ms": null, "cost": {"usd": 1}}
	}`), &payload))

	rec, err := NewCollector().Collect(entity.JobResult{Success: true, OutputPayload: payload}, "g-1", nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.TokensUsed)
	assert.Zero(t, rec.LatencyMs)
	assert.Zero(t, rec.Cost)
}

func TestCollector_ZeroFillsOutOfRangeIntegers(t *testing.T) {
	var payload entity.Payload
	require.NoError(t, json.Unmarshal([]byte(`{
		"metrics": {"provider_name": "openai", "tokens_used": 1e20, "latency_ms": -1e30, "cost": 0.2}
	}`), &payload))

	rec, err := NewCollector().Collect(entity.JobResult{Success: true, OutputPayload: payload}, "g-1", nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.TokensUsed)
	assert.Zero(t, rec.LatencyMs)
	assert.InDelta(t, 0.2, rec.Cost, 1e-9)
}

func TestCollector_NegativeValuesFailValidation(t *testing.T) {
	rec, err := NewCollector().Collect(entity.JobResult{
		Success: true,
		OutputPayload: entity.Payload{
			"metrics": map[string]any{"provider_name": "openai", "cost": -1.0},
		},
	}, "g-1", nil)
	require.ErrorIs(t, err, entity.ErrInvalidCostRecord)
	assert.Nil(t, rec)
}
