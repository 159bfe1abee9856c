package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"paper-gen-api/internal/domain/entity"
)

func TestGenerationRow_RoundTrip(t *testing.T) {
	g := entity.NewGeneration("0b0c6a4e-0000-4000-8000-000000000001", "u-1", "essay",
		entity.Payload{"topic": "tides"}, []string{"structure", "sources", "generation"})
	g.Status = entity.GenerationStatusRunning
	g.StepIndex = 1
	g.ActiveJobID = "j-2"
	g.Version = 4
	g.UpdatedAt = g.CreatedAt.Add(time.Minute)

	row := toGenerationRow(g)
	assert.Equal(t, "generations", row.TableName())
	assert.Equal(t, []string{"structure", "sources", "generation"}, []string(row.Pipeline))

	back := row.toEntity()
	assert.Equal(t, g, back)
	assert.Equal(t, "sources", back.CurrentStep())
}
