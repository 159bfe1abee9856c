package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
)

func TestGenerationRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewGenerationRepository()
	g := entity.NewGeneration("g-1", "u-1", "essay", nil, []string{"structure"})
	require.NoError(t, repo.Create(ctx, g))

	g.Status = entity.GenerationStatusRunning
	got, err := repo.GetByID(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusDraft, got.Status)

	got.Status = entity.GenerationStatusFailed
	again, err := repo.GetForUpdate(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, entity.GenerationStatusDraft, again.Status)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.Error(t, repo.Create(ctx, g))
	require.Error(t, repo.Update(ctx, entity.NewGeneration("g-2", "u-1", "essay", nil, nil)))
}

func TestGenerationRepository_ListByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewGenerationRepository()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		g := entity.NewGeneration(id, "u-1", "essay", nil, []string{"structure"})
		g.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, g))
	}
	require.NoError(t, repo.Create(ctx, entity.NewGeneration("other", "u-2", "essay", nil, nil)))

	page, err := repo.ListByUser(ctx, "u-1", repository.NewPagination(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].ID)
	assert.Equal(t, "b", page.Items[1].ID)
}

func TestJobRepository_ListByGenerationOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository()
	g := entity.NewGeneration("g-1", "u-1", "essay", nil, []string{"structure", "refine"})

	first := entity.NewJob("j-1", g)
	g.StepIndex = 1
	second := entity.NewJob("j-2", g)

	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, first))

	jobs, err := repo.ListByGeneration(ctx, "g-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j-1", jobs[0].ID)
	assert.Equal(t, "refine", jobs[1].Step)

	require.NoError(t, repo.Delete(ctx, "j-1"))
	got, err := repo.GetByID(ctx, "j-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
