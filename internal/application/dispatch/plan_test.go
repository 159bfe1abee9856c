package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"paper-gen-api/internal/config"
)

func TestPlan_Steps(t *testing.T) {
	p := NewPlan(config.PipelineConfig{
		DefaultSteps: []string{"structure", "sources", "generation", "refine"},
		ModuleSteps:  map[string][]string{"Task": {"generation", "refine"}},
	})

	assert.Equal(t, []string{"generation", "refine"}, p.Steps("task"))
	assert.Equal(t, []string{"generation", "refine"}, p.Steps(" TASK "))
	assert.Equal(t, []string{"structure", "sources", "generation", "refine"}, p.Steps("essay"))

	steps := p.Steps("essay")
	steps[0] = "mutated"
	assert.Equal(t, "structure", p.Steps("essay")[0])
}

func configWithSteps(steps []string) config.PipelineConfig {
	return config.PipelineConfig{DefaultSteps: steps}
}
