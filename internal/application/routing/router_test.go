package routing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "paper-gen-api/pkg/errors"
)

func sampleConfig() *Config {
	return &Config{
		Main: Table{
			"essay": {"structure": "openai/gpt-4o", "generation": "anthropic/claude-3-5-sonnet"},
			"other": {"generation": "openai/gpt-4o"},
		},
		Fallback: Table{
			"text": {"generation": "openai/gpt-4o-mini"},
			"task": {"generation": "deepseek/deepseek-chat"},
		},
	}
}

type failingStore struct{ err error }

func (s failingStore) Load(context.Context) (*Config, error) { return nil, s.err }
func (s failingStore) Save(context.Context, *Config) error   { return s.err }

func TestRouter_GenericCategoryFallback(t *testing.T) {
	r := NewRouter(&Config{Main: Table{"other": {"generation": "openai/gpt-4o"}}}, nil, Options{})

	assert.Equal(t, "openai/gpt-4o", r.Select("generation", "unknown_category", false))
}

func TestRouter_Resolve(t *testing.T) {
	r := NewRouter(sampleConfig(), nil, Options{DefaultModel: "openai/main-default", DefaultFallbackModel: "openai/fb-default"})

	tests := []struct {
		name        string
		step        string
		category    string
		useFallback bool
		wantModel   string
		wantTier    Tier
	}{
		{"exact", "structure", "essay", false, "openai/gpt-4o", TierExact},
		{"exact wins over other", "generation", "essay", false, "anthropic/claude-3-5-sonnet", TierExact},
		{"generic", "generation", "report", false, "openai/gpt-4o", TierGeneric},
		{"main default", "refine", "report", false, "openai/main-default", TierDefault},
		{"fallback text bucket", "generation", "essay", true, "openai/gpt-4o-mini", TierFallback},
		{"fallback task bucket", "generation", "homework", true, "deepseek/deepseek-chat", TierFallback},
		{"fallback default", "refine", "essay", true, "openai/fb-default", TierFallbackDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(tt.step, tt.category, tt.useFallback)
			assert.Equal(t, tt.wantModel, res.Model)
			assert.Equal(t, tt.wantTier, res.Tier)
		})
	}
}

func TestRouter_BuiltinDefaults(t *testing.T) {
	r := NewRouter(nil, nil, Options{})
	assert.Equal(t, BuiltinDefaultModel, r.Select("generation", "essay", false))
	assert.Equal(t, BuiltinDefaultFallbackModel, r.Select("generation", "essay", true))
}

func TestFallbackBucket(t *testing.T) {
	for _, c := range []string{"task", "Tasks", "problem", "problems", "solution", "homework"} {
		assert.Equal(t, BucketTask, FallbackBucket(c), c)
	}
	for _, c := range []string{"essay", "coursework", "report", "", "other"} {
		assert.Equal(t, BucketText, FallbackBucket(c), c)
	}
}

func TestRouter_SnapshotIsIsolated(t *testing.T) {
	r := NewRouter(sampleConfig(), nil, Options{})

	snap := r.Snapshot()
	snap.Main["essay"]["structure"] = "mutated/model"

	assert.Equal(t, "openai/gpt-4o", r.Select("structure", "essay", false))
}

func TestRouter_ReplaceRejectsInvalid(t *testing.T) {
	r := NewRouter(sampleConfig(), nil, Options{})

	err := r.Replace(context.Background(), &Config{Main: Table{"essay": {"generation": "no-provider"}}})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeRoutingConfigInvalid))
	assert.Equal(t, "anthropic/claude-3-5-sonnet", r.Select("generation", "essay", false))
}

func TestRouter_ReplaceKeepsPreviousOnWriteFailure(t *testing.T) {
	r := NewRouter(sampleConfig(), failingStore{err: errors.New("disk full")}, Options{})

	err := r.Replace(context.Background(), &Config{Main: Table{"essay": {"generation": "openai/new"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, "anthropic/claude-3-5-sonnet", r.Select("generation", "essay", false))
}

func TestRouter_ReplacePersistsThenSwaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.json")
	store := NewFileStore(path)
	r := NewRouter(sampleConfig(), store, Options{})

	next := &Config{Main: Table{"essay": {"generation": "openai/new"}}}
	require.NoError(t, r.Replace(context.Background(), next))
	assert.Equal(t, "openai/new", r.Select("generation", "essay", false))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "openai/new", loaded.Main["essay"]["generation"])

	next.Main["essay"]["generation"] = "openai/changed-after"
	assert.Equal(t, "openai/new", r.Select("generation", "essay", false))
}

func TestRouter_ReloadKeepsPreviousOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"main":{"essay":{"generation":"openai/from-file"}}}`), 0o644))

	r := NewRouter(nil, NewFileStore(path), Options{})
	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, "openai/from-file", r.Select("generation", "essay", false))

	require.NoError(t, os.WriteFile(path, []byte(`{"main":`), 0o644))
	require.Error(t, r.Reload(context.Background()))
	assert.Equal(t, "openai/from-file", r.Select("generation", "essay", false))
}

func TestRouter_ConcurrentReadersDuringReplace(t *testing.T) {
	r := NewRouter(sampleConfig(), nil, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				m := r.Select("generation", "essay", false)
				assert.Contains(t, []string{"anthropic/claude-3-5-sonnet", "openai/a", "openai/b"}, m)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		model := "openai/a"
		if j%2 == 1 {
			model = "openai/b"
		}
		require.NoError(t, r.Replace(ctx, &Config{Main: Table{"essay": {"generation": model}}}))
	}
	wg.Wait()
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	cfg, err := NewFileStore(filepath.Join(t.TempDir(), "absent.json")).Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cfg.Main)
	assert.Empty(t, cfg.Fallback)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(filepath.Join(dir, "routing.json"))
	require.NoError(t, store.Save(context.Background(), sampleConfig()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "routing.json", entries[0].Name())
}

func TestWatcher_ReloadsOnExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routing.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), sampleConfig()))

	r := NewRouter(sampleConfig(), store, Options{})
	w, err := NewWatcher(r, path, 20*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte(`{"main":{"essay":{"generation":"openai/edited"}}}`), 0o644))

	assert.Eventually(t, func() bool {
		return r.Select("generation", "essay", false) == "openai/edited"
	}, 2*time.Second, 10*time.Millisecond)
}
