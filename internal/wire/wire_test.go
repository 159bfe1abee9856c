package wire

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-gen-api/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	routingFile := filepath.Join(t.TempDir(), "routing.json")
	require.NoError(t, os.WriteFile(routingFile, []byte(`{"main":{"other":{"generation":"openai/gpt-4o"}},"fallback":{}}`), 0o644))

	cfg := &config.Config{}
	cfg.App.Name = "paper-gen-api"
	cfg.App.Version = "test"
	cfg.Storage.Driver = config.StorageDriverMemory
	cfg.Routing.File = routingFile
	cfg.Pipeline.DefaultSteps = []string{"structure", "generation"}
	cfg.Pipeline.WorkerConcurrency = 1
	cfg.Pipeline.QueueSize = 8
	cfg.Pipeline.InlineWorker = true
	cfg.Events.SubscriberBuffer = 8
	return cfg
}

func TestInitializeApp_MemoryInline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, cleanup, err := InitializeApp(ctx, testConfig(t))
	require.NoError(t, err)
	defer cleanup()

	engine := app.Router.Engine()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	body := bytes.NewBufferString(`{"user_id":"u1","module":"essay","input":{"topic":"rivers"}}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/generations", body)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "DRAFT")

	// 未配置管理令牌时管理接口关闭
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/routing", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInitializeApp_BadRoutingFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Routing.File, []byte("{not json"), 0o644))

	_, _, err := InitializeApp(context.Background(), cfg)
	assert.Error(t, err)
}

func TestInitializeWorker_RequiresSharedStorage(t *testing.T) {
	_, _, err := InitializeWorker(context.Background(), testConfig(t), "w1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
}

func TestProvideDataLayer_Memory(t *testing.T) {
	data, cleanup, err := ProvideDataLayer(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, data.Tx)
	assert.NotNil(t, data.Generations)
	assert.NotNil(t, data.Jobs)
	assert.NotNil(t, data.Costs)
	assert.Nil(t, data.PgClient)
}

func TestCleanups_RunInReverse(t *testing.T) {
	var order []int
	var cl cleanups
	cl.add(func() { order = append(order, 1) })
	cl.add(func() { order = append(order, 2) })
	cl.run()
	assert.Equal(t, []int{2, 1}, order)
}
