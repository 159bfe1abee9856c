package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-gen-api/internal/application/cost"
	"paper-gen-api/internal/application/dispatch"
	"paper-gen-api/internal/application/events"
	"paper-gen-api/internal/application/lifecycle"
	"paper-gen-api/internal/application/routing"
	"paper-gen-api/internal/config"
	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/infrastructure/persistence/memory"
	"paper-gen-api/internal/interfaces/http/dto"
	"paper-gen-api/internal/interfaces/http/handler"
	"paper-gen-api/pkg/memo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type queueDispatcher struct {
	mu   sync.Mutex
	jobs []*entity.Job
}

func (d *queueDispatcher) Enqueue(_ context.Context, job *entity.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *job
	d.jobs = append(d.jobs, &cp)
	return nil
}

func (d *queueDispatcher) Abandon(context.Context, string) {}

func (d *queueDispatcher) last() *entity.Job {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.jobs[len(d.jobs)-1]
}

type apiFixture struct {
	engine      *gin.Engine
	svc         *lifecycle.Service
	ledger      *cost.Ledger
	dispatcher  *queueDispatcher
	routingFile string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Name = "paper-gen-api"
	cfg.Security.AdminToken = "secret"
	cfg.Pipeline.DefaultSteps = []string{"structure", "generation"}

	broker := events.NewBroker(16)
	t.Cleanup(broker.Close)

	ledger := cost.NewLedger()
	d := &queueDispatcher{}
	svc := lifecycle.NewService(lifecycle.Deps{
		Tx:          memory.NewTransactor(),
		Generations: memory.NewGenerationRepository(),
		Jobs:        memory.NewJobRepository(),
		Costs:       ledger,
		Collector:   cost.NewCollector(),
		Dispatcher:  d,
		Publisher:   broker,
		Planner:     dispatch.NewPlan(cfg.Pipeline),
	})

	routingFile := filepath.Join(t.TempDir(), "routing.json")
	rt := routing.NewRouter(&routing.Config{}, routing.NewFileStore(routingFile), routing.Options{})

	r := New(cfg, Handlers{
		Health:     handler.NewHealthHandler("test", nil),
		Generation: handler.NewGenerationHandler(svc),
		Event:      handler.NewEventHandler(broker, svc, time.Second),
		Cost:       handler.NewCostHandler(svc, cost.NewAggregator(ledger), memo.NewLocal(), time.Minute),
		Routing:    handler.NewRoutingHandler(rt),
	}, nil)

	return &apiFixture{engine: r.Engine(), svc: svc, ledger: ledger, dispatcher: d, routingFile: routingFile}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp dto.Response[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Data
}

func (f *apiFixture) create(t *testing.T) dto.GenerationResponse {
	t.Helper()
	w := f.do(t, http.MethodPost, "/v1/generations", map[string]any{
		"user_id": "u-1",
		"module":  "essay",
		"input":   map[string]any{"topic": "coral reefs"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[dto.GenerationResponse](t, w)
}

func successPayload(cost float64) entity.Payload {
	return entity.Payload{
		"content": "ok",
		"metrics": map[string]any{
			"provider_name": "openai",
			"tokens_used":   1000,
			"latency_ms":    800,
			"cost":          cost,
		},
	}
}

func TestAPI_GenerationLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	g := f.create(t)
	assert.Equal(t, entity.GenerationStatusDraft, g.Status)
	assert.Equal(t, []string{"structure", "generation"}, g.Pipeline)

	w := f.do(t, http.MethodGet, "/v1/generations/"+g.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, g.ID, decode[dto.GenerationResponse](t, w).ID)

	w = f.do(t, http.MethodPost, "/v1/generations/"+g.ID+"/actions", map[string]string{"action": "next"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	running := decode[dto.GenerationResponse](t, w)
	assert.Equal(t, entity.GenerationStatusRunning, running.Status)
	assert.Equal(t, "structure", running.CurrentStep)

	w = f.do(t, http.MethodPost, "/v1/generations/"+g.ID+"/actions", map[string]string{"action": "next"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `cannot apply action \"next\" to generation in status RUNNING`)

	w = f.do(t, http.MethodPost, "/v1/generations/"+g.ID+"/actions", map[string]string{"action": "publish"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/v1/generations/"+g.ID+"/actions", map[string]string{"action": "cancel"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, entity.GenerationStatusCanceled, decode[dto.GenerationResponse](t, w).Status)

	w = f.do(t, http.MethodGet, "/v1/generations/"+g.ID+"/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	jobs := decode[[]dto.JobResponse](t, w)
	require.Len(t, jobs, 1)
	assert.Equal(t, entity.JobStatusAbandoned, jobs[0].Status)
}

func TestAPI_NotFoundAndValidation(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/generations/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		f.do(t, http.MethodPost, "/v1/generations/missing/actions", map[string]string{"action": "next"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v1/generations/missing/costs", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodPost, "/v1/generations", map[string]any{"module": "essay"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/v1/users/u-1/costs?from=yesterday", nil).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(t, http.MethodGet, "/v1/users/u-1/costs?from=2025-02-01&to=2025-01-01", nil).Code)
}

func TestAPI_CostsAfterCompletion(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	g := f.create(t)
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/v1/generations/"+g.ID+"/actions", map[string]string{"action": "next"}).Code)

	for i := 0; i < 2; i++ {
		_, err := f.svc.HandleJobResult(ctx, entity.NewSuccessResult(f.dispatcher.last().ID, successPayload(0.1)))
		require.NoError(t, err)
	}

	w := f.do(t, http.MethodGet, "/v1/generations/"+g.ID, nil)
	assert.Equal(t, entity.GenerationStatusCompleted, decode[dto.GenerationResponse](t, w).Status)

	w = f.do(t, http.MethodGet, "/v1/generations/"+g.ID+"/costs", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[dto.CostSummaryResponse](t, w)
	assert.Equal(t, 2, summary.Summary.Records)
	assert.InDelta(t, 0.2, summary.Summary.TotalCost, 1e-9)
	assert.Equal(t, int64(2000), summary.Summary.TotalTokens)

	w = f.do(t, http.MethodGet, "/v1/users/u-1/costs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[dto.CostSummaryResponse](t, w).Summary.Records)

	w = f.do(t, http.MethodGet, "/v1/users/u-1/generations?page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]dto.GenerationResponse](t, w), 1)
}

func TestAPI_CostsCompleteOnceCompletedIsVisible(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	g := f.create(t)
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/v1/generations/"+g.ID+"/actions", map[string]string{"action": "next"}).Code)

	_, err := f.svc.HandleJobResult(ctx, entity.NewSuccessResult(f.dispatcher.last().ID, successPayload(0.1)))
	require.NoError(t, err)

	// 运行中读取一次，填充缓存
	w := f.do(t, http.MethodGet, "/v1/generations/"+g.ID+"/costs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[dto.CostSummaryResponse](t, w).Summary.Records)

	_, err = f.svc.HandleJobResult(ctx, entity.NewSuccessResult(f.dispatcher.last().ID, successPayload(0.1)))
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, "/v1/generations/"+g.ID, nil)
	require.Equal(t, entity.GenerationStatusCompleted, decode[dto.GenerationResponse](t, w).Status)

	w = f.do(t, http.MethodGet, "/v1/generations/"+g.ID+"/costs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[dto.CostSummaryResponse](t, w)
	assert.Equal(t, 2, summary.Summary.Records)
	assert.InDelta(t, 0.2, summary.Summary.TotalCost, 1e-9)

	// 版本不变时命中缓存
	rec, err := entity.NewCostRecord(entity.CostRecordParams{ID: "extra", GenerationID: g.ID, ProviderName: "openai", Cost: 5})
	require.NoError(t, err)
	require.NoError(t, f.ledger.Add(ctx, rec))

	w = f.do(t, http.MethodGet, "/v1/generations/"+g.ID+"/costs", nil)
	assert.Equal(t, 2, decode[dto.CostSummaryResponse](t, w).Summary.Records)
}

func TestAPI_AdminRouting(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/admin/routing", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/v1/admin/routing", nil, "X-Admin-Token", "wrong").Code)

	cfg := map[string]any{
		"main":     map[string]any{"essay": map[string]string{"structure": "openai/gpt-4o"}},
		"fallback": map[string]any{"text": map[string]string{"structure": "openai/gpt-4o-mini"}},
	}
	w := f.do(t, http.MethodPut, "/v1/admin/routing", cfg, "X-Admin-Token", "secret")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data, err := os.ReadFile(f.routingFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "openai/gpt-4o")

	w = f.do(t, http.MethodGet, "/v1/admin/routing", nil, "X-Admin-Token", "secret")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[routing.Config](t, w)
	assert.Equal(t, "openai/gpt-4o", got.Main["essay"]["structure"])

	bad := map[string]any{"main": map[string]any{"essay": map[string]string{"structure": "no-provider"}}}
	w = f.do(t, http.MethodPut, "/v1/admin/routing", bad, "X-Admin-Token", "secret")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/ready", nil).Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/live", nil).Code)
}

// readFrames 读取 SSE 数据帧直到流结束
func readFrames(t *testing.T, resp *http.Response, onFrame func(entity.GenerationEvent)) {
	t.Helper()
	scanner := bufio.NewScanner(resp.Body)
	var event string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event == "generation":
			var evt entity.GenerationEvent
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt))
			onFrame(evt)
		}
	}
}

func TestAPI_EventStream(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	g := f.create(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/generations/"+g.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var frames []entity.GenerationEvent
	readFrames(t, resp, func(evt entity.GenerationEvent) {
		frames = append(frames, evt)
		switch len(frames) {
		case 1:
			_, err := f.svc.ApplyAction(context.Background(), g.ID, entity.ActionNext)
			require.NoError(t, err)
		case 2:
			_, err := f.svc.ApplyAction(context.Background(), g.ID, entity.ActionCancel)
			require.NoError(t, err)
		}
	})

	require.GreaterOrEqual(t, len(frames), 3)
	assert.Equal(t, entity.EventKindSnapshot, frames[0].Kind)
	assert.Equal(t, entity.GenerationStatusDraft, frames[0].Status)
	assert.Equal(t, entity.GenerationStatusCanceled, frames[len(frames)-1].Status)
	for i := 1; i < len(frames); i++ {
		assert.Greater(t, frames[i].Version, frames[i-1].Version)
	}
}

func TestAPI_EventStreamUnknownGeneration(t *testing.T) {
	f := newAPIFixture(t)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/generations/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
