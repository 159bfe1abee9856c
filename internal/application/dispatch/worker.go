package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"paper-gen-api/internal/application/lifecycle"
	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/service"
	"paper-gen-api/pkg/logger"
	"paper-gen-api/pkg/metrics"
	"paper-gen-api/pkg/tracer"
)

// Lifecycle worker 依赖的生命周期操作
type Lifecycle interface {
	StartJob(ctx context.Context, generationID, jobID string) (*lifecycle.RunningJob, bool, error)
	HandleJobResult(ctx context.Context, result entity.JobResult) (*entity.Generation, error)
}

// ModelSelector 模型路由
type ModelSelector interface {
	Select(step, category string, useFallback bool) string
}

// WorkerOptions worker 选项
type WorkerOptions struct {
	// Timeout 单次模型调用超时，0 表示不限
	Timeout time.Duration
	// FallbackOnError 主模型失败后用回退模型重试一次
	FallbackOnError bool
}

// Worker 执行单个流水线步骤并回报结果
type Worker struct {
	lifecycle Lifecycle
	router    ModelSelector
	executor  service.StepExecutor
	inflight  *Inflight
	opts      WorkerOptions
}

// NewWorker 创建 worker；inflight 可与调度器共享以支持取消
func NewWorker(lc Lifecycle, router ModelSelector, executor service.StepExecutor, inflight *Inflight, opts WorkerOptions) *Worker {
	if inflight == nil {
		inflight = NewInflight()
	}
	return &Worker{
		lifecycle: lc,
		router:    router,
		executor:  executor,
		inflight:  inflight,
		opts:      opts,
	}
}

// Execute 执行任务：标记运行 -> 选模型 -> 调用 -> 按需回退 -> 回报结果
// 过期任务直接跳过并返回 nil。
func (w *Worker) Execute(ctx context.Context, generationID, jobID string) error {
	ctx = logger.WithContext(ctx, logger.GenerationIDKey, generationID)
	ctx = logger.WithContext(ctx, logger.JobIDKey, jobID)

	run, ok, err := w.lifecycle.StartJob(ctx, generationID, jobID)
	if err != nil {
		return fmt.Errorf("failed to start job: %w", err)
	}
	if !ok {
		return nil
	}
	job, gen := run.Job, run.Generation

	ctx, span := tracer.Start(ctx, "dispatch.Execute", trace.WithAttributes(
		attribute.String("generation.id", generationID),
		attribute.String("job.id", jobID),
		attribute.String("job.step", job.Step),
	))
	defer span.End()

	runCtx, done := w.inflight.Begin(ctx, jobID)
	defer done()

	start := time.Now()
	model := w.router.Select(job.Step, gen.Module, false)
	payload, execErr := w.call(runCtx, job, gen, model)
	fallback := false

	if execErr != nil && w.opts.FallbackOnError && runCtx.Err() == nil {
		if fb := w.router.Select(job.Step, gen.Module, true); fb != model {
			logger.Warn(ctx, "step failed on main model, retrying on fallback",
				"step", job.Step,
				"model", model,
				"fallback_model", fb,
				"error", execErr,
			)
			metrics.JobFallbackTotal.WithLabelValues(job.Step).Inc()
			model, fallback = fb, true
			payload, execErr = w.call(runCtx, job, gen, model)
		}
	}

	var result entity.JobResult
	status := "succeeded"
	if execErr != nil {
		status = "failed"
		if errors.Is(runCtx.Err(), context.Canceled) && ctx.Err() == nil {
			status = "abandoned"
		}
		tracer.Fail(span, execErr)
		result = entity.NewFailureResult(jobID, execErr.Error())
	} else {
		if payload == nil {
			payload = entity.Payload{}
		}
		if _, ok := payload[service.MetricModel]; !ok {
			payload[service.MetricModel] = model
		}
		payload["fallback"] = fallback
		result = entity.NewSuccessResult(jobID, payload)
	}
	metrics.JobExecutionDuration.WithLabelValues(job.Step, status).Observe(time.Since(start).Seconds())
	logger.Info(ctx, "step executed",
		"step", job.Step,
		"model", model,
		"fallback", fallback,
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	// 调用方取消不应丢掉已经得到的结果
	if _, err := w.lifecycle.HandleJobResult(context.WithoutCancel(ctx), result); err != nil {
		return fmt.Errorf("failed to report job result: %w", err)
	}
	return nil
}

func (w *Worker) call(ctx context.Context, job *entity.Job, gen *entity.Generation, model string) (entity.Payload, error) {
	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}
	out, err := w.executor.Execute(ctx, service.StepRequest{
		Job:      job,
		Model:    model,
		Input:    gen.Input,
		Previous: gen.Output,
	})
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("step %s timed out after %s: %w", job.Step, w.opts.Timeout, err)
	}
	return out, err
}
