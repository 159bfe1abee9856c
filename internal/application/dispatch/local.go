package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/pkg/logger"
)

var (
	// ErrQueueFull 本地队列已满
	ErrQueueFull = errors.New("local job queue is full")
	// ErrDispatcherStopped 调度器已停止
	ErrDispatcherStopped = errors.New("local dispatcher is stopped")
)

// Runner 执行一个任务
type Runner interface {
	Execute(ctx context.Context, generationID, jobID string) error
}

type jobRef struct {
	generationID string
	jobID        string
}

// LocalDispatcher 进程内有界 worker 池
// Enqueue 不阻塞：队列满时直接返回错误，由生命周期服务回滚迁移。
type LocalDispatcher struct {
	queue       chan jobRef
	concurrency int
	inflight    *Inflight

	stopped atomic.Bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewLocalDispatcher 创建本地调度器
func NewLocalDispatcher(queueSize, concurrency int, inflight *Inflight) *LocalDispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if inflight == nil {
		inflight = NewInflight()
	}
	return &LocalDispatcher{
		queue:       make(chan jobRef, queueSize),
		concurrency: concurrency,
		inflight:    inflight,
	}
}

// Enqueue 投递任务
func (d *LocalDispatcher) Enqueue(_ context.Context, job *entity.Job) error {
	if d.stopped.Load() {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- jobRef{generationID: job.GenerationID, jobID: job.ID}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Abandon 取消本进程中正在执行的任务；排队中的任务会在开始前被判定为过期
func (d *LocalDispatcher) Abandon(ctx context.Context, jobID string) {
	if d.inflight.Abandon(jobID) {
		logger.Info(ctx, "abandoned running job", "job_id", jobID)
	}
}

// Start 启动 worker 协程
// 调度器先于 worker 构造（生命周期服务依赖调度器），因此 runner 在此注入。
func (d *LocalDispatcher) Start(ctx context.Context, runner Runner) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.concurrency; i++ {
		d.wg.Add(1)
		go d.loop(ctx, runner)
	}
}

// Stop 停止接收并等待执行中的任务结束
func (d *LocalDispatcher) Stop() {
	d.stopped.Store(true)
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}

// Pending 排队中的任务数
func (d *LocalDispatcher) Pending() int {
	return len(d.queue)
}

func (d *LocalDispatcher) loop(ctx context.Context, runner Runner) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ref := <-d.queue:
			d.run(ctx, runner, ref)
		}
	}
}

func (d *LocalDispatcher) run(ctx context.Context, runner Runner, ref jobRef) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "job runner panicked", nil, "job_id", ref.jobID, "panic", r)
		}
	}()
	if err := runner.Execute(ctx, ref.generationID, ref.jobID); err != nil {
		logger.Error(ctx, "job execution failed", err,
			"generation_id", ref.generationID,
			"job_id", ref.jobID,
		)
	}
}
