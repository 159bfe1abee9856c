package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
	"paper-gen-api/internal/domain/service"
	apperrors "paper-gen-api/pkg/errors"
	"paper-gen-api/pkg/logger"
	"paper-gen-api/pkg/metrics"
	"paper-gen-api/pkg/tracer"
)

// 触发来源（指标标签）
const (
	triggerAction    = "action"
	triggerJobResult = "job_result"
)

// PipelinePlanner 根据模块给出流水线步骤
type PipelinePlanner interface {
	Steps(module string) []string
}

// CostCollector 从任务结果提取成本记录
type CostCollector interface {
	Collect(result entity.JobResult, generationID string, userID *string) (*entity.CostRecord, error)
}

// Deps 生命周期服务依赖
type Deps struct {
	Tx          repository.Transactor
	Generations repository.GenerationRepository
	Jobs        repository.JobRepository
	Costs       repository.CostRecordRepository
	Collector   CostCollector
	Dispatcher  service.Dispatcher
	Publisher   service.EventPublisher
	Planner     PipelinePlanner
}

// Service 生成生命周期服务
// 同一生成上的所有变更在进程内按 ID 串行，在数据库内通过行锁串行。
type Service struct {
	tx          repository.Transactor
	generations repository.GenerationRepository
	jobs        repository.JobRepository
	costs       repository.CostRecordRepository
	collector   CostCollector
	dispatcher  service.Dispatcher
	publisher   service.EventPublisher
	planner     PipelinePlanner

	locks *KeyedMutex
	newID func() string
}

// NewService 创建生命周期服务
func NewService(d Deps) *Service {
	return &Service{
		tx:          d.Tx,
		generations: d.Generations,
		jobs:        d.Jobs,
		costs:       d.Costs,
		collector:   d.Collector,
		dispatcher:  d.Dispatcher,
		publisher:   d.Publisher,
		planner:     d.Planner,
		locks:       NewKeyedMutex(),
		newID:       uuid.NewString,
	}
}

// CreateInput 创建生成的参数
type CreateInput struct {
	UserID string
	Module string
	Input  entity.Payload
}

// Create 创建 DRAFT 状态的生成
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Generation, error) {
	ctx, span := tracer.Start(ctx, "lifecycle.Create")
	defer span.End()

	userID := strings.TrimSpace(in.UserID)
	module := strings.ToLower(strings.TrimSpace(in.Module))
	if userID == "" || module == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("user_id and module are required")
	}

	steps := s.planner.Steps(module)
	if len(steps) == 0 {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("no pipeline configured for module %q", module))
	}

	g := entity.NewGeneration(s.newID(), userID, module, in.Input, steps)
	if err := s.generations.Create(ctx, g); err != nil {
		tracer.Fail(span, err)
		return nil, fmt.Errorf("failed to create generation: %w", err)
	}

	logger.Info(logger.WithContext(ctx, logger.GenerationIDKey, g.ID), "generation created",
		"module", module,
		"steps", len(steps),
	)
	return g, nil
}

// Get 获取生成
func (s *Service) Get(ctx context.Context, id string) (*entity.Generation, error) {
	g, err := s.generations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, apperrors.ErrGenerationNotFound
	}
	return g, nil
}

// ListJobs 列出生成的全部步骤任务
func (s *Service) ListJobs(ctx context.Context, id string) ([]*entity.Job, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.jobs.ListByGeneration(ctx, id)
}

// ListByUser 分页列出用户的生成
func (s *Service) ListByUser(ctx context.Context, userID string, pagination repository.Pagination) (*repository.PagedResult[*entity.Generation], error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.ErrInvalidParam.WithDetail("user_id is required")
	}
	return s.generations.ListByUser(ctx, userID, pagination)
}

// Snapshot 返回描述生成当前状态的合成事件，作为新订阅者的基线
func (s *Service) Snapshot(ctx context.Context, id string) (entity.GenerationEvent, error) {
	g, err := s.Get(ctx, id)
	if err != nil {
		return entity.GenerationEvent{}, err
	}
	return entity.NewGenerationEvent(entity.EventKindSnapshot, g), nil
}

// ApplyAction 对生成应用用户动作
// 非法迁移返回 *TransitionError；迁移及其副作用（任务创建与投递）要么全部生效要么全部不生效。
func (s *Service) ApplyAction(ctx context.Context, id string, action entity.Action) (*entity.Generation, error) {
	ctx = logger.WithContext(ctx, logger.GenerationIDKey, id)
	ctx, span := tracer.Start(ctx, "lifecycle.ApplyAction", trace.WithAttributes(
		attribute.String("generation.id", id),
		attribute.String("generation.action", string(action)),
	))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	var (
		out       *entity.Generation
		from      entity.GenerationStatus
		abandoned string
		enqueued  string
	)
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		g, err := s.generations.GetForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if g == nil {
			return apperrors.ErrGenerationNotFound
		}
		from = g.Status

		to, err := Transition(g.Status, action)
		if err != nil {
			return err
		}

		switch action {
		case entity.ActionNext:
			if err := s.startStep(txCtx, g); err != nil {
				return err
			}
			enqueued = g.ActiveJobID
		case entity.ActionCancel:
			jobID, err := s.abandonActiveJob(txCtx, g)
			if err != nil {
				return err
			}
			abandoned = jobID
		}

		g.Status = to
		g.Touch()
		if err := s.generations.Update(txCtx, g); err != nil {
			return fmt.Errorf("failed to update generation: %w", err)
		}
		out = g
		return nil
	})
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			metrics.GenerationConflictsTotal.WithLabelValues(string(te.Status), string(te.Action)).Inc()
			logger.Warn(ctx, "generation action rejected", "status", te.Status, "action", te.Action)
			return nil, err
		}
		// 已投递但未提交的任务会被 worker 的过期检查丢弃，这里尽早通知放弃
		if enqueued != "" {
			s.dispatcher.Abandon(ctx, enqueued)
		}
		tracer.Fail(span, err)
		return nil, err
	}

	if abandoned != "" {
		s.dispatcher.Abandon(ctx, abandoned)
	}

	metrics.GenerationTransitionsTotal.WithLabelValues(string(from), string(out.Status), triggerAction).Inc()
	logger.Info(ctx, "generation transitioned", "from", from, "to", out.Status, "action", action)

	evt := entity.NewGenerationEvent(entity.EventKindTransition, out)
	evt.Action = string(action)
	s.publish(ctx, evt)

	return out.Clone(), nil
}

// startStep 为当前步骤创建任务并投递；投递失败时删除任务，生成保持原状
func (s *Service) startStep(ctx context.Context, g *entity.Generation) error {
	job := entity.NewJob(s.newID(), g)
	if err := s.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	if err := s.dispatcher.Enqueue(ctx, job); err != nil {
		if delErr := s.jobs.Delete(ctx, job.ID); delErr != nil {
			logger.Error(ctx, "failed to remove undispatched job", delErr, "job_id", job.ID)
		}
		logger.Error(ctx, "failed to dispatch job", err, "job_id", job.ID, "step", job.Step)
		return apperrors.ErrDispatchFailed.WithError(err)
	}

	g.ActiveJobID = job.ID
	return nil
}

// abandonActiveJob 将进行中的任务标记为放弃，返回其 ID
func (s *Service) abandonActiveJob(ctx context.Context, g *entity.Generation) (string, error) {
	if g.ActiveJobID == "" {
		return "", nil
	}
	jobID := g.ActiveJobID
	g.ActiveJobID = ""

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job == nil {
		return "", nil
	}
	job.Abandon()
	if err := s.jobs.Update(ctx, job); err != nil {
		return "", fmt.Errorf("failed to abandon job: %w", err)
	}
	return jobID, nil
}

// RunningJob 准备执行的任务及其生成快照
type RunningJob struct {
	Job        *entity.Job
	Generation *entity.Generation
}

// StartJob 在执行前将任务标记为 running
// 任务已过期（生成不再运行、不是当前活动任务或已被放弃）或已结束时返回 ok=false，执行方应直接跳过。
// 仍为 running 的活动任务视为重投递（执行方崩溃或结果上报失败），重新准入并刷新开始时间。
func (s *Service) StartJob(ctx context.Context, generationID, jobID string) (*RunningJob, bool, error) {
	ctx = logger.WithContext(ctx, logger.GenerationIDKey, generationID)
	ctx = logger.WithContext(ctx, logger.JobIDKey, jobID)
	ctx, span := tracer.Start(ctx, "lifecycle.StartJob")
	defer span.End()

	unlock := s.locks.Lock(generationID)
	defer unlock()

	var (
		run         *RunningJob
		redelivered bool
	)
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		g, job, err := s.loadForJob(txCtx, generationID, jobID)
		if err != nil || job == nil {
			return err
		}
		if !admissible(g, job) {
			return nil
		}
		redelivered = job.Status == entity.JobStatusRunning

		job.Start()
		if err := s.jobs.Update(txCtx, job); err != nil {
			return fmt.Errorf("failed to mark job running: %w", err)
		}
		g.Touch()
		if err := s.generations.Update(txCtx, g); err != nil {
			return fmt.Errorf("failed to update generation: %w", err)
		}
		run = &RunningJob{Job: job, Generation: g}
		return nil
	})
	if err != nil {
		tracer.Fail(span, err)
		return nil, false, err
	}
	if run == nil {
		logger.Info(ctx, "skipping stale job")
		return nil, false, nil
	}

	evt := entity.NewGenerationEvent(entity.EventKindProgress, run.Generation)
	evt.Message = fmt.Sprintf("step %s started", run.Job.Step)
	if redelivered {
		logger.Warn(ctx, "re-admitting redelivered running job", "step", run.Job.Step)
		evt.Message = fmt.Sprintf("step %s restarted", run.Job.Step)
	}
	s.publish(ctx, evt)

	return &RunningJob{Job: run.Job, Generation: run.Generation.Clone()}, true, nil
}

// HandleJobResult 处理任务结果
//
// 过期结果（任务已放弃、生成不在运行或任务不是活动任务）被丢弃。
// 成功时先把成本记录写入账本，再推进步骤或迁移到 COMPLETED；失败时迁移到 FAILED。
func (s *Service) HandleJobResult(ctx context.Context, result entity.JobResult) (*entity.Generation, error) {
	ctx = logger.WithContext(ctx, logger.JobIDKey, result.JobID)
	ctx, span := tracer.Start(ctx, "lifecycle.HandleJobResult", trace.WithAttributes(
		attribute.String("job.id", result.JobID),
		attribute.Bool("job.success", result.Success),
	))
	defer span.End()

	job, err := s.jobs.GetByID(ctx, result.JobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperrors.ErrJobNotFound
	}
	generationID := job.GenerationID
	ctx = logger.WithContext(ctx, logger.GenerationIDKey, generationID)

	unlock := s.locks.Lock(generationID)
	defer unlock()

	var (
		out    *entity.Generation
		from   entity.GenerationStatus
		stale  bool
		record *entity.CostRecord
	)
	err = s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		g, job, err := s.loadForJob(txCtx, generationID, result.JobID)
		if err != nil {
			return err
		}
		if job == nil {
			return apperrors.ErrJobNotFound
		}
		from = g.Status

		if isStale(g, job) || job.Status.IsFinished() {
			stale = true
			// 已成功或失败的任务保留原状态（重复投递的结果）
			if job.Status == entity.JobStatusAbandoned || !job.Status.IsFinished() {
				job.Finish(entity.JobStatusDiscarded, job.ErrorMessage)
				if err := s.jobs.Update(txCtx, job); err != nil {
					return fmt.Errorf("failed to discard job: %w", err)
				}
			}
			out = g
			return nil
		}

		applyExecutionInfo(job, result.OutputPayload)

		success := result.Success
		errMsg := result.Error
		if success {
			record, err = s.collector.Collect(result, g.ID, &g.UserID)
			if err != nil {
				// 指标非法属于编程错误，不做修正，按步骤失败处理
				logger.Error(txCtx, "invalid cost metrics in job result", err)
				success = false
				errMsg = fmt.Sprintf("invalid cost metrics: %v", err)
				record = nil
			}
		}

		if record != nil {
			if err := s.costs.Add(txCtx, record); err != nil {
				return fmt.Errorf("failed to append cost record: %w", err)
			}
		}

		if success {
			job.Finish(entity.JobStatusSucceeded, "")
		} else {
			if errMsg == "" {
				errMsg = "step failed"
			}
			job.Finish(entity.JobStatusFailed, errMsg)
		}
		if err := s.jobs.Update(txCtx, job); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}

		s.advance(txCtx, g, job, result, success, errMsg)
		g.Touch()
		if err := s.generations.Update(txCtx, g); err != nil {
			return fmt.Errorf("failed to update generation: %w", err)
		}
		out = g
		return nil
	})
	if err != nil {
		tracer.Fail(span, err)
		return nil, err
	}

	if stale {
		metrics.StaleJobResultsTotal.Inc()
		logger.Info(ctx, "discarded stale job result", "status", out.Status)
		return out.Clone(), nil
	}

	if record != nil {
		metrics.CostTotal.WithLabelValues(record.ProviderName).Add(record.Cost)
		metrics.TokensUsedTotal.WithLabelValues(record.ProviderName).Add(float64(record.TokensUsed))
	}

	kind := entity.EventKindProgress
	if out.Status != from {
		kind = entity.EventKindTransition
		metrics.GenerationTransitionsTotal.WithLabelValues(string(from), string(out.Status), triggerJobResult).Inc()
		logger.Info(ctx, "generation transitioned", "from", from, "to", out.Status)
	}
	s.publish(ctx, entity.NewGenerationEvent(kind, out))

	return out.Clone(), nil
}

// advance 根据步骤结果推进生成
func (s *Service) advance(ctx context.Context, g *entity.Generation, job *entity.Job, result entity.JobResult, success bool, errMsg string) {
	status := outcomeStatus(success, g.IsLastStep())

	if success {
		if g.Output == nil {
			g.Output = entity.Payload{}
		}
		content := result.OutputPayload[service.OutputKeyContent]
		g.Output[job.Step] = content
		if status == entity.GenerationStatusCompleted {
			g.Output["result"] = content
		}
	}

	g.ActiveJobID = ""
	g.Status = status

	switch status {
	case entity.GenerationStatusFailed:
		g.ErrorMessage = errMsg
	case entity.GenerationStatusRunning:
		g.StepIndex++
		if err := s.startStep(ctx, g); err != nil {
			g.Status = entity.GenerationStatusFailed
			g.ErrorMessage = err.Error()
		}
	}
}

// loadForJob 锁定生成并读取任务；生成不存在时返回 NotFound
func (s *Service) loadForJob(ctx context.Context, generationID, jobID string) (*entity.Generation, *entity.Job, error) {
	g, err := s.generations.GetForUpdate(ctx, generationID)
	if err != nil {
		return nil, nil, err
	}
	if g == nil {
		return nil, nil, apperrors.ErrGenerationNotFound
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	return g, job, nil
}

// isStale 任务结果是否已不能推进生成
func isStale(g *entity.Generation, job *entity.Job) bool {
	return g.Status != entity.GenerationStatusRunning ||
		g.ActiveJobID != job.ID ||
		job.Status == entity.JobStatusAbandoned
}

// admissible 活动任务处于 queued 或 running 时可以执行
func admissible(g *entity.Generation, job *entity.Job) bool {
	if isStale(g, job) {
		return false
	}
	return job.Status == entity.JobStatusQueued || job.Status == entity.JobStatusRunning
}

// applyExecutionInfo 从输出中回填执行模型信息
func applyExecutionInfo(job *entity.Job, payload entity.Payload) {
	if payload == nil {
		return
	}
	if m, ok := payload[service.MetricModel].(string); ok && m != "" {
		job.Model = m
	}
	if fb, ok := payload["fallback"].(bool); ok {
		job.Fallback = fb
	}
}

func (s *Service) publish(ctx context.Context, evt entity.GenerationEvent) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, evt)
	metrics.EventsPublishedTotal.WithLabelValues(string(evt.Kind)).Inc()
}
