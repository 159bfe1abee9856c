package dispatch

import (
	"context"
	"sync"
)

// Inflight 正在执行的任务及其取消函数
type Inflight struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewInflight 创建执行中任务表
func NewInflight() *Inflight {
	return &Inflight{cancels: make(map[string]context.CancelFunc)}
}

// Begin 登记任务，返回可被 Abandon 取消的 context 和结束登记的函数
func (r *Inflight) Begin(ctx context.Context, jobID string) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancels[jobID] = cancel
	r.mu.Unlock()

	return runCtx, func() {
		r.mu.Lock()
		delete(r.cancels, jobID)
		r.mu.Unlock()
		cancel()
	}
}

// Abandon 取消执行中的任务；任务不在本进程执行时返回 false
func (r *Inflight) Abandon(jobID string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[jobID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Len 执行中的任务数
func (r *Inflight) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}
