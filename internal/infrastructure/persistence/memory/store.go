// Package memory 提供进程内的仓储实现（开发与单进程部署使用）
package memory

import (
	"context"

	"paper-gen-api/internal/domain/repository"
)

// Transactor 进程内事务：直接执行回调
// 同一生成上的串行由生命周期服务的按 ID 锁保证，这里不提供回滚。
type Transactor struct{}

var _ repository.Transactor = Transactor{}

// NewTransactor 创建进程内事务管理器
func NewTransactor() Transactor {
	return Transactor{}
}

// WithTransaction 执行回调
func (Transactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
