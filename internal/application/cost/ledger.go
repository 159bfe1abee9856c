package cost

import (
	"context"
	"errors"
	"sort"
	"sync"

	"paper-gen-api/internal/domain/entity"
	"paper-gen-api/internal/domain/repository"
)

// Ledger 进程内只追加的成本账本，进程退出即丢失；持久化实现见 postgres.CostRecordRepository
type Ledger struct {
	mu      sync.RWMutex
	records []entity.CostRecord
}

var _ repository.CostRecordRepository = (*Ledger)(nil)

// NewLedger 创建内存账本
func NewLedger() *Ledger {
	return &Ledger{}
}

// Add 追加记录（保存副本）
func (l *Ledger) Add(_ context.Context, record *entity.CostRecord) error {
	if record == nil {
		return errors.New("cost record is nil")
	}
	cp := copyRecord(*record)

	l.mu.Lock()
	l.records = append(l.records, cp)
	l.mu.Unlock()
	return nil
}

// List 返回全部记录的时间点快照
func (l *Ledger) List(ctx context.Context) ([]*entity.CostRecord, error) {
	return l.Filter(ctx, repository.CostFilter{})
}

// Filter 返回满足全部条件的记录
func (l *Ledger) Filter(_ context.Context, filter repository.CostFilter) ([]*entity.CostRecord, error) {
	l.mu.RLock()
	out := make([]*entity.CostRecord, 0, len(l.records))
	for i := range l.records {
		if filter.Matches(&l.records[i]) {
			cp := copyRecord(l.records[i])
			out = append(out, &cp)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}

// Len 记录条数
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

func copyRecord(r entity.CostRecord) entity.CostRecord {
	if r.UserID != nil {
		u := *r.UserID
		r.UserID = &u
	}
	return r
}
