// Package memo 提供带 TTL 的记忆化包装：按 key 在 TTL 内只计算一次。
//
// 用法：
//
//	summary := memo.Func(memo.NewLocal(), "cost:gen", 5*time.Second,
//		func(id string) string { return id },
//		func(ctx context.Context, id string) (cost.Summary, error) { ... },
//	)
//	s, err := summary(ctx, "gen-1")
//
// 值经 JSON 序列化后写入 Backend，因此同一包装可以落在进程内缓存或 Redis 上。
// 并发的同 key 未命中通过 singleflight 合并为一次计算。
package memo

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Backend 缓存后端
type Backend interface {
	// Get 返回缓存值；未命中时 ok=false
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set 写入缓存值，ttl<=0 表示不过期
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Func 返回一个记忆化后的加载函数。
// keyFn 负责从参数推导缓存键；最终键为 prefix + ":" + keyFn(arg)。
// 后端读失败按未命中处理，写失败不影响返回结果。
func Func[K any, V any](
	backend Backend,
	prefix string,
	ttl time.Duration,
	keyFn func(K) string,
	load func(ctx context.Context, arg K) (V, error),
) func(ctx context.Context, arg K) (V, error) {
	var group singleflight.Group

	return func(ctx context.Context, arg K) (V, error) {
		var zero V
		key := prefix + ":" + keyFn(arg)

		if v, ok := lookup[V](ctx, backend, key); ok {
			return v, nil
		}

		res, err, _ := group.Do(key, func() (interface{}, error) {
			// 再次检查缓存（可能已被其他调用填充）
			if v, ok := lookup[V](ctx, backend, key); ok {
				return v, nil
			}

			v, err := load(ctx, arg)
			if err != nil {
				return nil, err
			}

			if raw, mErr := json.Marshal(v); mErr == nil {
				_ = backend.Set(ctx, key, raw, ttl)
			}
			return v, nil
		})
		if err != nil {
			return zero, err
		}

		v, ok := res.(V)
		if !ok {
			return zero, fmt.Errorf("memo: unexpected value type %T for key %s", res, key)
		}
		return v, nil
	}
}

func lookup[V any](ctx context.Context, backend Backend, key string) (V, bool) {
	var v V
	raw, ok, err := backend.Get(ctx, key)
	if err != nil || !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

type localEntry struct {
	value     []byte
	expiresAt time.Time
}

// Local 进程内缓存后端
type Local struct {
	mu    sync.Mutex
	items map[string]localEntry
	now   func() time.Time
}

// NewLocal 创建进程内缓存后端
func NewLocal() *Local {
	return &Local{
		items: make(map[string]localEntry),
		now:   time.Now,
	}
}

// Get 读取缓存，过期条目按未命中处理并清理
func (l *Local) Get(_ context.Context, key string) ([]byte, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.items[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && !l.now().Before(e.expiresAt) {
		delete(l.items, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set 写入缓存
func (l *Local) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := localEntry{value: value}
	if ttl > 0 {
		e.expiresAt = l.now().Add(ttl)
	}
	l.items[key] = e
	return nil
}

// Len 返回当前条目数（含未清理的过期条目）
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}
