package redis

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"paper-gen-api/pkg/memo"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache 基于 Redis 的记忆化后端，多个网关实例共享同一份汇总结果
type Cache struct {
	client    *Client
	keyPrefix string
}

var _ memo.Backend = (*Cache)(nil)

// NewCache 创建缓存后端，keyPrefix 用于隔离不同部署
func NewCache(client *Client, keyPrefix string) *Cache {
	return &Cache{client: client, keyPrefix: keyPrefix}
}

func (c *Cache) key(k string) string {
	if c.keyPrefix == "" {
		return k
	}
	return c.keyPrefix + ":" + k
}

// Get 获取缓存值
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.Get",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	val, err := c.client.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if IsNil(err) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, false, nil
		}
		span.RecordError(err)
		return nil, false, err
	}

	span.SetAttributes(attribute.Bool("cache.hit", true))
	return val, true, nil
}

// Set 设置缓存值
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Set",
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		))
	defer span.End()

	if ttl < 0 {
		ttl = 0
	}
	if err := c.client.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
