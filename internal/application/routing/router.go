package routing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	apperrors "paper-gen-api/pkg/errors"
	"paper-gen-api/pkg/logger"
	"paper-gen-api/pkg/metrics"
)

// Tier 模型解析命中的层级
type Tier string

const (
	TierExact           Tier = "exact"
	TierGeneric         Tier = "generic"
	TierDefault         Tier = "default"
	TierFallback        Tier = "fallback"
	TierFallbackDefault Tier = "fallback_default"
)

// Resolution 一次模型解析的结果
type Resolution struct {
	Model    string `json:"model"`
	Tier     Tier   `json:"tier"`
	Channel  string `json:"channel"`
	Category string `json:"category"`
	Step     string `json:"step"`
}

// Options 路由器选项
type Options struct {
	DefaultModel         string
	DefaultFallbackModel string
}

// Router 模型路由器
// 当前配置保存在不可变快照中，替换时整体原子切换，读者不会看到中间状态。
type Router struct {
	current atomic.Pointer[Config]
	store   ConfigStore

	// writeMu 串行化 Replace/Reload，保证持久化顺序与切换顺序一致
	writeMu sync.Mutex

	defaultModel         string
	defaultFallbackModel string
}

// NewRouter 创建路由器；store 为 nil 时只在内存中替换
func NewRouter(initial *Config, store ConfigStore, opts Options) *Router {
	r := &Router{
		store:                store,
		defaultModel:         opts.DefaultModel,
		defaultFallbackModel: opts.DefaultFallbackModel,
	}
	if r.defaultModel == "" {
		r.defaultModel = BuiltinDefaultModel
	}
	if r.defaultFallbackModel == "" {
		r.defaultFallbackModel = BuiltinDefaultFallbackModel
	}
	r.current.Store(initial.Clone())
	return r
}

// Select 返回步骤应使用的模型 ID，从不失败
func (r *Router) Select(step, category string, useFallback bool) string {
	return r.Resolve(step, category, useFallback).Model
}

// Resolve 解析模型并给出命中层级
//
// 主通道：category -> other -> 默认模型；
// 回退通道：粗化分桶 -> 回退默认模型。
func (r *Router) Resolve(step, category string, useFallback bool) Resolution {
	cfg := r.current.Load()
	res := Resolution{Category: category, Step: step}

	if useFallback {
		res.Channel = ChannelFallback
		bucket := FallbackBucket(category)
		if model, ok := cfg.Fallback.Lookup(bucket, step); ok {
			res.Model, res.Tier = model, TierFallback
		} else {
			res.Model, res.Tier = r.defaultFallbackModel, TierFallbackDefault
		}
	} else {
		res.Channel = ChannelMain
		if model, ok := cfg.Main.Lookup(category, step); ok {
			res.Model, res.Tier = model, TierExact
		} else if model, ok := cfg.Main.Lookup(CategoryOther, step); ok {
			res.Model, res.Tier = model, TierGeneric
		} else {
			res.Model, res.Tier = r.defaultModel, TierDefault
		}
	}

	metrics.RoutingResolutionsTotal.WithLabelValues(string(res.Tier)).Inc()
	return res
}

// Snapshot 返回当前配置的副本
func (r *Router) Snapshot() *Config {
	return r.current.Load().Clone()
}

// Replace 校验并持久化新配置，成功后切换快照
// 写入失败时旧配置保持生效。
func (r *Router) Replace(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		metrics.RoutingReloadsTotal.WithLabelValues("replace", "invalid").Inc()
		return apperrors.ErrRoutingConfigInvalid.WithDetail(err.Error())
	}
	next := cfg.Clone()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if r.store != nil {
		if err := r.store.Save(ctx, next); err != nil {
			metrics.RoutingReloadsTotal.WithLabelValues("replace", "error").Inc()
			logger.Error(ctx, "failed to persist routing config", err)
			return fmt.Errorf("failed to persist routing config: %w", err)
		}
	}

	r.current.Store(next)
	metrics.RoutingReloadsTotal.WithLabelValues("replace", "ok").Inc()
	logger.Info(ctx, "routing config replaced",
		"main_categories", len(next.Main),
		"fallback_buckets", len(next.Fallback),
	)
	return nil
}

// Reload 从存储重新读取配置；读取或校验失败时旧配置保持生效
func (r *Router) Reload(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cfg, err := r.store.Load(ctx)
	if err != nil {
		metrics.RoutingReloadsTotal.WithLabelValues("reload", "error").Inc()
		return fmt.Errorf("failed to load routing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		metrics.RoutingReloadsTotal.WithLabelValues("reload", "invalid").Inc()
		return apperrors.ErrRoutingConfigInvalid.WithDetail(err.Error())
	}

	r.current.Store(cfg.Clone())
	metrics.RoutingReloadsTotal.WithLabelValues("reload", "ok").Inc()
	return nil
}
