// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Storage       StorageConfig       `yaml:"storage" mapstructure:"storage"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Routing       RoutingConfig       `yaml:"routing" mapstructure:"routing"`
	Pipeline      PipelineConfig      `yaml:"pipeline" mapstructure:"pipeline"`
	Cost          CostConfig          `yaml:"cost" mapstructure:"cost"`
	Events        EventsConfig        `yaml:"events" mapstructure:"events"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

// HTTPServerConfig HTTP 服务器配置
type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// 存储驱动
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// StorageConfig 存储后端选择
type StorageConfig struct {
	// Driver memory 或 postgres
	Driver string `yaml:"driver" mapstructure:"driver"`
	// AutoMigrate 启动时自动建表（仅 postgres）
	AutoMigrate bool `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
	// CostSummaryTTL 成本汇总记忆化时长
	CostSummaryTTL time.Duration `yaml:"cost_summary_ttl" mapstructure:"cost_summary_ttl"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// MessagingConfig 消息队列配置
type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

// RedisStreamConfig Redis Stream 配置
type RedisStreamConfig struct {
	Stream              string        `yaml:"stream" mapstructure:"stream"`
	EventChannel        string        `yaml:"event_channel" mapstructure:"event_channel"`
	AbandonChannel      string        `yaml:"abandon_channel" mapstructure:"abandon_channel"`
	MaxLen              int           `yaml:"max_len" mapstructure:"max_len"`
	ConsumerGroupPrefix string        `yaml:"consumer_group_prefix" mapstructure:"consumer_group_prefix"`
	BlockTimeout        time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval       time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit          int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff        BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	// Providers 以提供商名称（模型 ID 中 "/" 之前的部分）为键
	Providers map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// RoutingConfig 模型路由配置
type RoutingConfig struct {
	// File 路由表 JSON 文件路径
	File string `yaml:"file" mapstructure:"file"`
	// Watch 是否监听文件变更自动重载
	Watch bool `yaml:"watch" mapstructure:"watch"`
	// Debounce 文件事件合并窗口
	Debounce time.Duration `yaml:"debounce" mapstructure:"debounce"`
	// DefaultModel 主通道兜底模型
	DefaultModel string `yaml:"default_model" mapstructure:"default_model"`
	// DefaultFallbackModel 回退通道兜底模型
	DefaultFallbackModel string `yaml:"default_fallback_model" mapstructure:"default_fallback_model"`
}

// PipelineConfig 生成流水线配置
type PipelineConfig struct {
	// DefaultSteps 未单独配置的模块使用的步骤
	DefaultSteps []string `yaml:"default_steps" mapstructure:"default_steps"`
	// ModuleSteps 按模块覆盖步骤列表
	ModuleSteps map[string][]string `yaml:"module_steps" mapstructure:"module_steps"`
	// JobTimeout 单步执行超时
	JobTimeout time.Duration `yaml:"job_timeout" mapstructure:"job_timeout"`
	// FallbackOnError 主模型失败时是否用回退模型重试一次
	FallbackOnError bool `yaml:"fallback_on_error" mapstructure:"fallback_on_error"`
	// WorkerConcurrency 本地执行器并发数
	WorkerConcurrency int `yaml:"worker_concurrency" mapstructure:"worker_concurrency"`
	// QueueSize 本地执行器队列长度
	QueueSize int `yaml:"queue_size" mapstructure:"queue_size"`
	// InlineWorker 为 true 时在网关进程内执行任务，否则投递到 Redis Stream
	InlineWorker bool `yaml:"inline_worker" mapstructure:"inline_worker"`
}

// CostConfig 成本计量配置
type CostConfig struct {
	// Pricing 每千 token 价格；模型 ID 可能含 "."，因此使用列表
	Pricing []ModelPrice `yaml:"pricing" mapstructure:"pricing"`
	// DefaultPricePer1K 未配置模型的价格
	DefaultPricePer1K float64 `yaml:"default_price_per_1k" mapstructure:"default_price_per_1k"`
}

// ModelPrice 单个模型的价格
type ModelPrice struct {
	Model      string  `yaml:"model" mapstructure:"model"`
	PricePer1K float64 `yaml:"price_per_1k" mapstructure:"price_per_1k"`
}

// EventsConfig 事件流配置
type EventsConfig struct {
	SubscriberBuffer  int           `yaml:"subscriber_buffer" mapstructure:"subscriber_buffer"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	// AdminToken 管理接口令牌（X-Admin-Token），为空时管理接口关闭
	AdminToken string          `yaml:"admin_token" mapstructure:"admin_token"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS       CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond int  `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int  `yaml:"burst" mapstructure:"burst"`
}

// CORSConfig CORS 配置
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
