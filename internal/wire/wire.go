// Package wire 按配置装配网关与 worker 进程的依赖
package wire

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"paper-gen-api/internal/application/cost"
	"paper-gen-api/internal/application/dispatch"
	"paper-gen-api/internal/application/events"
	"paper-gen-api/internal/application/lifecycle"
	"paper-gen-api/internal/application/routing"
	"paper-gen-api/internal/config"
	"paper-gen-api/internal/domain/repository"
	"paper-gen-api/internal/domain/service"
	"paper-gen-api/internal/infrastructure/llm"
	"paper-gen-api/internal/infrastructure/messaging"
	"paper-gen-api/internal/infrastructure/persistence/memory"
	"paper-gen-api/internal/infrastructure/persistence/postgres"
	"paper-gen-api/internal/infrastructure/persistence/redis"
	"paper-gen-api/internal/interfaces/http/handler"
	"paper-gen-api/internal/interfaces/http/middleware"
	"paper-gen-api/internal/interfaces/http/router"
	"paper-gen-api/pkg/logger"
	"paper-gen-api/pkg/memo"
)

// DataLayer 数据层依赖容器
type DataLayer struct {
	Tx          repository.Transactor
	Generations repository.GenerationRepository
	Jobs        repository.JobRepository
	Costs       repository.CostRecordRepository

	// PgClient 仅 postgres 驱动下非空
	PgClient *postgres.Client
}

// cleanups 按注册的逆序执行清理
type cleanups []func()

func (c *cleanups) add(fn func()) {
	*c = append(*c, fn)
}

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// ProvideDataLayer 按 storage.driver 创建仓储
func ProvideDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	if cfg.Storage.Driver != config.StorageDriverPostgres {
		return &DataLayer{
			Tx:          memory.NewTransactor(),
			Generations: memory.NewGenerationRepository(),
			Jobs:        memory.NewJobRepository(),
			Costs:       cost.NewLedger(),
		}, func() {}, nil
	}

	client, err := ProvidePostgresClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Storage.AutoMigrate {
		if err := client.AutoMigrate(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}
	return &DataLayer{
		Tx:          postgres.NewTxManager(client),
		Generations: postgres.NewGenerationRepository(client),
		Jobs:        postgres.NewJobRepository(client),
		Costs:       postgres.NewCostRecordRepository(client),
		PgClient:    client,
	}, func() { _ = client.Close() }, nil
}

// ProvidePostgresClient 提供 PostgreSQL 客户端
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, error) {
	return postgres.NewClient(&cfg.Database.Postgres)
}

// ProvideRedisClient 提供 Redis 客户端；未启用时返回 nil
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		return nil, nil, err
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideMessagingProducer 提供消息生产者
func ProvideMessagingProducer(client *redis.Client, cfg *config.Config) *messaging.Producer {
	return messaging.NewProducer(client.Redis(), int64(cfg.Messaging.RedisStream.MaxLen))
}

// ProvideModelRouter 从路由文件加载路由表，并按配置监听文件变更
func ProvideModelRouter(ctx context.Context, cfg *config.Config) (*routing.Router, error) {
	store := routing.NewFileStore(cfg.Routing.File)
	initial, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load routing config: %w", err)
	}

	rt := routing.NewRouter(initial, store, routing.Options{
		DefaultModel:         cfg.Routing.DefaultModel,
		DefaultFallbackModel: cfg.Routing.DefaultFallbackModel,
	})

	if cfg.Routing.Watch {
		w, err := routing.NewWatcher(rt, store.Path(), cfg.Routing.Debounce)
		if err != nil {
			logger.Warn(ctx, "routing file watcher disabled", "error", err)
		} else {
			go w.Run(ctx)
		}
	}
	return rt, nil
}

// ProvideStepExecutor 提供基于 eino 的步骤执行器
func ProvideStepExecutor(cfg *config.Config) *llm.StepExecutor {
	return llm.NewStepExecutor(llm.NewEinoFactory(cfg), llm.NewPricing(cfg.Cost))
}

// ProvideWorker 提供步骤执行 worker
func ProvideWorker(cfg *config.Config, svc *lifecycle.Service, rt *routing.Router, inflight *dispatch.Inflight) *dispatch.Worker {
	return dispatch.NewWorker(svc, rt, ProvideStepExecutor(cfg), inflight, dispatch.WorkerOptions{
		Timeout:         cfg.Pipeline.JobTimeout,
		FallbackOnError: cfg.Pipeline.FallbackOnError,
	})
}

func provideLifecycle(cfg *config.Config, data *DataLayer, d service.Dispatcher, pub service.EventPublisher) *lifecycle.Service {
	return lifecycle.NewService(lifecycle.Deps{
		Tx:          data.Tx,
		Generations: data.Generations,
		Jobs:        data.Jobs,
		Costs:       data.Costs,
		Collector:   cost.NewCollector(),
		Dispatcher:  d,
		Publisher:   pub,
		Planner:     dispatch.NewPlan(cfg.Pipeline),
	})
}

func streamDispatcher(cfg *config.Config, rdb *redis.Client) *messaging.StreamDispatcher {
	rs := cfg.Messaging.RedisStream
	return messaging.NewStreamDispatcher(ProvideMessagingProducer(rdb, cfg), rdb.Redis(), messaging.Stream(rs.Stream), rs.AbandonChannel)
}

// App 网关进程
type App struct {
	Router    *router.Router
	Lifecycle *lifecycle.Service
	Broker    *events.Broker
}

// InitializeApp 装配网关：HTTP、生命周期服务，以及进程内 worker 或流调度器
// 后台协程随 ctx 取消退出。
func InitializeApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	var cl cleanups
	fail := func(err error) (*App, func(), error) {
		cl.run()
		return nil, nil, err
	}

	data, dataCleanup, err := ProvideDataLayer(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	cl.add(dataCleanup)

	rdb, redisCleanup, err := ProvideRedisClient(cfg)
	if err != nil {
		return fail(err)
	}
	cl.add(redisCleanup)

	rt, err := ProvideModelRouter(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	broker := events.NewBroker(cfg.Events.SubscriberBuffer)
	cl.add(broker.Close)

	var publisher service.EventPublisher = broker
	if rdb != nil {
		relay := messaging.NewEventRelay(rdb.Redis(), cfg.Messaging.RedisStream.EventChannel)
		go relay.Run(ctx, broker)
		// 本地直接投递；经 Redis 回流的重复事件按版本号过滤
		publisher = messaging.FanOut{broker, relay}
	}

	inflight := dispatch.NewInflight()
	var svc *lifecycle.Service
	if cfg.Pipeline.InlineWorker {
		local := dispatch.NewLocalDispatcher(cfg.Pipeline.QueueSize, cfg.Pipeline.WorkerConcurrency, inflight)
		svc = provideLifecycle(cfg, data, local, publisher)
		local.Start(ctx, ProvideWorker(cfg, svc, rt, inflight))
		cl.add(local.Stop)
	} else {
		svc = provideLifecycle(cfg, data, streamDispatcher(cfg, rdb), publisher)
	}

	var backend memo.Backend = memo.NewLocal()
	var limiter middleware.RateLimiter
	checks := map[string]handler.HealthChecker{}
	if rdb != nil {
		backend = redis.NewCache(rdb, cfg.App.Name)
		limiter = redis.NewRateLimiter(rdb)
		checks["redis"] = rdb
	}
	if data.PgClient != nil {
		checks["postgres"] = data.PgClient
	}

	r := router.New(cfg, router.Handlers{
		Health:     handler.NewHealthHandler(cfg.App.Version, checks),
		Generation: handler.NewGenerationHandler(svc),
		Event:      handler.NewEventHandler(broker, svc, cfg.Events.HeartbeatInterval),
		Cost:       handler.NewCostHandler(svc, cost.NewAggregator(data.Costs), backend, cfg.Cache.CostSummaryTTL),
		Routing:    handler.NewRoutingHandler(rt),
	}, limiter)

	return &App{Router: r, Lifecycle: svc, Broker: broker}, cl.run, nil
}

// WorkerApp job-worker 进程
type WorkerApp struct {
	Consumer *messaging.Consumer
	Worker   *dispatch.Worker
	Inflight *dispatch.Inflight

	rdb            *goredis.Client
	abandonChannel string
}

// InitializeWorker 装配 job-worker：消费步骤任务，结果经事件中继回到网关
func InitializeWorker(ctx context.Context, cfg *config.Config, consumerName string) (*WorkerApp, func(), error) {
	var cl cleanups
	fail := func(err error) (*WorkerApp, func(), error) {
		cl.run()
		return nil, nil, err
	}

	if cfg.Storage.Driver != config.StorageDriverPostgres {
		return fail(fmt.Errorf("job-worker requires storage.driver=%s", config.StorageDriverPostgres))
	}

	data, dataCleanup, err := ProvideDataLayer(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	cl.add(dataCleanup)

	rdb, redisCleanup, err := ProvideRedisClient(cfg)
	if err != nil {
		return fail(err)
	}
	cl.add(redisCleanup)
	if rdb == nil {
		return fail(fmt.Errorf("job-worker requires cache.redis.enabled"))
	}

	rt, err := ProvideModelRouter(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	rs := cfg.Messaging.RedisStream
	relay := messaging.NewEventRelay(rdb.Redis(), rs.EventChannel)
	svc := provideLifecycle(cfg, data, streamDispatcher(cfg, rdb), relay)

	inflight := dispatch.NewInflight()
	worker := ProvideWorker(cfg, svc, rt, inflight)

	consumer := messaging.NewConsumer(rdb.Redis(), messaging.ConsumerConfig{
		Stream:        messaging.Stream(rs.Stream),
		Group:         rs.ConsumerGroupPrefix + "-step-worker",
		ConsumerName:  consumerName,
		BlockTimeout:  rs.BlockTimeout,
		ClaimInterval: rs.ClaimInterval,
		RetryLimit:    rs.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    rs.RetryBackoff.Initial,
			Max:        rs.RetryBackoff.Max,
			Multiplier: rs.RetryBackoff.Multiplier,
		},
	})
	consumer.RegisterHandler(messaging.MessageTypeStepJob, messaging.StepJobHandler(worker.Execute))

	return &WorkerApp{
		Consumer:       consumer,
		Worker:         worker,
		Inflight:       inflight,
		rdb:            rdb.Redis(),
		abandonChannel: rs.AbandonChannel,
	}, cl.run, nil
}

// Run 启动消费并监听放弃通知，阻塞直到 ctx 取消
func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.Consumer.Start(ctx); err != nil {
		return err
	}
	defer w.Consumer.Stop()

	messaging.ListenAbandon(ctx, w.rdb, w.abandonChannel, func(jobID string) {
		if w.Inflight.Abandon(jobID) {
			logger.Info(logger.WithContext(ctx, logger.JobIDKey, jobID), "in-flight job abandoned")
		}
	})
	return nil
}
