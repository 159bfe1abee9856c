// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"paper-gen-api/internal/config"
	"paper-gen-api/internal/interfaces/http/handler"
	"paper-gen-api/internal/interfaces/http/middleware"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Health     *handler.HealthHandler
	Generation *handler.GenerationHandler
	Event      *handler.EventHandler
	Cost       *handler.CostHandler
	Routing    *handler.RoutingHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Config
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建新的路由器；limiter 为 nil 时不限流
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.AccessLog("/health", "/live", "/ready", r.cfg.Observability.Metrics.Path))
}

func (r *Router) setupRoutes() {
	h := r.handlers

	if h.Health != nil {
		r.engine.GET("/health", h.Health.Health)
		r.engine.GET("/ready", h.Health.Ready)
		r.engine.GET("/live", h.Health.Live)
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
		KeyPrefix:         "ratelimit:" + r.cfg.App.Name,
	}, r.limiter))

	generations := v1.Group("/generations")
	{
		generations.POST("", h.Generation.CreateGeneration)
		generations.GET("/:id", h.Generation.GetGeneration)
		generations.POST("/:id/actions", h.Generation.ApplyAction)
		generations.GET("/:id/jobs", h.Generation.ListJobs)
		generations.GET("/:id/events", h.Event.StreamEvents)
		generations.GET("/:id/costs", h.Cost.GetGenerationCosts)
	}

	users := v1.Group("/users")
	{
		users.GET("/:uid/generations", h.Generation.ListUserGenerations)
		users.GET("/:uid/costs", h.Cost.GetUserCosts)
	}

	admin := v1.Group("/admin", middleware.AdminOnly(r.cfg.Security.AdminToken))
	{
		admin.GET("/routing", h.Routing.GetRouting)
		admin.PUT("/routing", h.Routing.ReplaceRouting)
	}
}
