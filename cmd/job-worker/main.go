// Package main 异步任务执行器入口（job-worker）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"paper-gen-api/internal/config"
	"paper-gen-api/internal/infrastructure/eino/callback"
	"paper-gen-api/internal/wire"
	"paper-gen-api/pkg/logger"
	"paper-gen-api/pkg/tracer"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	callback.Init()

	name := hostnameConsumerName()
	app, cleanup, err := wire.InitializeWorker(ctx, cfg, name)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize job-worker", err)
	}
	defer cleanup()

	logger.Info(ctx, "job-worker started",
		"consumer", name,
		"stream", cfg.Messaging.RedisStream.Stream,
	)

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "job-worker stopped with error", err)
		return
	}
	logger.Info(ctx, "job-worker stopped")
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
