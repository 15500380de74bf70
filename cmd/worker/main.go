package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/workflow-builder/engine/pkg/config"
	"github.com/workflow-builder/engine/pkg/database"
	"github.com/workflow-builder/engine/pkg/logger"

	"github.com/workflow-builder/engine/internal/queue/tasks"
	"github.com/workflow-builder/engine/internal/repository"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.RedisAddr == "" {
		log.Fatal("REDIS_ADDR is required for the worker")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}

	srv := asynq.NewServerFromRedisClient(rdb, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			tasks.QueueAudit:       6,
			tasks.QueueMaintenance: 1,
		},
		Logger: log.Sugar(),
	})

	// Initialize DB and repositories for task handlers
	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseURL, database.Options{AppEnv: cfg.AppEnv, MaxRetries: 5})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	mux := asynq.NewServeMux()
	tasks.Register(mux,
		tasks.NewAuditTaskHandler(repository.NewAuditRepository(db)),
		tasks.NewPurgeTaskHandler(repository.NewTokenRepository(db)),
	)

	scheduler := asynq.NewSchedulerFromRedisClient(rdb, &asynq.SchedulerOpts{Logger: log.Sugar()})
	if _, err := scheduler.Register(tasks.PurgeSchedule, tasks.NewPurgeTokensTask()); err != nil {
		log.Fatal("failed to schedule token purge", zap.Error(err))
	}

	log.Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
	if err := srv.Start(mux); err != nil {
		log.Fatal("worker failed to start", zap.Error(err))
	}
	log.Info("scheduler starting", zap.String("purge", tasks.PurgeSchedule))
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		log.Fatal("scheduler failed to start", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	// Allow in-flight tasks to finish gracefully
	scheduler.Shutdown()
	srv.Shutdown()
}
