package main

import (
	"Go_Drop/config"
	"Go_Drop/internal/mq"
	"Go_Drop/internal/repo"
	"Go_Drop/internal/service"
	"Go_Drop/internal/storage"
	"Go_Drop/internal/task"
	"Go_Drop/internal/worker"
	"Go_Drop/utils"
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// main runs the delete-retry consumer and the retiring-file sweeper.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenDB(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	minioClient, err := storage.NewMinioClient(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}
	blobs := storage.NewMinioStore(minioClient, cfg.Storage.BucketName, cfg.Storage.PublicBaseURL, cfg.Storage.URLExpiry)

	publisher := mq.NewPublisher(cfg.RabbitMQURL)
	defer publisher.Close()

	store := repo.NewGrantStore(db)
	coordinator := service.NewCoordinator(store,
		blobs,
		task.NewMQScheduler(publisher, cfg.RetireRetryMax, cfg.RetireRetryDelays),
		service.RetireOptions{
			DeleteTimeout: cfg.RetireDeleteTimeout,
			Lease:         cfg.RetireLease,
			RetryDelays:   cfg.RetireRetryDelays,
			Grace:         cfg.RetireGrace,
		}, logger)

	var lock worker.Locker
	if rdb, err := repo.NewRedis(ctx, cfg); err != nil {
		logger.Warn("redis unavailable, sweeping without a lock", zap.Error(err))
	} else {
		defer rdb.Close()
		lock = repo.NewRedisLock(rdb, "godrop:retire:sweep", cfg.RetireSweepInterval)
	}
	go worker.NewSweeper(store, coordinator, lock, cfg.RetireSweepInterval, cfg.RetireSweepBatch, logger).Run(ctx)

	retireWorker := worker.NewRetireWorker(coordinator, worker.RetireWorkerOptions{
		Prefetch:    cfg.RabbitMQPrefetch,
		Concurrency: cfg.RetireWorkerConcurrency,
		Rate:        cfg.RetireRate,
		Burst:       cfg.RetireBurst,
	}, logger)

	logger.Info("retire worker started")
	for ctx.Err() == nil {
		client, err := mq.Dial(cfg.RabbitMQURL)
		if err != nil {
			logger.Warn("dial rabbitmq", zap.Error(err))
		} else {
			err = retireWorker.Run(ctx, client)
			client.Close()
			if err != nil {
				logger.Warn("retire worker stopped", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
		}
	}
	logger.Info("retire worker stopped")
}
