package main

import (
	"Go_Drop/config"
	"Go_Drop/internal/handler"
	"Go_Drop/internal/mq"
	"Go_Drop/internal/notify"
	"Go_Drop/internal/repo"
	"Go_Drop/internal/service"
	"Go_Drop/internal/storage"
	"Go_Drop/internal/task"
	"Go_Drop/internal/worker"
	"Go_Drop/router"
	"Go_Drop/utils"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// main initializes services and starts the HTTP server.
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
	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("warning", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.OpenDB(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("database handle", zap.Error(err))
	}
	defer sqlDB.Close()

	minioClient, err := storage.NewMinioClient(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal("connect minio", zap.Error(err))
	}
	blobs := storage.NewMinioStore(minioClient, cfg.Storage.BucketName, cfg.Storage.PublicBaseURL, cfg.Storage.URLExpiry)

	hasher, err := service.NewTokenHasher(cfg.TokenPepper)
	if err != nil {
		logger.Fatal("token hasher", zap.Error(err))
	}

	publisher := mq.NewPublisher(cfg.RabbitMQURL)
	defer publisher.Close()
	if _, err := publisher.Get(); err != nil {
		logger.Warn("rabbitmq unavailable, retries fall back to the sweeper until it returns", zap.Error(err))
	}
	scheduler := task.NewMQScheduler(publisher, cfg.RetireRetryMax, cfg.RetireRetryDelays)

	store := repo.NewGrantStore(db)
	shares := service.NewShareService(store, hasher, cfg.MaxRecipients, logger)
	ledger := service.NewLedger(store, hasher, logger)
	coordinator := service.NewCoordinator(store, blobs, scheduler, service.RetireOptions{
		DeleteTimeout: cfg.RetireDeleteTimeout,
		Lease:         cfg.RetireLease,
		RetryDelays:   cfg.RetireRetryDelays,
		Grace:         cfg.RetireGrace,
	}, logger)

	var dispatcher notify.Dispatcher = notify.NewLogDispatcher(logger)
	if cfg.MailEnabled {
		mail, err := notify.NewMailDispatcher(notify.MailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Pass:     cfg.SMTPPass,
			From:     cfg.SMTPFrom,
			TLS:      cfg.SMTPTLS,
			StartTLS: cfg.SMTPStartTLS,
			Timeout:  cfg.SMTPTimeout,
		})
		if err != nil {
			logger.Fatal("mail dispatcher", zap.Error(err))
		}
		dispatcher = mail
	}
	notifier := notify.NewNotifier(dispatcher, 4, logger)

	var lock worker.Locker
	if rdb, err := repo.NewRedis(ctx, cfg); err != nil {
		logger.Warn("redis unavailable, sweeping without a lock", zap.Error(err))
	} else {
		defer rdb.Close()
		lock = repo.NewRedisLock(rdb, "godrop:retire:sweep", cfg.RetireSweepInterval)
	}
	sweeper := worker.NewSweeper(store, coordinator, lock, cfg.RetireSweepInterval, cfg.RetireSweepBatch, logger)
	go sweeper.Run(ctx)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := router.InitRouter(router.Deps{
		Auth:        utils.NewTokenAuth(cfg.JWTSecret, 24*time.Hour),
		Share:       handler.NewShareHandler(shares, notifier, cfg.AppBaseURL, logger),
		Access:      handler.NewAccessHandler(ledger, coordinator, blobs, logger),
		AccessLimit: handler.NewIPRateLimiter(cfg.AccessRate, cfg.AccessBurst),
		DB:          sqlDB,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	logger.Info("http server stopped")
}
