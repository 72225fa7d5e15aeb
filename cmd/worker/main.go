// Package main runs the background lecture purge worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lecturelink/backend/config"
	"github.com/lecturelink/backend/internal/lectures"
	"github.com/lecturelink/backend/internal/polls"
	"github.com/lecturelink/backend/internal/qa"
	"github.com/lecturelink/backend/internal/reactions"
	"github.com/lecturelink/backend/internal/unanswered"
	"github.com/lecturelink/backend/internal/worker"
	"github.com/lecturelink/backend/pkg/database"
	"github.com/lecturelink/backend/pkg/metrics"
	"github.com/lecturelink/backend/pkg/queue"
	"github.com/lecturelink/backend/pkg/redis"
	"github.com/lecturelink/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		DocumentsBucket:      cfg.AWS.DocumentsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	m := metrics.New()
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewPurgeProcessor(
		jobQueue,
		s3Client,
		polls.NewRepository(pool),
		qa.NewRepository(pool),
		reactions.NewLedger(rdb.Client, nil, m, logger),
		unanswered.NewTracker(rdb.Client, logger),
		lectures.NewRepository(pool),
		m,
		logger,
	)

	if pending, dead, err := jobQueue.Depth(ctx); err == nil {
		logger.Info("purge queue", zap.Int64("pending", pending), zap.Int64("dead", dead))
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
