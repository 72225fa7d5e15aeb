// Package main runs the LectureLink HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lecturelink/backend/config"
	"github.com/lecturelink/backend/internal/analytics"
	"github.com/lecturelink/backend/internal/auth"
	"github.com/lecturelink/backend/internal/lectures"
	"github.com/lecturelink/backend/internal/middleware"
	"github.com/lecturelink/backend/internal/models"
	"github.com/lecturelink/backend/internal/polls"
	"github.com/lecturelink/backend/internal/qa"
	"github.com/lecturelink/backend/internal/reactions"
	"github.com/lecturelink/backend/internal/unanswered"
	"github.com/lecturelink/backend/internal/worker"
	"github.com/lecturelink/backend/pkg/database"
	"github.com/lecturelink/backend/pkg/metrics"
	"github.com/lecturelink/backend/pkg/queue"
	"github.com/lecturelink/backend/pkg/redis"
	"github.com/lecturelink/backend/pkg/response"
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
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	lectureRepo := lectures.NewRepository(pool)
	directory := lectures.NewDirectory(lectureRepo, s3Client,
		lectures.NewCache(rdb.Client, cfg.Lecture.CodeCacheTTL), jobQueue, logger,
		lectures.WithCodeAttempts(cfg.Lecture.CodeGenAttempts),
		lectures.WithMaxUploadBytes(int64(cfg.Lecture.MaxUploadMB)<<20),
		lectures.WithLinkTTL(s3Client.PresignExpire()),
	)

	pollRepo := polls.NewRepository(pool)
	pollEngine := polls.NewEngine(pollRepo, logger, polls.WithMetrics(m))

	tracker := unanswered.NewTracker(rdb.Client, logger, unanswered.WithRebuildInterval(cfg.Lecture.UnansweredRebuild))
	qaRepo := qa.NewRepository(pool)
	ledger := qa.NewLedger(qaRepo, tracker, directory, cfg.Lecture.MaxTextLength, m, logger)

	reactionLedger := reactions.NewLedger(rdb.Client, directory, m, logger)

	authHandler := auth.NewHandler(auth.NewRepository(pool), jwtService, directory, logger)
	lectureHandler := lectures.NewHandler(directory, logger)
	pollHandler := polls.NewHandler(pollEngine)
	qaHandler := qa.NewHandler(ledger)
	reactionHandler := reactions.NewHandler(reactionLedger, nil)
	summaryHandler := analytics.NewHandler(directory, qaRepo, pollEngine, tracker)

	purgeProcessor := worker.NewPurgeProcessor(jobQueue, s3Client, pollRepo, qaRepo, reactionLedger, tracker, lectureRepo, m, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(m.Middleware())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	// Auth (no JWT)
	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)

	// Polls (unauthenticated; the instructor id travels in the body)
	router.POST("/polls", pollHandler.Create)
	router.GET("/polls", pollHandler.List)
	router.GET("/polls/:id", pollHandler.Get)
	router.PUT("/polls/:id", pollHandler.Update)
	router.DELETE("/polls/:id", pollHandler.Delete)
	router.POST("/polls/:id/activate", pollHandler.Activate)
	router.POST("/polls/:id/vote", pollHandler.Vote)

	// Student surface: the access code is the credential
	router.GET("/lectures/:code", lectureHandler.Lookup)
	router.GET("/lectures/:code/document", lectureHandler.Document)
	router.GET("/lectures/:code/polls/current", pollHandler.Current)
	router.GET("/lectures/:code/qa", qaHandler.ListAll)
	router.GET("/lectures/:code/unanswered", qaHandler.Unanswered)
	router.GET("/lectures/:code/pages/:page", qaHandler.ListPage)
	router.POST("/lectures/:code/pages/:page/questions", qaHandler.PostQuestion)
	router.POST("/lectures/:code/pages/:page/comments", qaHandler.PostComment)
	router.POST("/lectures/:code/pages/:page/recompute", qaHandler.Recompute)
	router.POST("/lectures/:code/reactions/:type/:id/toggle", reactionHandler.Toggle)
	router.GET("/lectures/:code/reactions/:type/:id", reactionHandler.Get)

	// Instructor surface (JWT)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.RequireRole(models.RoleInstructor, models.RoleAdmin))
	{
		api.GET("/instructors", authHandler.List)
		api.PATCH("/instructors/:id", authHandler.Update)
		api.DELETE("/instructors/:id", authHandler.Delete)

		api.POST("/lectures", lectureHandler.Create)
		api.GET("/lectures", lectureHandler.Mine)
		api.DELETE("/lectures/:code", lectureHandler.Delete)
		api.GET("/lectures/:code/summary", summaryHandler.GetByLecture)
		api.POST("/lectures/:code/pages/:page/questions/:id/acknowledge", qaHandler.Acknowledge)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (lecture purge); cmd/worker runs the same loop out of process.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Server.RunPurgeWorker {
		go purgeProcessor.Run(workerCtx)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
