package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"anuj-bot/internal/bot"
	"anuj-bot/internal/config"
	"anuj-bot/internal/llm"
	"anuj-bot/internal/quiz"
	"anuj-bot/internal/service"
	"anuj-bot/internal/storage"
	mongostore "anuj-bot/internal/storage/mongo"
	sqlitestore "anuj-bot/internal/storage/sqlite"
	"anuj-bot/internal/web"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
	}()

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, context cache disabled", zap.Error(err))
			cache = nil
		}
	}

	client := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)

	contextSvc := service.NewContextService(store, cache, cfg.HistoryWindow, logger)
	fileSvc := service.NewFileService(store, cfg.FilesDir, cfg.MaxFileSizeBytes(), logger)
	quizGen := service.NewQuizGenerator(client, store, cfg.MaxQuizQuestions, logger)
	solver := service.NewDoubtSolver(service.NewTesseractOCR(cfg.OCRBinary), client, logger)

	telegramBot, err := bot.New(cfg, store, contextSvc, fileSvc, quizGen, solver, client, logger)
	if err != nil {
		logger.Fatal("create bot", zap.Error(err))
	}

	sessions := quiz.NewSessions(store, telegramBot,
		time.Duration(cfg.QuizJoinWindowSec)*time.Second,
		time.Duration(cfg.QuizTimeLimitSec)*time.Second,
		logger)
	telegramBot.AttachSessions(sessions)

	scheduler := service.NewScheduler(time.Local)
	if cfg.RetentionDays > 0 {
		if _, err := scheduler.ScheduleDaily(cfg.CleanupTime, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			cutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
			removed, err := store.DeleteMessagesBefore(jobCtx, cutoff)
			if err != nil {
				logger.Error("retention cleanup failed", zap.Error(err))
				return
			}
			logger.Info("retention cleanup done", zap.Int64("removed", removed))
		}); err != nil {
			logger.Fatal("schedule retention cleanup", zap.Error(err))
		}
	}
	if _, err := scheduler.ScheduleInterval(time.Hour, func() {
		removed, err := fileSvc.SweepTemp("files/temp", 6*time.Hour)
		if err != nil {
			logger.Warn("temp sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Info("temp sweep done", zap.Int("removed", removed))
		}
	}); err != nil {
		logger.Fatal("schedule temp sweep", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	if cfg.WebhookURL != "" {
		server := web.NewServer(telegramBot, cfg.WebhookURL, logger)
		logger.Info("starting in webhook mode", zap.String("port", cfg.HTTPPort))
		if err := server.Run(ctx, ":"+cfg.HTTPPort); err != nil {
			logger.Fatal("webhook server stopped", zap.Error(err))
		}
		logger.Info("shutdown complete")
		return
	}

	logger.Info("starting in polling mode")
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("bot stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openStore picks the persistence backend from configuration.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendMongo:
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	default:
		return sqlitestore.Open(cfg.DatabasePath)
	}
}
