package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nanobanano/miniapp/internal/api"
	"github.com/nanobanano/miniapp/internal/config"
	"github.com/nanobanano/miniapp/internal/database"
	"github.com/nanobanano/miniapp/internal/kie"
	"github.com/nanobanano/miniapp/internal/repository"
	"github.com/nanobanano/miniapp/internal/service"
	"github.com/nanobanano/miniapp/internal/storage"
	"github.com/nanobanano/miniapp/internal/telegram"
	"github.com/nanobanano/miniapp/internal/worker"
	"github.com/nanobanano/miniapp/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	kieClient := kie.NewClient(cfg, logr)
	taskRepo := repository.NewTaskRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	notifier := telegram.NewNotifier(botAPI, logr)

	var archiver service.Archiver
	if cfg.ArchiveEnabled() {
		a, err := storage.NewArchiver(storage.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			Bucket:        cfg.S3Bucket,
			PublicBaseURL: cfg.S3PublicBaseURL,
			UsePathStyle:  cfg.S3UsePathStyle,
			Prefix:        cfg.S3Prefix,
		})
		if err != nil {
			log.Fatalf("storage archiver: %v", err)
		}
		archiver = a
	}

	pool := worker.NewPool(cfg.PollWorkers, cfg.PollQueueSize, logr)
	pool.Start()
	defer pool.Stop()

	generationService := service.NewGenerationService(cfg, logr, subscriptionRepo, kieClient, taskRepo, notifier, archiver, pool)

	server := api.NewServer(cfg.ListenAddr, logr, generationService)
	go func() {
		if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("api server stopped", "err", err)
		}
	}()

	bot := telegram.NewBot(botAPI, logr)
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
